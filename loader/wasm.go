package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	extism "github.com/extism/go-sdk"
	"github.com/rs/zerolog"

	"github.com/joncooperworks/plughost/plugin"
)

func init() {
	RegisterLoader(KindWASM, func() (Loader, error) {
		return NewWASMLoader(), nil
	})
}

// Exports a WASM plugin module provides. name and help are optional.
const (
	wasmExportName     = "name"
	wasmExportCommands = "commands"
	wasmExportExecute  = "execute"
	wasmExportHelp     = "help"
)

// WASMLoader loads WASM plugins using the Extism SDK.
//
// A module is compiled once when it is opened; each factory call creates a
// fresh Extism instance from the compiled module, so instances never share
// guest memory.
type WASMLoader struct {
	// Stdout receives text a guest returns from a successful execute call.
	Stdout io.Writer
	// EnableWasi exposes WASI imports to the guest.
	EnableWasi bool
}

// NewWASMLoader creates a new WASM loader.
func NewWASMLoader() *WASMLoader {
	return &WASMLoader{Stdout: os.Stdout, EnableWasi: true}
}

// Open compiles the module at path and returns a module whose factory
// instantiates it.
func (wl *WASMLoader) Open(ctx context.Context, path string) (*plugin.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM module: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("WASM module is empty")
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{Data: data, Name: name},
		},
	}
	config := extism.PluginConfig{
		EnableWasi: wl.EnableWasi,
	}

	logger := zerolog.Ctx(ctx).With().Str("module", name).Logger()
	hostFunctions := []extism.HostFunction{
		newLogFunction(&logger),
	}

	compiled, err := extism.NewCompiledPlugin(ctx, manifest, config, hostFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to compile Extism plugin: %w", err)
	}

	out := wl.Stdout
	if out == nil {
		out = io.Discard
	}

	construct := func() (plugin.Plugin, error) {
		inst, err := compiled.Instance(ctx, extism.PluginInstanceConfig{})
		if err != nil {
			return nil, fmt.Errorf("failed to instantiate Extism plugin: %w", err)
		}
		wp, err := newWASMPlugin(ctx, inst, name, out)
		if err != nil {
			_ = inst.Close(ctx)
			return nil, err
		}
		return wp, nil
	}

	return plugin.NewModuleFunc(path, KindWASM, construct, compiled.Close), nil
}

// wasmInstance is the part of *extism.Plugin a WASMPlugin uses.
type wasmInstance interface {
	CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error)
	FunctionExists(name string) bool
	Close(ctx context.Context) error
}

// WASMPlugin implements the Plugin interface for WASM modules.
//
// The guest's name and command list are read once at instantiation. Calls
// into the guest are serialized because an Extism instance is single-threaded.
type WASMPlugin struct {
	name     string
	commands []string
	inst     wasmInstance
	out      io.Writer
	ctx      context.Context

	mu sync.Mutex
}

type wasmExecuteInput struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type wasmHelpOutput struct {
	Mode string `json:"mode"`
	Text string `json:"text"`
}

func newWASMPlugin(ctx context.Context, inst wasmInstance, fallbackName string, out io.Writer) (*WASMPlugin, error) {
	for _, export := range []string{wasmExportCommands, wasmExportExecute} {
		if !inst.FunctionExists(export) {
			return nil, fmt.Errorf("WASM module must export a %s function", export)
		}
	}

	wp := &WASMPlugin{name: fallbackName, inst: inst, out: out, ctx: ctx}

	if inst.FunctionExists(wasmExportName) {
		name, err := wp.call(ctx, wasmExportName, nil)
		if err != nil {
			return nil, err
		}
		if n := strings.TrimSpace(string(name)); n != "" {
			wp.name = n
		}
	}

	raw, err := wp.call(ctx, wasmExportCommands, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &wp.commands); err != nil {
		return nil, fmt.Errorf("failed to parse commands output: %w", err)
	}
	return wp, nil
}

// Name returns the plugin name, preferring the WASM exported name().
func (wp *WASMPlugin) Name() string {
	return wp.name
}

// Commands returns the command list the guest reported at instantiation.
func (wp *WASMPlugin) Commands() []string {
	return append([]string(nil), wp.commands...)
}

// Execute calls the exported execute() function with a JSON encoded
// command and argument list. A non-zero exit code is a plugin-domain error
// whose message is the guest's output.
func (wp *WASMPlugin) Execute(ctx context.Context, command string, args []string) error {
	if err := plugin.CheckCommand(wp, command); err != nil {
		return err
	}
	if args == nil {
		args = []string{}
	}

	input, err := json.Marshal(wasmExecuteInput{Command: command, Args: args})
	if err != nil {
		return fmt.Errorf("failed to encode execute input: %w", err)
	}

	output, err := wp.call(ctx, wasmExportExecute, input)
	if err != nil {
		return err
	}
	if len(output) > 0 {
		if _, err := wp.out.Write(output); err != nil {
			return fmt.Errorf("failed to write plugin output: %w", err)
		}
	}
	return nil
}

// HelpOutput calls the optional help() export. Any failure means no
// customization.
func (wp *WASMPlugin) HelpOutput(args []string) (plugin.HelpMode, string) {
	if !wp.inst.FunctionExists(wasmExportHelp) {
		return plugin.HelpNone, ""
	}
	if args == nil {
		args = []string{}
	}
	input, err := json.Marshal(args)
	if err != nil {
		return plugin.HelpNone, ""
	}

	raw, err := wp.call(wp.ctx, wasmExportHelp, input)
	if err != nil || len(raw) == 0 {
		return plugin.HelpNone, ""
	}

	var help wasmHelpOutput
	if err := json.Unmarshal(raw, &help); err != nil {
		return plugin.HelpNone, ""
	}
	mode, err := plugin.ParseHelpMode(help.Mode)
	if err != nil {
		return plugin.HelpNone, ""
	}
	return mode, help.Text
}

// Close shuts down the Extism instance.
func (wp *WASMPlugin) Close(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.inst.Close(ctx)
}

// call invokes a guest export using Extism's input/output pattern.
func (wp *WASMPlugin) call(ctx context.Context, function string, input []byte) ([]byte, error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	exitCode, output, err := wp.inst.CallWithContext(ctx, function, input)
	if err != nil {
		return nil, fmt.Errorf("failed to call function %s: %w", function, err)
	}
	if exitCode != 0 {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("function %s returned non-zero exit code: %d", function, exitCode)
	}
	return output, nil
}
