package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joncooperworks/plughost/plugin"
)

type wasmResult struct {
	rc     uint32
	output []byte
	err    error
}

// fakeInstance stands in for an Extism instance.
type fakeInstance struct {
	exports map[string]func(input []byte) wasmResult
	calls   []string
	inputs  map[string][]byte
	closed  int
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{
		exports: map[string]func([]byte) wasmResult{
			wasmExportName:     func([]byte) wasmResult { return wasmResult{output: []byte("counter\n")} },
			wasmExportCommands: func([]byte) wasmResult { return wasmResult{output: []byte(`["inc","get"]`)} },
			wasmExportExecute:  func([]byte) wasmResult { return wasmResult{output: []byte("ok")} },
		},
		inputs: make(map[string][]byte),
	}
}

func (f *fakeInstance) CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error) {
	f.calls = append(f.calls, name)
	f.inputs[name] = data
	fn, ok := f.exports[name]
	if !ok {
		return 1, nil, errors.New("unknown export " + name)
	}
	r := fn(data)
	return r.rc, r.output, r.err
}

func (f *fakeInstance) FunctionExists(name string) bool {
	_, ok := f.exports[name]
	return ok
}

func (f *fakeInstance) Close(ctx context.Context) error {
	f.closed++
	return nil
}

func TestNewWASMLoader(t *testing.T) {
	ldr := NewWASMLoader()
	require.NotNil(t, ldr)
	assert.True(t, ldr.EnableWasi)
	assert.Equal(t, os.Stdout, ldr.Stdout)

	var _ Loader = ldr
}

func TestWASMLoader_Open_InvalidWASM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.wasm")
	require.NoError(t, os.WriteFile(path, []byte("this is not valid WASM data"), 0o644))

	_, err := NewWASMLoader().Open(context.Background(), path)
	assert.Error(t, err)
}

func TestWASMLoader_Open_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wasm")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := NewWASMLoader().Open(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, "WASM module is empty", err.Error())
}

func TestWASMLoader_Open_MissingFile(t *testing.T) {
	_, err := NewWASMLoader().Open(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewWASMPlugin(t *testing.T) {
	inst := newFakeInstance()
	wp, err := newWASMPlugin(context.Background(), inst, "fallback", &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "counter", wp.Name())
	assert.Equal(t, []string{"inc", "get"}, wp.Commands())
}

func TestNewWASMPlugin_FallbackName(t *testing.T) {
	inst := newFakeInstance()
	delete(inst.exports, wasmExportName)

	wp, err := newWASMPlugin(context.Background(), inst, "counter-module", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "counter-module", wp.Name())
}

func TestNewWASMPlugin_MissingExports(t *testing.T) {
	for _, export := range []string{wasmExportCommands, wasmExportExecute} {
		t.Run(export, func(t *testing.T) {
			inst := newFakeInstance()
			delete(inst.exports, export)

			_, err := newWASMPlugin(context.Background(), inst, "x", &bytes.Buffer{})
			require.Error(t, err)
			assert.Equal(t, "WASM module must export a "+export+" function", err.Error())
		})
	}
}

func TestNewWASMPlugin_BadCommandsJSON(t *testing.T) {
	inst := newFakeInstance()
	inst.exports[wasmExportCommands] = func([]byte) wasmResult { return wasmResult{output: []byte("inc,get")} }

	_, err := newWASMPlugin(context.Background(), inst, "x", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse commands output")
}

func TestWASMPlugin_Execute(t *testing.T) {
	inst := newFakeInstance()
	var out bytes.Buffer
	wp, err := newWASMPlugin(context.Background(), inst, "x", &out)
	require.NoError(t, err)

	require.NoError(t, wp.Execute(context.Background(), "inc", []string{"--by", "2"}))
	assert.Equal(t, "ok", out.String())

	var input wasmExecuteInput
	require.NoError(t, json.Unmarshal(inst.inputs[wasmExportExecute], &input))
	assert.Equal(t, wasmExecuteInput{Command: "inc", Args: []string{"--by", "2"}}, input)
}

func TestWASMPlugin_Execute_NilArgs(t *testing.T) {
	inst := newFakeInstance()
	wp, err := newWASMPlugin(context.Background(), inst, "x", &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, wp.Execute(context.Background(), "get", nil))
	assert.JSONEq(t, `{"command":"get","args":[]}`, string(inst.inputs[wasmExportExecute]))
}

func TestWASMPlugin_Execute_UnknownCommand(t *testing.T) {
	inst := newFakeInstance()
	wp, err := newWASMPlugin(context.Background(), inst, "x", &bytes.Buffer{})
	require.NoError(t, err)
	calls := len(inst.calls)

	err = wp.Execute(context.Background(), "reset", nil)
	var cnf *plugin.CommandNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "Command not found: reset", err.Error())
	assert.Len(t, inst.calls, calls, "guest must not be called for unknown commands")
}

func TestWASMPlugin_Execute_GuestError(t *testing.T) {
	tests := []struct {
		name   string
		result wasmResult
		want   string
	}{
		{"message", wasmResult{rc: 1, output: []byte("counter overflow\n")}, "counter overflow"},
		{"no message", wasmResult{rc: 3}, "function execute returned non-zero exit code: 3"},
		{"call failure", wasmResult{err: errors.New("trap")}, "failed to call function execute: trap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newFakeInstance()
			inst.exports[wasmExportExecute] = func([]byte) wasmResult { return tt.result }
			wp, err := newWASMPlugin(context.Background(), inst, "x", &bytes.Buffer{})
			require.NoError(t, err)

			err = wp.Execute(context.Background(), "inc", nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.NotErrorIs(t, err, plugin.ErrCommandNotFound)
		})
	}
}

func TestWASMPlugin_HelpOutput(t *testing.T) {
	tests := []struct {
		name     string
		export   func([]byte) wasmResult
		wantMode plugin.HelpMode
		wantText string
	}{
		{
			name:     "no export",
			wantMode: plugin.HelpNone,
		},
		{
			name: "override",
			export: func([]byte) wasmResult {
				return wasmResult{output: []byte(`{"mode":"override","text":"custom"}`)}
			},
			wantMode: plugin.HelpOverride,
			wantText: "custom",
		},
		{
			name: "prepend",
			export: func([]byte) wasmResult {
				return wasmResult{output: []byte(`{"mode":"prepend","text":"extra"}`)}
			},
			wantMode: plugin.HelpPrepend,
			wantText: "extra",
		},
		{
			name: "unknown mode",
			export: func([]byte) wasmResult {
				return wasmResult{output: []byte(`{"mode":"replace","text":"x"}`)}
			},
			wantMode: plugin.HelpNone,
		},
		{
			name: "malformed",
			export: func([]byte) wasmResult {
				return wasmResult{output: []byte(`not json`)}
			},
			wantMode: plugin.HelpNone,
		},
		{
			name: "guest error",
			export: func([]byte) wasmResult {
				return wasmResult{rc: 1, output: []byte("boom")}
			},
			wantMode: plugin.HelpNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newFakeInstance()
			if tt.export != nil {
				inst.exports[wasmExportHelp] = tt.export
			}
			wp, err := newWASMPlugin(context.Background(), inst, "x", &bytes.Buffer{})
			require.NoError(t, err)

			mode, text := wp.HelpOutput([]string{"inc"})
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.wantText, text)
		})
	}
}

func TestWASMPlugin_Close(t *testing.T) {
	inst := newFakeInstance()
	wp, err := newWASMPlugin(context.Background(), inst, "x", &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, wp.Close(context.Background()))
	assert.Equal(t, 1, inst.closed)
}

func TestGuestLevel(t *testing.T) {
	tests := map[int32]zerolog.Level{
		0:  zerolog.DebugLevel,
		1:  zerolog.InfoLevel,
		2:  zerolog.WarnLevel,
		3:  zerolog.ErrorLevel,
		-1: zerolog.InfoLevel,
		9:  zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, guestLevel(in), "level %d", in)
	}
}
