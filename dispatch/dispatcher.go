package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/plughost/plugin"
)

// Dispatcher routes invocations to plugins through the current Registry.
//
// The Registry is swapped atomically, so a reload never exposes a partly
// built command table. Calls into a plugin that has not declared itself
// concurrent-safe are serialized per plugin, using the lock its Registry
// entry carries.
type Dispatcher struct {
	registry atomic.Pointer[Registry]
	logger   zerolog.Logger

	// shared serializes plugins the current registry cannot identify.
	shared sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a Dispatcher serving reg. A nil reg is an empty registry.
func New(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Swap(reg)
	return d
}

// Registry returns the registry currently in use.
func (d *Dispatcher) Registry() *Registry {
	return d.registry.Load()
}

// Swap installs reg and returns the previous registry. In-flight calls keep
// using the registry they started with.
func (d *Dispatcher) Swap(reg *Registry) *Registry {
	if reg == nil {
		reg = NewBuilder().Build()
	}
	old := d.registry.Swap(reg)
	d.logger.Debug().Int("commands", reg.Len()).Msg("registry installed")
	return old
}

// Lookup returns the plugin that owns command.
func (d *Dispatcher) Lookup(command string) (plugin.Plugin, error) {
	return d.Registry().Lookup(command)
}

// Dispatch looks up the owner of command and executes it with args.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, args []string) error {
	e, err := d.Registry().lookup(command)
	if err != nil {
		d.logger.Debug().Str("command", command).Msg("no plugin owns command")
		return err
	}
	return d.invoke(ctx, e.p, e.mu, command, args)
}

// Invoke executes command on p. The plugin's result is returned unchanged;
// a panic in plugin code becomes an error wrapping plugin.ErrPluginPanic.
func (d *Dispatcher) Invoke(ctx context.Context, p plugin.Plugin, command string, args []string) error {
	return d.invoke(ctx, p, d.lockFor(p), command, args)
}

func (d *Dispatcher) invoke(ctx context.Context, p plugin.Plugin, mu *sync.Mutex, command string, args []string) error {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	log := d.logger.With().Str("plugin", p.Name()).Str("command", command).Logger()
	log.Debug().Int("args", len(args)).Msg("dispatching")

	err := plugin.Recover("execute "+command, func() error {
		return p.Execute(ctx, command, args)
	})
	if err != nil {
		log.Debug().Err(err).Msg("plugin returned error")
	}
	return err
}

// Help returns p's help customization for args. A panic is treated as
// no customization.
func (d *Dispatcher) Help(p plugin.Plugin, args []string) (plugin.HelpMode, string) {
	return d.help(p, d.lockFor(p), args)
}

func (d *Dispatcher) help(p plugin.Plugin, mu *sync.Mutex, args []string) (mode plugin.HelpMode, text string) {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	err := plugin.Recover("help", func() error {
		mode, text = plugin.HelpOutput(p, args)
		return nil
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("plugin", p.Name()).Msg("help output failed")
		return plugin.HelpNone, ""
	}
	return mode, text
}

// RenderHelp composes the help shown for command. systemHelp is the host's
// generated help text; it is returned unchanged when no plugin owns command.
func (d *Dispatcher) RenderHelp(command string, args []string, systemHelp string) string {
	e, err := d.Registry().lookup(command)
	if err != nil {
		return systemHelp
	}
	mode, text := d.help(e.p, e.mu, args)
	return plugin.ComposeHelp(mode, text, systemHelp)
}

// lockFor returns the lock guarding p, or nil when p is concurrent-safe.
func (d *Dispatcher) lockFor(p plugin.Plugin) *sync.Mutex {
	if plugin.IsConcurrentSafe(p) {
		return nil
	}
	if e := d.Registry().entryFor(p); e != nil {
		return e.mu
	}
	return &d.shared
}
