package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ReleaseFunc releases whatever resources back an opened module.
type ReleaseFunc func(ctx context.Context) error

// Module is an opened plugin module whose factory has been resolved.
//
// Instances produced by a module hold a reference to it; the module can only
// be released once all of them are closed, because their code lives in the
// module's memory.
type Module struct {
	path      string
	kind      string
	construct ConstructFunc
	release   ReleaseFunc

	mu     sync.Mutex
	open   int
	closed bool
}

// NewModule wraps a resolved factory. release may be nil when the module
// cannot be unmapped (Go's native plugins, for example).
func NewModule(path, kind string, factory Factory, release ReleaseFunc) *Module {
	var fn ConstructFunc
	if factory != nil {
		fn = func() (Plugin, error) { return factory(), nil }
	}
	return NewModuleFunc(path, kind, fn, release)
}

// NewModuleFunc is NewModule for loaders whose instance construction can fail.
func NewModuleFunc(path, kind string, fn ConstructFunc, release ReleaseFunc) *Module {
	return &Module{
		path:      path,
		kind:      kind,
		construct: fn,
		release:   release,
	}
}

// Path returns the location the module was opened from.
func (m *Module) Path() string {
	return m.path
}

// Kind returns the loader kind that opened the module, e.g. "native" or "wasm".
func (m *Module) Kind() string {
	return m.kind
}

// OpenInstances returns the number of instances not yet closed.
func (m *Module) OpenInstances() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Instantiate calls the module's factory once and returns an owning handle
// to the new instance. Every call yields an independent instance.
func (m *Module) Instantiate() (*Instance, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, NewLoadError(m.path, errors.New("module is closed"))
	}
	m.open++
	m.mu.Unlock()

	p, err := construct(m.construct)
	if err != nil {
		m.drop()
		var le *LoadError
		if errors.As(err, &le) {
			return nil, NewLoadError(m.path, le.Err)
		}
		return nil, NewLoadError(m.path, err)
	}
	return &Instance{Plugin: p, module: m}, nil
}

// Close releases the module. It fails with ErrModuleInUse while instances
// produced by the module are still open. Closing twice is a no-op.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if m.open > 0 {
		return fmt.Errorf("%w: %s has %d", ErrModuleInUse, m.path, m.open)
	}
	m.closed = true
	if m.release == nil {
		return nil
	}
	return m.release(ctx)
}

func (m *Module) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open > 0 {
		m.open--
	}
}

// Instance is the host's exclusive handle to a plugin instance.
//
// It implements Plugin and HelpProvider by delegating to the wrapped plugin.
type Instance struct {
	Plugin

	module *Module
	once   sync.Once
	err    error
}

// Module returns the module that produced the instance.
func (i *Instance) Module() *Module {
	return i.module
}

// Unwrap returns the plugin the instance owns.
func (i *Instance) Unwrap() Plugin {
	return i.Plugin
}

// HelpOutput delegates to the wrapped plugin's help customization, if any.
func (i *Instance) HelpOutput(args []string) (HelpMode, string) {
	return HelpOutput(i.Plugin, args)
}

// ConcurrentSafe reports whether the wrapped plugin declared concurrency safety.
func (i *Instance) ConcurrentSafe() bool {
	return IsConcurrentSafe(i.Plugin)
}

// Close releases the plugin instance. If the plugin has a Close method it is
// called first. Close is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	i.once.Do(func() {
		i.err = Recover("close", func() error {
			switch c := i.Plugin.(type) {
			case interface{ Close(context.Context) error }:
				return c.Close(ctx)
			case interface{ Close() error }:
				return c.Close()
			}
			return nil
		})
		if i.module != nil {
			i.module.drop()
		}
	})
	return i.err
}

// Release closes the instance and then its module.
func (i *Instance) Release(ctx context.Context) error {
	err := i.Close(ctx)
	if i.module == nil {
		return err
	}
	return errors.Join(err, i.module.Close(ctx))
}
