package plugin

import "errors"

// FactorySymbol is the name of the factory function every loadable Go module
// must export:
//
//	func NewPlugin() plugin.Plugin
//
// It is the only crossing point between host and plugin code. Everything
// after it goes through the Plugin interface.
const FactorySymbol = "NewPlugin"

// Factory constructs a new, independently owned plugin instance.
//
// Each call must allocate a fresh instance and hand ownership to the caller.
// A factory signals nothing through an empty result: absence of a usable
// plugin is a load failure detected by the loader, not a nil return.
type Factory func() Plugin

// ConstructFunc is the loader-side form of a factory for module kinds whose
// instance creation can fail on the host side (a WASM instance, for example).
type ConstructFunc func() (Plugin, error)

// Instantiate invokes f exactly once and returns the instance it produced.
//
// A nil factory, a nil instance, an instance with an empty name, or a panic
// inside the factory are all reported as *LoadError. Instantiate never
// returns a nil Plugin with a nil error.
func Instantiate(f Factory) (Plugin, error) {
	if f == nil {
		return nil, NewLoadError("factory", errors.New("factory is nil"))
	}
	return construct(func() (Plugin, error) { return f(), nil })
}

func construct(fn ConstructFunc) (p Plugin, err error) {
	if fn == nil {
		return nil, NewLoadError("factory", errors.New("factory is nil"))
	}

	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = NewLoadError("factory", panicError("instantiate", r))
		}
	}()

	p, err = fn()
	if err != nil {
		return nil, NewLoadError("factory", err)
	}
	if p == nil {
		return nil, NewLoadError("factory", errors.New("factory returned a nil plugin"))
	}
	if p.Name() == "" {
		return nil, NewLoadError("factory", errors.New("plugin has an empty name"))
	}
	return p, nil
}
