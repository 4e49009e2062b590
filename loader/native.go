package loader

import (
	"context"
	"fmt"
	goplugin "plugin"

	"github.com/joncooperworks/plughost/plugin"
)

func init() {
	RegisterLoader(KindNative, func() (Loader, error) {
		return NewNativeLoader(), nil
	})
}

// symbolTable is the part of *goplugin.Plugin the loader needs.
type symbolTable interface {
	Lookup(name string) (goplugin.Symbol, error)
}

// NativeLoader opens Go plugins built with -buildmode=plugin.
//
// Go cannot unload a plugin once it is opened, so modules produced by this
// loader have no release step; closing them only drops the host's handle.
type NativeLoader struct {
	open func(path string) (symbolTable, error)
}

// NewNativeLoader creates a loader backed by the standard plugin package.
func NewNativeLoader() *NativeLoader {
	return &NativeLoader{
		open: func(path string) (symbolTable, error) {
			return goplugin.Open(path)
		},
	}
}

// Open opens the shared object at path and resolves plugin.FactorySymbol.
func (nl *NativeLoader) Open(ctx context.Context, path string) (*plugin.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := nl.open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open plugin: %w", err)
	}

	sym, err := table.Lookup(plugin.FactorySymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin does not export %s: %w", plugin.FactorySymbol, err)
	}

	factory, err := factoryFromSymbol(sym)
	if err != nil {
		return nil, err
	}
	return plugin.NewModule(path, KindNative, factory, nil), nil
}

// factoryFromSymbol accepts the factory as an exported function or as an
// exported variable holding one.
func factoryFromSymbol(sym goplugin.Symbol) (plugin.Factory, error) {
	var f plugin.Factory
	switch v := sym.(type) {
	case func() plugin.Plugin:
		f = v
	case plugin.Factory:
		f = v
	case *func() plugin.Plugin:
		if v != nil {
			f = *v
		}
	case *plugin.Factory:
		if v != nil {
			f = *v
		}
	default:
		return nil, fmt.Errorf("symbol %s has type %T, want func() plugin.Plugin", plugin.FactorySymbol, sym)
	}
	if f == nil {
		return nil, fmt.Errorf("symbol %s is a nil function", plugin.FactorySymbol)
	}
	return f, nil
}
