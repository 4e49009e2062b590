// Package loader opens plugin modules from disk and instantiates them through
// the factory protocol defined by package plugin.
//
// Two module kinds are built in: "native" Go plugins (.so files exporting
// plugin.FactorySymbol) and "wasm" Extism modules. Further kinds can be
// added with RegisterLoader.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/plughost/plugin"
)

const (
	// KindNative identifies Go plugins opened with the standard plugin package.
	KindNative = "native"
	// KindWASM identifies WebAssembly modules run through Extism.
	KindWASM = "wasm"
)

// Loader opens a module and resolves its factory.
type Loader interface {
	Open(ctx context.Context, path string) (*plugin.Module, error)
}

// Verifier checks a module file before it is opened.
type Verifier interface {
	Verify(path string) error
}

// Options control how modules are loaded.
type Options struct {
	// Kind forces a loader kind. When empty the kind is derived from the
	// file extension with KindForPath.
	Kind string
	// Verifier, when set, must accept the module before it is opened.
	Verifier Verifier
	// Logger receives load diagnostics. A nil Logger disables them.
	Logger *zerolog.Logger
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return o.Logger
}

// KindForPath maps a module file extension to a loader kind.
func KindForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".so", ".dylib":
		return KindNative, nil
	case ".wasm":
		return KindWASM, nil
	default:
		return "", fmt.Errorf("cannot infer module kind from %q", filepath.Base(path))
	}
}

// Load verifies, opens and instantiates the module at path exactly once.
//
// Every failure is returned as a *plugin.LoadError; the module is released
// again when instantiation fails.
func Load(ctx context.Context, path string, opts Options) (*plugin.Instance, error) {
	log := opts.logger().With().Str("path", path).Logger()

	kind := opts.Kind
	if kind == "" {
		var err error
		if kind, err = KindForPath(path); err != nil {
			return nil, plugin.NewLoadError(path, err)
		}
	}

	factory, err := GetLoaderFactory(kind)
	if err != nil {
		return nil, plugin.NewLoadError(path, err)
	}
	ldr, err := factory()
	if err != nil {
		return nil, plugin.NewLoadError(path, fmt.Errorf("failed to create %s loader: %w", kind, err))
	}

	if opts.Verifier != nil {
		if err := opts.Verifier.Verify(path); err != nil {
			return nil, plugin.NewLoadError(path, err)
		}
		log.Debug().Msg("module signature verified")
	}

	mod, err := ldr.Open(log.WithContext(ctx), path)
	if err != nil {
		var le *plugin.LoadError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, plugin.NewLoadError(path, err)
	}

	inst, err := mod.Instantiate()
	if err != nil {
		if cerr := mod.Close(ctx); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to release module after instantiate error")
		}
		return nil, err
	}

	log.Debug().
		Str("kind", kind).
		Str("plugin", inst.Name()).
		Strs("commands", inst.Commands()).
		Msg("plugin loaded")
	return inst, nil
}

// LoadAll loads every path in order. A failure affects only its own module:
// it is collected in the returned error slice and loading continues.
func LoadAll(ctx context.Context, paths []string, opts Options) ([]*plugin.Instance, []error) {
	log := opts.logger()

	var (
		instances []*plugin.Instance
		errs      []error
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, plugin.NewLoadError(path, err))
			continue
		}
		inst, err := Load(ctx, path, opts)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping plugin")
			errs = append(errs, err)
			continue
		}
		instances = append(instances, inst)
	}
	return instances, errs
}

// ReleaseAll closes every instance and then its module, joining any errors.
func ReleaseAll(ctx context.Context, instances []*plugin.Instance) error {
	var errs []error
	for _, inst := range instances {
		if err := inst.Release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", inst.Name(), err))
		}
	}
	return errors.Join(errs...)
}
