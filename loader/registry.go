package loader

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// LoaderFactory builds the Loader for one module kind.
type LoaderFactory func() (Loader, error)

// kinds maps a module kind to the factory that builds its loader. The
// built-in kinds add themselves from init.
var kinds = struct {
	sync.RWMutex
	factories map[string]LoaderFactory
}{factories: make(map[string]LoaderFactory)}

// RegisterLoader makes factory the loader for kind, replacing any earlier
// registration. Load consults it whenever Options.Kind or a module's file
// extension resolves to kind.
func RegisterLoader(kind string, factory LoaderFactory) {
	kinds.Lock()
	kinds.factories[kind] = factory
	kinds.Unlock()
}

// GetLoaderFactory returns the factory registered for kind.
func GetLoaderFactory(kind string) (LoaderFactory, error) {
	kinds.RLock()
	factory, ok := kinds.factories[kind]
	kinds.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported module kind %q (have %v)", kind, ListRegisteredKinds())
	}
	return factory, nil
}

// ListRegisteredKinds reports every kind with a loader, sorted.
func ListRegisteredKinds() []string {
	kinds.RLock()
	defer kinds.RUnlock()
	return slices.Sorted(maps.Keys(kinds.factories))
}
