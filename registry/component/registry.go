// Package component holds the registry of host-defined component types.
//
// Each component type is a GORM struct embedding model.ComponentBase; hosts
// register a prototype at init time and the store migrators auto-migrate one
// table per registered type, keyed by entity id.
package component

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/chirino/ontology/model"
)

var (
	mu         sync.RWMutex
	prototypes = map[string]reflect.Type{}
)

func init() {
	// The Domain component ships with the engine itself.
	Register(&model.Domain{})
}

// Register adds a component prototype. Called from init() in host packages.
// Registering the same type name twice replaces the earlier prototype.
func Register(proto model.Component) {
	t := reflect.TypeOf(proto)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	mu.Lock()
	prototypes[proto.ComponentType()] = t
	mu.Unlock()
}

// Names returns all registered component type names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(prototypes))
	for name := range prototypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns a fresh zero value of the named component type, ready to be
// scanned into.
func New(componentType string) (model.Component, error) {
	mu.RLock()
	t, ok := prototypes[componentType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown component type %q; valid: %v", componentType, Names())
	}
	return reflect.New(t).Interface().(model.Component), nil
}

// Prototypes returns one zero-value instance per registered type, for use by
// schema migrators.
func Prototypes() []model.Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]model.Component, 0, len(prototypes))
	for _, t := range prototypes {
		out = append(out, reflect.New(t).Interface().(model.Component))
	}
	return out
}
