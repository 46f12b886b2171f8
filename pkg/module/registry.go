package module

import (
	"sort"
	"sync"

	"github.com/ArcaneAIAutomation/opspilot/pkg/log"
)

// Plugins register their factories at build time from package init
// functions; discovery then binds disk manifests to these factories by
// id. There is no runtime code loading.
var registry = struct {
	mu        sync.Mutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// RegisterFactory records a module factory under its manifest id.
// The first registration for an id wins; later ones are logged and
// ignored.
func RegisterFactory(id string, factory Factory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.factories[id]; exists {
		log.Logger.Warn().Str("module", id).Msg("duplicate module factory registration ignored")
		return
	}
	registry.factories[id] = factory
}

// LookupFactory returns the factory registered for id.
func LookupFactory(id string) (Factory, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	f, ok := registry.factories[id]
	return f, ok
}

// RegisteredIDs returns every registered factory id, sorted.
func RegisteredIDs() []string {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	ids := make([]string, 0, len(registry.factories))
	for id := range registry.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
