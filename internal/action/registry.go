package action

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/oarepo/ldn-inbox/internal/storage"
)

// Deps are the collaborators a builtin may need. Factories that use none
// of them ignore the value.
type Deps struct {
	Store  storage.ObjectStore
	Logger *slog.Logger
}

// Factory builds an action instance of one type from its configured
// settings.
type Factory struct {
	// Type is the action type identifier used in configuration
	// (e.g. "log", "webhook", "flag").
	Type string

	// Description is a human-readable summary for diagnostics.
	Description string

	// Create instantiates the action from its settings map.
	Create func(settings map[string]any, deps Deps) (Action, error)
}

var (
	factoryMu  sync.RWMutex
	factoryMap = make(map[string]Factory)
)

// RegisterFactory registers an action factory. Builtin action files call
// this from init; panics on duplicate or empty types so misregistration
// fails at startup.
func RegisterFactory(f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("action factory type cannot be empty")
	}
	if f.Create == nil {
		panic("action factory " + f.Type + " has no Create function")
	}
	if _, exists := factoryMap[f.Type]; exists {
		panic("action factory already registered: " + f.Type)
	}
	factoryMap[f.Type] = f
}

// Create builds an action of the named type.
func Create(actionType string, settings map[string]any, deps Deps) (Action, error) {
	factoryMu.RLock()
	f, ok := factoryMap[actionType]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown action type %q (registered: %v)", actionType, RegisteredTypes())
	}
	return f.Create(settings, deps)
}

// RegisteredTypes returns the registered action type names, sorted.
func RegisteredTypes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	types := make([]string, 0, len(factoryMap))
	for t := range factoryMap {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
