// Package registry provides a global registry of scenario factories.
// Scenarios register themselves in init() functions, so commands can list
// and load them by id without hardcoded dependencies.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/railsim/internal/sim"
)

// Scenario is a scripted network and fleet that can be built into a World.
type Scenario interface {
	// ID returns a unique identifier (e.g., "junction"). Used for CLI
	// arguments and as the scenario key in the run journal.
	ID() string

	// Title returns a human-readable name for display.
	Title() string

	// Build lays the track and places the trains. The world is expected to
	// be empty.
	Build(w *sim.World) error
}

// Info contains metadata about a registered scenario.
type Info struct {
	ID    string
	Title string
}

// Factory creates a new instance of a scenario.
type Factory func() Scenario

var (
	factories = make(map[string]Factory)
	titles    = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a scenario factory to the registry.
// Panics if a scenario with the same ID is already registered.
func Register(id string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[id]; exists {
		panic(fmt.Sprintf("registry: scenario %q already registered", id))
	}

	factories[id] = f
	titles[id] = f().Title()
}

// List returns all registered scenarios, sorted by ID.
func List() []Info {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]Info, 0, len(factories))
	for id := range factories {
		result = append(result, Info{
			ID:    id,
			Title: titles[id],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// Create instantiates a scenario by its ID.
func Create(id string) (Scenario, error) {
	mu.RLock()
	defer mu.RUnlock()

	f, ok := factories[id]
	if !ok {
		return nil, fmt.Errorf("registry: unknown scenario %q", id)
	}

	return f(), nil
}

// Exists checks if a scenario with the given ID is registered.
func Exists(id string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := factories[id]
	return ok
}
