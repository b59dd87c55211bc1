package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a new, uninitialized Agent implementation for a given
// type string (e.g. "claude", "gemini", "api"). Adapters register their
// constructor via RegisterFactory in their package init().
type Factory func() Agent

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory registers a constructor for the given agent type. Called
// from adapter package init() functions; panics on duplicate registration
// since that indicates two adapters claiming the same type name.
func RegisterFactory(agentType string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[agentType]; exists {
		panic(fmt.Sprintf("agent: factory already registered for type %q", agentType))
	}
	factories[agentType] = factory
}

// CreateAgent constructs and initializes an Agent of the given config's
// type, returning an error if the type has no registered factory.
func CreateAgent(config AgentConfig) (Agent, error) {
	mu.RLock()
	factory, ok := factories[config.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: no factory registered for type %q", config.Type)
	}

	a := factory()
	if err := a.Initialize(config); err != nil {
		return nil, fmt.Errorf("agent: failed to initialize %q: %w", config.Type, err)
	}
	return a, nil
}

// RegisteredTypes returns the sorted list of agent types with a registered
// factory.
func RegisteredTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
