// Package registry maintains the mapping from capability names to callable
// operations and validates invocations against declared signatures.
package registry

import (
	"log"
	"sort"

	flowagent "github.com/frostholm/flowagent"
)

// Registry holds the capabilities that loaded successfully at startup. It is
// built once and never mutated afterwards; lookups need no locking.
type Registry struct {
	capabilities map[string]flowagent.Capability
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{capabilities: make(map[string]flowagent.Capability)}
}

// Build registers every provided capability, logging and skipping the ones
// that fail validation. A load failure is never fatal: the capability is
// simply absent from the registry.
func Build(capabilities ...flowagent.Capability) *Registry {
	r := New()
	for _, c := range capabilities {
		if err := r.Register(c); err != nil {
			log.Printf("Could not load capability %q: %v", c.Name, err)
			continue
		}
		log.Printf("Loaded capability: %s with %d operations", c.Name, len(c.Operations))
	}
	return r
}

// Register adds a capability after validating its shape.
func (r *Registry) Register(c flowagent.Capability) error {
	if c.Name == "" {
		return flowagent.NewValidationError("registration", "capability name is empty", nil)
	}
	if _, exists := r.capabilities[c.Name]; exists {
		return flowagent.NewValidationError("registration", "capability '"+c.Name+"' already registered", nil)
	}
	if len(c.Operations) == 0 {
		return flowagent.NewValidationError("registration", "capability '"+c.Name+"' declares no operations", nil)
	}
	seen := make(map[string]struct{}, len(c.Operations))
	for _, op := range c.Operations {
		if op.Name == "" {
			return flowagent.NewValidationError("registration", "capability '"+c.Name+"' declares an unnamed operation", nil)
		}
		if _, dup := seen[op.Name]; dup {
			return flowagent.NewValidationError("registration", "capability '"+c.Name+"' declares duplicate operation '"+op.Name+"'", nil)
		}
		if op.Handler == nil {
			return flowagent.NewValidationError("registration", "operation '"+c.Name+"."+op.Name+"' has no handler", nil)
		}
		seen[op.Name] = struct{}{}
	}
	r.capabilities[c.Name] = c
	return nil
}

// Resolve returns the named operation. Capability names are expected to be
// registry keys already (the router normalizes aliases beforehand);
// operation lookup is case-sensitive.
func (r *Registry) Resolve(capability, operation string) (flowagent.Operation, error) {
	c, ok := r.capabilities[capability]
	if !ok {
		return flowagent.Operation{}, flowagent.NewCapabilityNotFoundError("resolution", capability)
	}
	op, ok := c.Operation(operation)
	if !ok {
		return flowagent.Operation{}, flowagent.NewOperationNotFoundError("resolution", capability, operation)
	}
	return op, nil
}

// Get returns the full capability record.
func (r *Registry) Get(name string) (flowagent.Capability, bool) {
	c, ok := r.capabilities[name]
	return c, ok
}

// List returns all registered capabilities, sorted by name.
func (r *Registry) List() []flowagent.Capability {
	out := make([]flowagent.Capability, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
