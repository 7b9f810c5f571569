package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps entity kinds to their definitions. It is populated during
// bootstrap and by extensions, then read-only for the life of the process.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*EntityDef
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*EntityDef)}
}

// Register adds a definition, validating it first. Re-registering a kind is
// an error; extensions own their kinds exclusively.
func (r *Registry) Register(def *EntityDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Kind]; exists {
		return fmt.Errorf("entity kind %q already registered", def.Kind)
	}
	r.defs[def.Kind] = def
	return nil
}

// Get returns the definition for a kind
func (r *Registry) Get(kind string) (*EntityDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// ByPlural resolves a kind from its plural name, used by the batch-create
// payload shape
func (r *Registry) ByPlural(plural string) (*EntityDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.defs {
		if def.Plural == plural {
			return def, true
		}
	}
	return nil, false
}

// All returns every definition sorted by kind for deterministic iteration
func (r *Registry) All() []*EntityDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EntityDef, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// SeedOrder returns definitions topologically sorted so that every kind comes
// after the kinds it references. Kinds referencing unregistered kinds keep
// their position; a reference cycle is an error.
func (r *Registry) SeedOrder() ([]*EntityDef, error) {
	defs := r.All()

	index := make(map[string]*EntityDef, len(defs))
	for _, def := range defs {
		index[def.Kind] = def
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(defs))
	order := make([]*EntityDef, 0, len(defs))

	var visit func(def *EntityDef) error
	visit = func(def *EntityDef) error {
		switch state[def.Kind] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("reference cycle involving entity kind %q", def.Kind)
		}
		state[def.Kind] = gray
		for _, ref := range def.References {
			if dep, ok := index[ref.Kind]; ok && dep.Kind != def.Kind {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[def.Kind] = black
		order = append(order, def)
		return nil
	}

	for _, def := range defs {
		if err := visit(def); err != nil {
			return nil, err
		}
	}
	return order, nil
}
