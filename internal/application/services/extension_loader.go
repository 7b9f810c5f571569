package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// ExtDependency declares one extension dependency. Optional dependencies are
// silently dropped when absent or version-unsatisfied; missing required
// dependencies make the dependent unloadable without failing the loader.
type ExtDependency struct {
	Name     string
	Optional bool
	// Constraint is a minimal version bound like ">=1.2.0"; empty accepts
	// any version
	Constraint string
}

// Ability is a named callable exposed by an extension
type Ability func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Extension is the contract compiled-in extensions implement. The enabled
// set is selected by APP_EXTENSIONS.
type Extension interface {
	Name() string
	Version() string
	Description() string
	Dependencies() []ExtDependency
	Initialize(ctx context.Context, host *ExtensionHost) error
	Abilities() map[string]Ability
}

// ExtensionHost is what an extension sees during initialization: scoped
// registration into the shared registries.
type ExtensionHost struct {
	extID      string
	entities   *EntityService
	supervisor *Supervisor
}

// Entities exposes the entity service so extensions can register kinds and
// obtain managers
func (h *ExtensionHost) Entities() *EntityService {
	return h.entities
}

// RegisterHook attaches a pipeline hook owned by this extension
func (h *ExtensionHost) RegisterHook(kind string, op Op, phase Phase, hookID string, nonCritical bool, fn HookFunc) error {
	return h.entities.Hooks().Register(kind, op, phase, Hook{
		ExtensionID: h.extID,
		HookID:      hookID,
		NonCritical: nonCritical,
		Fn:          fn,
	})
}

// RegisterSearchTransformer attaches a search transformer owned by this extension
func (h *ExtensionHost) RegisterSearchTransformer(kind, param string, fn SearchTransformer) {
	h.entities.RegisterSearchTransformer(kind, param, fn)
}

// RegisterService registers a background service with the supervisor
func (h *ExtensionHost) RegisterService(svc Service) error {
	return h.supervisor.Register(svc)
}

// CycleError reports a dependency cycle, naming its members
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("extension dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// ExtensionLoader resolves, orders and initializes extensions
type ExtensionLoader struct {
	entities   *EntityService
	supervisor *Supervisor

	mu         sync.RWMutex
	available  map[string]Extension
	loaded     []Extension
	unloadable map[string]string // name -> reason
	abilities  map[string]Ability
}

// NewExtensionLoader creates a new ExtensionLoader
func NewExtensionLoader(entities *EntityService, supervisor *Supervisor) *ExtensionLoader {
	return &ExtensionLoader{
		entities:   entities,
		supervisor: supervisor,
		available:  make(map[string]Extension),
		unloadable: make(map[string]string),
		abilities:  make(map[string]Ability),
	}
}

// Register makes an extension available for loading
func (el *ExtensionLoader) Register(ext Extension) {
	el.mu.Lock()
	el.available[ext.Name()] = ext
	el.mu.Unlock()
}

// Load resolves the enabled extensions and initializes them in dependency
// order. An empty enabled list loads everything registered. A dependency
// cycle aborts; an unsatisfiable required dependency only disables the
// dependent.
func (el *ExtensionLoader) Load(ctx context.Context, enabled []string) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	selected := el.selectEnabled(enabled)

	order, err := el.resolve(selected)
	if err != nil {
		return err
	}

	for _, ext := range order {
		host := &ExtensionHost{extID: ext.Name(), entities: el.entities, supervisor: el.supervisor}
		if err := ext.Initialize(ctx, host); err != nil {
			return fmt.Errorf("extension %s failed to initialize: %w", ext.Name(), err)
		}
		for name, ability := range ext.Abilities() {
			el.abilities[ext.Name()+"."+name] = ability
		}
		el.loaded = append(el.loaded, ext)
		log.Printf("✅ Extension %s v%s loaded (%s)", ext.Name(), ext.Version(), ext.Description())
	}

	for name, reason := range el.unloadable {
		log.Printf("⚠️  Extension %s not loaded: %s", name, reason)
	}
	return nil
}

func (el *ExtensionLoader) selectEnabled(enabled []string) map[string]Extension {
	selected := make(map[string]Extension)
	if len(enabled) == 0 {
		for name, ext := range el.available {
			selected[name] = ext
		}
		return selected
	}
	for _, name := range enabled {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if ext, ok := el.available[name]; ok {
			selected[name] = ext
		} else {
			el.unloadable[name] = "not registered"
		}
	}
	return selected
}

// resolve drops extensions with unsatisfiable required dependencies (to a
// fixpoint, so dependents of dropped extensions drop too) and topologically
// sorts the rest with a deterministic name-ordered Kahn walk
func (el *ExtensionLoader) resolve(selected map[string]Extension) ([]Extension, error) {
	for changed := true; changed; {
		changed = false
		for name, ext := range selected {
			for _, dep := range ext.Dependencies() {
				target, present := selected[dep.Name]
				satisfied := present && versionSatisfies(target.Version(), dep.Constraint)
				if satisfied || dep.Optional {
					continue
				}
				reason := fmt.Sprintf("required dependency %s is missing", dep.Name)
				if present {
					reason = fmt.Sprintf("required dependency %s v%s does not satisfy %s", dep.Name, target.Version(), dep.Constraint)
				}
				el.unloadable[name] = reason
				delete(selected, name)
				changed = true
				break
			}
		}
	}

	// Kahn's algorithm; ready set kept name-sorted for stable output
	indegree := make(map[string]int, len(selected))
	dependents := make(map[string][]string, len(selected))
	for name, ext := range selected {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range ext.Dependencies() {
			if _, present := selected[dep.Name]; !present {
				continue // dropped optional edge
			}
			indegree[name]++
			dependents[dep.Name] = append(dependents[dep.Name], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []Extension
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, selected[name])
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
	}

	if len(order) != len(selected) {
		var cycle []string
		for name, n := range indegree {
			if n > 0 {
				cycle = append(cycle, name)
			}
		}
		sort.Strings(cycle)
		return nil, &CycleError{Cycle: cycle}
	}
	return order, nil
}

// Loaded returns the initialized extensions in load order
func (el *ExtensionLoader) Loaded() []Extension {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]Extension, len(el.loaded))
	copy(out, el.loaded)
	return out
}

// Unloadable returns the extensions that could not load, with reasons
func (el *ExtensionLoader) Unloadable() map[string]string {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make(map[string]string, len(el.unloadable))
	for k, v := range el.unloadable {
		out[k] = v
	}
	return out
}

// ExecuteAbility invokes a named ability of a loaded extension
func (el *ExtensionLoader) ExecuteAbility(ctx context.Context, extID, name string, args map[string]interface{}) (interface{}, error) {
	el.mu.RLock()
	ability, ok := el.abilities[extID+"."+name]
	el.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("ability", extID+"."+name)
	}
	return ability(ctx, args)
}

// versionSatisfies checks a version against a minimal-bound constraint.
// Versions are semver with or without the leading v.
func versionSatisfies(version, constraint string) bool {
	if constraint == "" {
		return true
	}
	op := ">="
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(constraint, candidate) {
			op = candidate
			constraint = strings.TrimPrefix(constraint, candidate)
			break
		}
	}
	v := canonicalVersion(version)
	c := canonicalVersion(strings.TrimSpace(constraint))
	if !semver.IsValid(v) || !semver.IsValid(c) {
		return false
	}
	cmp := semver.Compare(v, c)
	switch op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "=":
		return cmp == 0
	}
	return false
}

func canonicalVersion(v string) string {
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
