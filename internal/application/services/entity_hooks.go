package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/tenantcore/backend/internal/domain/models"
)

// Op names a pipeline operation
type Op string

const (
	OpCreate Op = "create"
	OpGet    Op = "get"
	OpList   Op = "list"
	OpSearch Op = "search"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Phase is the hook phase relative to persistence
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// HookContext is what a hook sees. Before-hooks may mutate Draft; after-hooks
// receive the resulting Record and, for update, the Previous pre-image.
type HookContext struct {
	Kind        string
	Op          Op
	RequesterID string
	Draft       models.Record
	Record      models.Record
	Previous    models.Record
}

// HookFunc is a pipeline callback. Returning an error from a before-hook
// aborts the operation; from a critical after-hook it rolls the transaction
// back.
type HookFunc func(ctx context.Context, hc *HookContext) error

// Hook is one registered callback
type Hook struct {
	// ExtensionID is empty for core hooks, which always run before
	// extension hooks of the same phase
	ExtensionID string
	// HookID deduplicates registration: registering the same
	// (extension, op, phase, hook id) twice is a no-op
	HookID      string
	NonCritical bool
	Fn          HookFunc
}

type hookKey struct {
	kind  string
	op    Op
	phase Phase
}

type registeredHook struct {
	Hook
	seq int
}

// HookRegistry is the process-wide hook table. It accepts registrations
// during bootstrap and extension load, then is sealed and becomes read-only;
// sealed reads take no lock contention of note.
type HookRegistry struct {
	mu     sync.RWMutex
	hooks  map[hookKey][]registeredHook
	seq    int
	sealed bool
}

// NewHookRegistry creates an empty registry
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[hookKey][]registeredHook)}
}

// Register attaches a hook to (kind, op, phase). Registration is idempotent
// by (extension id, op, phase, hook id).
func (hr *HookRegistry) Register(kind string, op Op, phase Phase, hook Hook) error {
	if hook.Fn == nil {
		return fmt.Errorf("hook %q for %s.%s.%s has no function", hook.HookID, kind, op, phase)
	}
	if hook.HookID == "" {
		return fmt.Errorf("hook for %s.%s.%s has no id", kind, op, phase)
	}

	hr.mu.Lock()
	defer hr.mu.Unlock()

	if hr.sealed {
		return fmt.Errorf("hook registry is sealed; cannot register %q for %s.%s.%s", hook.HookID, kind, op, phase)
	}

	key := hookKey{kind: kind, op: op, phase: phase}
	for _, existing := range hr.hooks[key] {
		if existing.ExtensionID == hook.ExtensionID && existing.HookID == hook.HookID {
			return nil
		}
	}

	hr.seq++
	hr.hooks[key] = append(hr.hooks[key], registeredHook{Hook: hook, seq: hr.seq})
	return nil
}

// Seal freezes the registry. Called once after extension loading completes.
func (hr *HookRegistry) Seal() {
	hr.mu.Lock()
	hr.sealed = true
	hr.mu.Unlock()
}

// resolve returns the hooks for a key in execution order: core hooks first,
// then extension hooks, registration order within each group
func (hr *HookRegistry) resolve(kind string, op Op, phase Phase) []registeredHook {
	hr.mu.RLock()
	defer hr.mu.RUnlock()

	src := hr.hooks[hookKey{kind: kind, op: op, phase: phase}]
	out := make([]registeredHook, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		iCore := out[i].ExtensionID == ""
		jCore := out[j].ExtensionID == ""
		if iCore != jCore {
			return iCore
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Run executes the hooks for (kind, op, phase) in order. Before-phase errors
// abort immediately. After-phase errors abort unless the failing hook is
// non-critical, in which case the error is logged and execution continues.
func (hr *HookRegistry) Run(ctx context.Context, phase Phase, hc *HookContext) error {
	for _, hook := range hr.resolve(hc.Kind, hc.Op, phase) {
		if err := hook.Fn(ctx, hc); err != nil {
			if phase == PhaseAfter && hook.NonCritical {
				log.Printf("⚠️  Non-critical after hook %s/%s failed on %s.%s: %v",
					hook.ExtensionID, hook.HookID, hc.Kind, hc.Op, err)
				continue
			}
			return err
		}
	}
	return nil
}

// Clear removes all hooks and unseals the registry (useful for testing)
func (hr *HookRegistry) Clear() {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.hooks = make(map[hookKey][]registeredHook)
	hr.sealed = false
	hr.seq = 0
}
