package services

import (
	"context"
	"log"
	"sync"

	"github.com/tenantcore/backend/internal/domain/ports"
)

// RoleHierarchyService caches the role forest. Parents are the more powerful
// end: a role dominates another iff it is an ancestor of it or the same role.
// The cache is loaded once at startup and refreshed explicitly when roles
// change; readers see a consistent snapshot.
type RoleHierarchyService struct {
	auth ports.AuthStore

	mu      sync.RWMutex
	parents map[string]*string // role id -> parent role id
	names   map[string]string  // role id -> name
	byName  map[string]string  // name -> role id
}

// NewRoleHierarchyService creates the service and loads the initial cache
func NewRoleHierarchyService(auth ports.AuthStore) *RoleHierarchyService {
	rh := &RoleHierarchyService{auth: auth}
	rh.Refresh(context.Background())
	return rh
}

// Refresh reloads the role hierarchy cache. Call this when roles are modified.
func (rh *RoleHierarchyService) Refresh(ctx context.Context) {
	roles, err := rh.auth.ListRoles(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load role hierarchy: %v", err)
		return
	}

	parents := make(map[string]*string, len(roles))
	names := make(map[string]string, len(roles))
	byName := make(map[string]string, len(roles))
	for _, role := range roles {
		parents[role.ID] = role.ParentRoleID
		names[role.ID] = role.Name
		byName[role.Name] = role.ID
	}

	rh.mu.Lock()
	rh.parents = parents
	rh.names = names
	rh.byName = byName
	rh.mu.Unlock()
}

// Ancestors returns all ancestor role IDs for a role, nearest first
func (rh *RoleHierarchyService) Ancestors(roleID string) []string {
	rh.mu.RLock()
	defer rh.mu.RUnlock()

	ancestors := make([]string, 0)
	visited := map[string]bool{roleID: true}

	currentID := roleID
	for {
		parentID, exists := rh.parents[currentID]
		if !exists || parentID == nil {
			break
		}
		if visited[*parentID] {
			// Should not happen; the forest is acyclic by construction
			log.Printf("⚠️  Circular role hierarchy detected at %s", *parentID)
			break
		}
		visited[*parentID] = true
		ancestors = append(ancestors, *parentID)
		currentID = *parentID
	}

	return ancestors
}

// Dominates reports whether role a is an ancestor of role b or equal to it
func (rh *RoleHierarchyService) Dominates(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	for _, ancestor := range rh.Ancestors(b) {
		if ancestor == a {
			return true
		}
	}
	return false
}

// RoleID resolves a role name to its ID
func (rh *RoleHierarchyService) RoleID(name string) (string, bool) {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	id, ok := rh.byName[name]
	return id, ok
}

// RoleName resolves a role ID to its name
func (rh *RoleHierarchyService) RoleName(id string) (string, bool) {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	name, ok := rh.names[id]
	return name, ok
}

// Satisfies reports whether the role meets the named minimum: the role must
// dominate the minimum role
func (rh *RoleHierarchyService) Satisfies(roleID, minRoleName string) bool {
	minID, ok := rh.RoleID(minRoleName)
	if !ok {
		return false
	}
	return rh.Dominates(roleID, minID)
}

// SufficientRoleIDs returns every role ID that satisfies the named minimum:
// the minimum role itself plus all of its ancestors. Used to parameterize
// the list-time security predicate.
func (rh *RoleHierarchyService) SufficientRoleIDs(minRoleName string) []string {
	minID, ok := rh.RoleID(minRoleName)
	if !ok {
		return nil
	}
	return append([]string{minID}, rh.Ancestors(minID)...)
}

// MatchingGrantRoleIDs returns the role IDs a grant may name to reach a
// principal holding roleID: the role itself and every role dominating it.
func (rh *RoleHierarchyService) MatchingGrantRoleIDs(roleID string) []string {
	if roleID == "" {
		return nil
	}
	return append([]string{roleID}, rh.Ancestors(roleID)...)
}
