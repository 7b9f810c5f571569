package services

import (
	"context"
	"time"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
	apperrors "github.com/tenantcore/backend/pkg/errors"
	"github.com/tenantcore/backend/pkg/utils"
)

// PermissionService is the reference-aware permission engine. Check walks an
// ordered rule ladder for one record; GenerateFilter (permission_filter.go)
// produces the equivalent row-level predicate for bulk queries, minus
// reference inheritance.
type PermissionService struct {
	ids      SystemIdentity
	registry *schema.Registry
	records  ports.RecordStore
	auth     ports.AuthStore
	roles    *RoleHierarchyService

	// now is injectable for expiry tests
	now func() time.Time
}

// NewPermissionService creates a new PermissionService
func NewPermissionService(ids SystemIdentity, registry *schema.Registry, records ports.RecordStore, auth ports.AuthStore, roles *RoleHierarchyService) *PermissionService {
	return &PermissionService{
		ids:      ids,
		registry: registry,
		records:  records,
		auth:     auth,
		roles:    roles,
		now:      time.Now,
	}
}

// Check decides whether the principal holds the access level on one record.
// nil means granted; a typed error carries the denial. The first granting
// rule wins; denials from terminal rules are final except that declared
// permission references may still grant.
func (ps *PermissionService) Check(ctx context.Context, principalID, kind, recordID string, level models.AccessLevel) error {
	visited := make(map[string]bool)
	return ps.check(ctx, principalID, kind, recordID, level, visited)
}

func (ps *PermissionService) check(ctx context.Context, principalID, kind, recordID string, level models.AccessLevel, visited map[string]bool) error {
	key := kind + "/" + recordID
	if visited[key] {
		// Reference cycle: this path cannot grant
		return apperrors.NewPermissionError(level.String(), kind)
	}
	visited[key] = true

	// ROOT bypasses everything, deleted rows included
	if ps.ids.IsRoot(principalID) {
		return nil
	}

	def, ok := ps.registry.Get(kind)
	if !ok {
		return apperrors.NewNotFoundError(kind, recordID)
	}

	rec, err := ps.records.GetByID(ctx, def, recordID, true)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError(kind, recordID)
		}
		return err
	}
	if rec.IsDeleted() {
		return apperrors.NewNotFoundError(kind, recordID)
	}

	if def.System && level > models.LevelView && !ps.ids.IsPrivileged(principalID) {
		return &apperrors.PermissionError{Action: level.String(), Resource: kind, Reason: "system kind"}
	}

	createdBy := rec.CreatedBy()
	switch {
	case ps.ids.IsRoot(createdBy):
		return &apperrors.PermissionError{Action: level.String(), Resource: kind, Reason: "root-owned"}

	case ps.ids.IsSystem(createdBy):
		if level <= models.LevelView || ps.ids.IsSystem(principalID) {
			return nil
		}
		return &apperrors.PermissionError{Action: level.String(), Resource: kind, Reason: "system-owned"}

	case ps.ids.IsTemplate(createdBy):
		if level == models.LevelEdit || level == models.LevelDelete {
			if ps.ids.IsSystem(principalID) {
				return nil
			}
			return &apperrors.PermissionError{Action: level.String(), Resource: kind, Reason: "template-owned"}
		}
		return nil
	}

	if def.Traits.UserRef && rec.OwnerUserID() != "" && rec.OwnerUserID() == principalID {
		return nil
	}

	memberships, err := ps.activeMemberships(ctx, principalID)
	if err != nil {
		return err
	}

	if granted, err := ps.teamRuleGrants(ctx, def, rec, memberships, level); err != nil {
		return err
	} else if granted {
		return nil
	}

	if granted, err := ps.grantRuleGrants(ctx, principalID, kind, recordID, memberships, level); err != nil {
		return err
	} else if granted {
		return nil
	}

	// Reference inheritance: ANY declared reference granting the level grants
	for _, ref := range def.References {
		refID := rec.GetString(ref.Column)
		if refID == "" {
			continue
		}
		if err := ps.check(ctx, principalID, ref.Kind, refID, level, visited); err == nil {
			return nil
		} else if !apperrors.IsPermission(err) && !apperrors.IsNotFound(err) {
			return err
		}
	}

	return apperrors.NewPermissionError(level.String(), kind)
}

// activeMemberships returns the principal's enabled, unexpired memberships
func (ps *PermissionService) activeMemberships(ctx context.Context, principalID string) ([]models.TeamMembership, error) {
	all, err := ps.auth.ListMemberships(ctx, principalID)
	if err != nil {
		return nil, err
	}
	now := ps.now()
	active := all[:0:0]
	for _, m := range all {
		if m.ActiveAt(now) {
			active = append(active, m)
		}
	}
	return active, nil
}

// teamRuleGrants evaluates team ownership: the record team's ancestor chain
// is walked nearest-first and only the nearest membership counts; its role
// must dominate the minimum role for the level.
func (ps *PermissionService) teamRuleGrants(ctx context.Context, def *schema.EntityDef, rec models.Record, memberships []models.TeamMembership, level models.AccessLevel) (bool, error) {
	if !def.Traits.TeamRef {
		return false, nil
	}
	teamID := rec.OwnerTeamID()
	if teamID == "" || len(memberships) == 0 {
		return false, nil
	}

	byTeam := make(map[string]models.TeamMembership, len(memberships))
	for _, m := range memberships {
		byTeam[m.TeamID] = m
	}

	chain, err := ps.auth.TeamAncestors(ctx, teamID, ps.ids.MaxTeamDepth)
	if err != nil {
		return false, err
	}
	for _, ancestorID := range chain {
		m, ok := byTeam[ancestorID]
		if !ok {
			continue
		}
		return ps.roles.Satisfies(m.RoleID, level.MinimumRole()), nil
	}
	return false, nil
}

// grantRuleGrants evaluates explicit grants for the principal, its active
// teams and any role dominating one of its roles
func (ps *PermissionService) grantRuleGrants(ctx context.Context, principalID, kind, recordID string, memberships []models.TeamMembership, level models.AccessLevel) (bool, error) {
	grants, err := ps.auth.GrantsFor(ctx, kind, recordID)
	if err != nil {
		return false, err
	}
	if len(grants) == 0 {
		return false, nil
	}

	teams := make(map[string]bool, len(memberships))
	matchingRoles := make(map[string]bool)
	for _, m := range memberships {
		teams[m.TeamID] = true
		for _, roleID := range ps.roles.MatchingGrantRoleIDs(m.RoleID) {
			matchingRoles[roleID] = true
		}
	}

	now := ps.now()
	for _, g := range grants {
		if !g.ActiveAt(now) || !g.Allows(level) {
			continue
		}
		switch {
		case g.IsGlobal():
			return true, nil
		case g.UserID != nil && *g.UserID == principalID:
			return true, nil
		case g.TeamID != nil && teams[*g.TeamID]:
			return true, nil
		case g.RoleID != nil && matchingRoles[*g.RoleID]:
			return true, nil
		}
	}
	return false, nil
}

// CanCreate decides whether the principal may create the draft. The create
// reference requires EDIT; every other declared reference present on the
// draft requires VIEW.
func (ps *PermissionService) CanCreate(ctx context.Context, principalID string, def *schema.EntityDef, draft models.Record) error {
	if ps.ids.IsPrivileged(principalID) {
		return nil
	}
	if def.System {
		return &apperrors.PermissionError{Action: "create", Resource: def.Kind, Reason: "system kind"}
	}

	for _, ref := range def.References {
		refID := draft.GetString(ref.Column)
		if refID == "" {
			if ref.Name == def.CreateReference && !ref.Optional {
				return apperrors.NewValidationError(ref.Column, "create reference is required")
			}
			continue
		}
		required := models.LevelView
		if ref.Name == def.CreateReference {
			required = models.LevelEdit
		}
		if err := ps.Check(ctx, principalID, ref.Kind, refID, required); err != nil {
			return err
		}
	}

	if def.Traits.UserRef {
		if owner := draft.GetString(constants.FieldUserID); owner != "" && owner != principalID {
			return &apperrors.PermissionError{Action: "create", Resource: def.Kind, Reason: "cannot create for another user"}
		}
	}

	if def.Traits.TeamRef {
		if teamID := draft.GetString(constants.FieldTeamID); teamID != "" {
			ok, err := ps.hasTeamRole(ctx, principalID, teamID, constants.RoleUser)
			if err != nil {
				return err
			}
			if !ok {
				return &apperrors.PermissionError{Action: "create", Resource: def.Kind, Reason: "not a member of the target team"}
			}
		}
	}

	return nil
}

// hasTeamRole reports whether the principal's nearest membership over the
// team satisfies the named minimum role
func (ps *PermissionService) hasTeamRole(ctx context.Context, principalID, teamID, minRole string) (bool, error) {
	memberships, err := ps.activeMemberships(ctx, principalID)
	if err != nil {
		return false, err
	}
	if len(memberships) == 0 {
		return false, nil
	}
	byTeam := make(map[string]models.TeamMembership, len(memberships))
	for _, m := range memberships {
		byTeam[m.TeamID] = m
	}
	chain, err := ps.auth.TeamAncestors(ctx, teamID, ps.ids.MaxTeamDepth)
	if err != nil {
		return false, err
	}
	for _, ancestorID := range chain {
		if m, ok := byTeam[ancestorID]; ok {
			return ps.roles.Satisfies(m.RoleID, minRole), nil
		}
	}
	return false, nil
}

// CreateGrant delegates access. The grantor needs SHARE on the target record;
// subject-less global grants are reserved to ROOT/SYSTEM.
func (ps *PermissionService) CreateGrant(ctx context.Context, principalID string, grant *models.Grant) error {
	if grant.ResourceKind == "" || grant.ResourceID == "" {
		return apperrors.NewValidationError("resource", "grant must name a resource")
	}
	if _, ok := ps.registry.Get(grant.ResourceKind); !ok {
		return apperrors.NewValidationError("resource_kind", "unknown entity kind")
	}
	subjects := 0
	if grant.UserID != nil {
		subjects++
	}
	if grant.TeamID != nil {
		subjects++
	}
	if grant.RoleID != nil {
		subjects++
	}
	if subjects > 1 {
		return apperrors.NewValidationError("subject", "grant must target at most one subject")
	}
	granted := false
	for _, level := range models.AccessLevels() {
		if grant.Allows(level) {
			granted = true
			break
		}
	}
	if !granted {
		return apperrors.NewValidationError("levels", "grant must allow at least one access level")
	}
	if grant.IsGlobal() && !ps.ids.IsPrivileged(principalID) {
		return &apperrors.PermissionError{Action: "share", Resource: grant.ResourceKind, Reason: "global grants are reserved"}
	}
	if !ps.ids.IsPrivileged(principalID) {
		if err := ps.Check(ctx, principalID, grant.ResourceKind, grant.ResourceID, models.LevelShare); err != nil {
			return err
		}
	}

	permDef, ok := ps.registry.Get(constants.KindPermission)
	if !ok {
		return apperrors.NewInternalError("permission kind not registered", nil)
	}

	grant.ID = utils.GenerateID()
	grant.CreatedAt = ps.now()
	grant.CreatedBy = principalID

	rec := models.Record{
		constants.FieldID:        grant.ID,
		"resource_kind":          grant.ResourceKind,
		"resource_id":            grant.ResourceID,
		constants.FieldUserID:    grant.UserID,
		constants.FieldTeamID:    grant.TeamID,
		"role_id":                grant.RoleID,
		"expires_at":             grant.ExpiresAt,
		constants.FieldCreatedAt: grant.CreatedAt,
		constants.FieldCreatedBy: grant.CreatedBy,
	}
	for _, level := range models.AccessLevels() {
		rec[level.GrantColumn()] = grant.Allows(level)
	}
	return ps.records.Insert(ctx, permDef, rec)
}

// RevokeGrant removes a grant row. The revoker needs SHARE on the target
// record; ROOT and SYSTEM may revoke anything.
func (ps *PermissionService) RevokeGrant(ctx context.Context, principalID, grantID string) error {
	permDef, ok := ps.registry.Get(constants.KindPermission)
	if !ok {
		return apperrors.NewInternalError("permission kind not registered", nil)
	}
	rec, err := ps.records.GetByID(ctx, permDef, grantID, false)
	if err != nil {
		return err
	}
	if !ps.ids.IsPrivileged(principalID) {
		kind := rec.GetString("resource_kind")
		resID := rec.GetString("resource_id")
		if err := ps.Check(ctx, principalID, kind, resID, models.LevelShare); err != nil {
			return err
		}
	}
	return ps.records.HardDelete(ctx, permDef, grantID)
}

// RefreshRoleHierarchy reloads the role hierarchy cache.
// Call this when roles are modified.
func (ps *PermissionService) RefreshRoleHierarchy(ctx context.Context) {
	ps.roles.Refresh(ctx)
}
