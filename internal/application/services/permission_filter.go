package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
)

// matchNothing is the predicate for principals with no conceivable path
const matchNothing = "1 = 0"

// GenerateFilter produces the row-level security predicate for bulk queries.
// It covers ownership, the created-by rules, team ownership and explicit
// grants. Reference inheritance is NOT expanded here; callers needing exact
// semantics post-filter results through Check.
func (ps *PermissionService) GenerateFilter(ctx context.Context, principalID string, def *schema.EntityDef, level models.AccessLevel) (ports.Predicate, error) {
	// ROOT sees everything
	if ps.ids.IsRoot(principalID) {
		return ports.Predicate{}, nil
	}

	tbl := def.Table
	col := func(name string) string { return fmt.Sprintf("`%s`.`%s`", tbl, name) }

	if def.System && level > models.LevelView && !ps.ids.IsSystem(principalID) {
		return ports.Predicate{SQL: matchNothing}, nil
	}

	var denies []string
	var grants []string
	var params []interface{}

	if def.Traits.Audit {
		// Rule d: ROOT-owned rows are hidden from everyone else
		denies = append(denies, fmt.Sprintf("%s <> ?", col(constants.FieldCreatedBy)))
		params = append(params, ps.ids.RootID)

		if !ps.ids.IsSystem(principalID) {
			if level > models.LevelView {
				denies = append(denies, fmt.Sprintf("%s <> ?", col(constants.FieldCreatedBy)))
				params = append(params, ps.ids.SystemID)
			}
			if level == models.LevelEdit || level == models.LevelDelete {
				denies = append(denies, fmt.Sprintf("%s <> ?", col(constants.FieldCreatedBy)))
				params = append(params, ps.ids.TemplateID)
			}
		}
	}

	// SYSTEM reads everything that survives the deny rules
	if ps.ids.IsSystem(principalID) {
		grants = append(grants, "1 = 1")
	}

	if def.Traits.Audit && !ps.ids.IsSystem(principalID) {
		// Rule e: SYSTEM-owned rows are world-visible at VIEW
		if level == models.LevelView {
			grants = append(grants, fmt.Sprintf("%s = ?", col(constants.FieldCreatedBy)))
			params = append(params, ps.ids.SystemID)
		}
		// Rule f: TEMPLATE-owned rows grant VIEW/EXECUTE/COPY/SHARE
		if level != models.LevelEdit && level != models.LevelDelete {
			grants = append(grants, fmt.Sprintf("%s = ?", col(constants.FieldCreatedBy)))
			params = append(params, ps.ids.TemplateID)
		}
	}

	if def.Traits.UserRef {
		grants = append(grants, fmt.Sprintf("%s = ?", col(constants.FieldUserID)))
		params = append(params, principalID)
	}

	if def.Traits.TeamRef {
		if sql, teamParams := ps.teamSubquery(col(constants.FieldTeamID), principalID, level); sql != "" {
			grants = append(grants, sql)
			params = append(params, teamParams...)
		}
	}

	grantSQL, grantParams, err := ps.grantSubquery(ctx, col(constants.FieldID), principalID, def.Kind, level)
	if err != nil {
		return ports.Predicate{}, err
	}
	grants = append(grants, grantSQL)
	params = append(params, grantParams...)

	if len(grants) == 0 {
		return ports.Predicate{SQL: matchNothing}, nil
	}

	clauses := append(denies, "("+strings.Join(grants, " OR ")+")")
	return ports.Predicate{
		SQL:    strings.Join(clauses, " AND "),
		Params: params,
	}, nil
}

// teamSubquery matches rows owned by any team reachable downward from the
// principal's sufficiently-roled memberships, bounded by the depth limit
func (ps *PermissionService) teamSubquery(teamCol, principalID string, level models.AccessLevel) (string, []interface{}) {
	roleIDs := ps.roles.SufficientRoleIDs(level.MinimumRole())
	if len(roleIDs) == 0 {
		return "", nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roleIDs)), ", ")
	sql := fmt.Sprintf(`%s IN (
		WITH RECURSIVE team_tree (id, depth) AS (
			SELECT ut.team_id, 0 FROM user_teams ut
			WHERE ut.user_id = ? AND ut.enabled = 1
			  AND (ut.expires_at IS NULL OR ut.expires_at > NOW())
			  AND ut.role_id IN (%s)
			UNION ALL
			SELECT t.id, tt.depth + 1 FROM teams t
			JOIN team_tree tt ON t.parent_team_id = tt.id
			WHERE tt.depth < ?
		)
		SELECT id FROM team_tree
	)`, teamCol, placeholders)

	params := make([]interface{}, 0, len(roleIDs)+2)
	params = append(params, principalID)
	for _, id := range roleIDs {
		params = append(params, id)
	}
	params = append(params, ps.ids.MaxTeamDepth)
	return sql, params
}

// grantSubquery matches rows carrying a live explicit grant reaching the
// principal directly, through an active team, or through a role
func (ps *PermissionService) grantSubquery(ctx context.Context, idCol, principalID, kind string, level models.AccessLevel) (string, []interface{}, error) {
	memberships, err := ps.activeMemberships(ctx, principalID)
	if err != nil {
		return "", nil, err
	}
	matchingRoles := make(map[string]bool)
	for _, m := range memberships {
		for _, roleID := range ps.roles.MatchingGrantRoleIDs(m.RoleID) {
			matchingRoles[roleID] = true
		}
	}

	subjects := []string{
		"(p.user_id IS NULL AND p.team_id IS NULL AND p.role_id IS NULL)",
		"p.user_id = ?",
		`p.team_id IN (
			SELECT ut.team_id FROM user_teams ut
			WHERE ut.user_id = ? AND ut.enabled = 1
			  AND (ut.expires_at IS NULL OR ut.expires_at > NOW())
		)`,
	}
	params := []interface{}{kind, principalID, principalID}

	if len(matchingRoles) > 0 {
		roleIDs := make([]string, 0, len(matchingRoles))
		for roleID := range matchingRoles {
			roleIDs = append(roleIDs, roleID)
		}
		sort.Strings(roleIDs)
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roleIDs)), ", ")
		subjects = append(subjects, fmt.Sprintf("p.role_id IN (%s)", placeholders))
		for _, roleID := range roleIDs {
			params = append(params, roleID)
		}
	}

	sql := fmt.Sprintf(`EXISTS (
		SELECT 1 FROM permissions p
		WHERE p.resource_kind = ? AND p.resource_id = %s
		  AND p.%s = 1
		  AND (p.expires_at IS NULL OR p.expires_at > NOW())
		  AND (%s)
	)`, idCol, level.GrantColumn(), strings.Join(subjects, " OR "))

	return sql, params, nil
}
