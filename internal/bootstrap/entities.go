// Package bootstrap registers the core entity kinds and their seed rows.
// Everything the framework itself needs lives here; domain kinds come from
// extensions.
package bootstrap

import (
	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
)

// Seed ID for the built-in provider row
const SeedProviderDefault = constants.SeedIDPrefix + "-0000-000000000001"

// RegisterCoreEntities declares the framework's own kinds: principals, teams,
// the role forest, memberships, grants and providers
func RegisterCoreEntities(registry *schema.Registry, ids services.SystemIdentity) error {
	defs := []*schema.EntityDef{
		userDef(ids),
		teamDef(),
		roleDef(),
		membershipDef(),
		permissionDef(),
		providerDef(ids),
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func userDef(ids services.SystemIdentity) *schema.EntityDef {
	return &schema.EntityDef{
		Kind:   constants.KindUser,
		Plural: "users",
		Table:  constants.TableUsers,
		Traits: schema.Traits{Audit: true, UpdateAudit: true, SoftDelete: true, Image: true},
		Fields: []schema.Field{
			{Name: "email", Type: schema.FieldTypeString, Required: true, Unique: true},
			{Name: "display_name", Type: schema.FieldTypeString},
			{Name: "password_hash", Type: schema.FieldTypeString},
			{Name: "active", Type: schema.FieldTypeBool},
		},
		ValidationRules: []schema.ValidationRule{
			{Expr: `record.email == nil || record.email contains "@"`, Message: "email must be a valid address"},
		},
		SeedList: func() []schema.Seed {
			return []schema.Seed{
				{ID: ids.RootID, Values: models.Record{
					"email": "root@localhost", "display_name": "Root", "active": true,
				}},
				{ID: ids.SystemID, Values: models.Record{
					"email": "system@localhost", "display_name": "System", "active": true,
				}},
				{ID: ids.TemplateID, Values: models.Record{
					"email": "template@localhost", "display_name": "Template", "active": true,
				}},
			}
		},
	}
}

func teamDef() *schema.EntityDef {
	return &schema.EntityDef{
		Kind:   constants.KindTeam,
		Plural: "teams",
		Table:  constants.TableTeams,
		Traits: schema.Traits{Audit: true, UpdateAudit: true, SoftDelete: true, Image: true},
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldTypeString, Required: true},
			{Name: "description", Type: schema.FieldTypeText},
		},
		References: []schema.Reference{
			// Access to a parent team carries down to its children
			{Name: "parent", Kind: constants.KindTeam, Column: "parent_team_id", Optional: true},
		},
	}
}

func roleDef() *schema.EntityDef {
	return &schema.EntityDef{
		Kind:   constants.KindRole,
		Plural: "roles",
		Table:  constants.TableRoles,
		System: true,
		Traits: schema.Traits{Audit: true},
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldTypeString, Required: true, Unique: true},
			{Name: "parent_role_id", Type: schema.FieldTypeUUID},
		},
		SeedList: func() []schema.Seed {
			return []schema.Seed{
				{ID: constants.RoleIDSuperadmin, Values: models.Record{
					"name": constants.RoleSuperadmin, "parent_role_id": nil,
				}},
				{ID: constants.RoleIDAdmin, Values: models.Record{
					"name": constants.RoleAdmin, "parent_role_id": constants.RoleIDSuperadmin,
				}},
				{ID: constants.RoleIDUser, Values: models.Record{
					"name": constants.RoleUser, "parent_role_id": constants.RoleIDAdmin,
				}},
			}
		},
	}
}

func membershipDef() *schema.EntityDef {
	return &schema.EntityDef{
		Kind:   constants.KindMembership,
		Plural: "user_teams",
		Table:  constants.TableUserTeams,
		Traits: schema.Traits{Audit: true},
		Fields: []schema.Field{
			{Name: constants.FieldUserID, Type: schema.FieldTypeUUID, Required: true},
			{Name: "enabled", Type: schema.FieldTypeBool},
			{Name: "expires_at", Type: schema.FieldTypeDate},
		},
		References: []schema.Reference{
			{Name: "team", Kind: constants.KindTeam, Column: constants.FieldTeamID},
			{Name: "role", Kind: constants.KindRole, Column: "role_id"},
		},
		// Adding someone to a team requires EDIT on that team
		CreateReference: "team",
		ValidationRules: []schema.ValidationRule{
			{Expr: `record.role_id == nil || record.role_id != ""`, Message: "membership role must not be blank"},
		},
	}
}

func permissionDef() *schema.EntityDef {
	return &schema.EntityDef{
		Kind:   constants.KindPermission,
		Plural: "permissions",
		Table:  constants.TablePermissions,
		System: true,
		Traits: schema.Traits{Audit: true},
		Fields: []schema.Field{
			{Name: "resource_kind", Type: schema.FieldTypeString, Required: true},
			{Name: "resource_id", Type: schema.FieldTypeUUID, Required: true},
			{Name: constants.FieldUserID, Type: schema.FieldTypeUUID},
			{Name: constants.FieldTeamID, Type: schema.FieldTypeUUID},
			{Name: "role_id", Type: schema.FieldTypeUUID},
			{Name: "can_view", Type: schema.FieldTypeBool},
			{Name: "can_execute", Type: schema.FieldTypeBool},
			{Name: "can_copy", Type: schema.FieldTypeBool},
			{Name: "can_edit", Type: schema.FieldTypeBool},
			{Name: "can_delete", Type: schema.FieldTypeBool},
			{Name: "can_share", Type: schema.FieldTypeBool},
			{Name: "expires_at", Type: schema.FieldTypeDate},
		},
	}
}

// providerDef is a system kind: every principal may view providers, only
// ROOT/SYSTEM may change them
func providerDef(ids services.SystemIdentity) *schema.EntityDef {
	return &schema.EntityDef{
		Kind:   constants.KindProvider,
		Plural: "providers",
		Table:  "providers",
		System: true,
		Traits: schema.Traits{Audit: true, UpdateAudit: true, SoftDelete: true, Image: true},
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldTypeString, Required: true, Unique: true},
			{Name: "base_url", Type: schema.FieldTypeString},
			{Name: "enabled", Type: schema.FieldTypeBool},
		},
		SeedList: func() []schema.Seed {
			return []schema.Seed{
				{ID: SeedProviderDefault, Values: models.Record{
					"name": "default", "base_url": "", "enabled": true,
				}},
			}
		},
	}
}
