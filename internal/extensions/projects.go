// Package extensions holds the built-in extensions shipped with the server.
// Each one goes through the same loader as external extensions; nothing here
// touches the pipeline except through the extension host.
package extensions

import (
	"context"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
)

// ProjectsExtension contributes the user-scoped project kind
type ProjectsExtension struct{}

func (e *ProjectsExtension) Name() string { return "projects" }
func (e *ProjectsExtension) Version() string { return "1.0.0" }
func (e *ProjectsExtension) Description() string { return "user and team scoped projects" }

func (e *ProjectsExtension) Dependencies() []services.ExtDependency { return nil }

func (e *ProjectsExtension) Abilities() map[string]services.Ability { return nil }

func (e *ProjectsExtension) Initialize(ctx context.Context, host *services.ExtensionHost) error {
	def := &schema.EntityDef{
		Kind:   "project",
		Plural: "projects",
		Table:  "projects",
		Traits: schema.Traits{Audit: true, UpdateAudit: true, SoftDelete: true, UserRef: true, TeamRef: true, Image: true},
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldTypeString, Required: true},
			{Name: "description", Type: schema.FieldTypeText},
			{Name: "status", Type: schema.FieldTypeString},
			{Name: "due_date", Type: schema.FieldTypeDate},
			{Name: "archived", Type: schema.FieldTypeBool},
		},
		ValidationRules: []schema.ValidationRule{
			{Expr: `record.status == nil || record.status in ["active", "on_hold", "done"]`, Message: "status must be active, on_hold or done"},
		},
	}
	if err := host.Entities().Registry().Register(def); err != nil {
		return err
	}

	if err := host.RegisterHook("project", services.OpCreate, services.PhaseBefore, "default-status", false,
		func(ctx context.Context, hc *services.HookContext) error {
			if hc.Draft.GetString("status") == "" {
				hc.Draft["status"] = "active"
			}
			return nil
		}); err != nil {
		return err
	}

	// overdue=true expands to a due-date window instead of a stored column
	host.RegisterSearchTransformer("project", "overdue", func(value interface{}) ([]ports.Predicate, error) {
		want, _ := value.(bool)
		if !want {
			return nil, nil
		}
		return []ports.Predicate{
			{SQL: "`projects`.`due_date` IS NOT NULL AND `projects`.`due_date` <= NOW()"},
			{SQL: "(`projects`.`archived` IS NULL OR `projects`.`archived` = 0)"},
		}, nil
	})
	return nil
}
