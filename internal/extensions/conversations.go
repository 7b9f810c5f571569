package extensions

import (
	"context"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/schema"
)

// ConversationsExtension contributes threaded conversations attached to
// projects. It requires the projects extension; access to a conversation
// follows access to its project.
type ConversationsExtension struct{}

func (e *ConversationsExtension) Name() string { return "conversations" }
func (e *ConversationsExtension) Version() string { return "1.2.0" }
func (e *ConversationsExtension) Description() string { return "threaded conversations on projects" }

func (e *ConversationsExtension) Dependencies() []services.ExtDependency {
	return []services.ExtDependency{
		{Name: "projects", Constraint: ">=1.0.0"},
	}
}

func (e *ConversationsExtension) Abilities() map[string]services.Ability { return nil }

func (e *ConversationsExtension) Initialize(ctx context.Context, host *services.ExtensionHost) error {
	def := &schema.EntityDef{
		Kind:   "conversation",
		Plural: "conversations",
		Table:  "conversations",
		Traits: schema.Traits{Audit: true, UpdateAudit: true, SoftDelete: true, UserRef: true, TeamRef: true},
		Fields: []schema.Field{
			{Name: "title", Type: schema.FieldTypeString},
			{Name: "summary", Type: schema.FieldTypeText},
		},
		References: []schema.Reference{
			{Name: "project", Kind: "project", Column: "project_id", Optional: true},
			{Name: "parent", Kind: "conversation", Column: "parent_id", Optional: true},
		},
		CreateReference: "project",
	}
	if err := host.Entities().Registry().Register(def); err != nil {
		return err
	}

	return host.RegisterHook("conversation", services.OpCreate, services.PhaseBefore, "default-title", false,
		func(ctx context.Context, hc *services.HookContext) error {
			if hc.Draft.GetString("title") == "" {
				hc.Draft["title"] = "Untitled conversation"
			}
			return nil
		})
}
