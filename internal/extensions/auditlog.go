package extensions

import (
	"context"
	"time"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
	"github.com/tenantcore/backend/pkg/utils"
)

// KindAuditLogEntry is the audit trail kind contributed by this extension
const KindAuditLogEntry = "audit_log_entry"

// AuditLogExtension records every mutation as a row in audit_log_entries.
// The hooks are non-critical: a failed audit write is logged, never fails
// the mutation itself.
type AuditLogExtension struct{}

func (e *AuditLogExtension) Name() string { return "audit-log" }
func (e *AuditLogExtension) Version() string { return "1.0.0" }
func (e *AuditLogExtension) Description() string { return "mutation audit trail" }

// Optional dependencies only order loading: when the kind-contributing
// extensions are enabled, audit-log loads after them and sees their kinds
func (e *AuditLogExtension) Dependencies() []services.ExtDependency {
	return []services.ExtDependency{
		{Name: "projects", Optional: true},
		{Name: "conversations", Optional: true},
	}
}

func (e *AuditLogExtension) Abilities() map[string]services.Ability { return nil }

func (e *AuditLogExtension) Initialize(ctx context.Context, host *services.ExtensionHost) error {
	auditDef := &schema.EntityDef{
		Kind:   KindAuditLogEntry,
		Plural: "audit_log_entries",
		Table:  constants.TableAuditLogEntries,
		System: true,
		Fields: []schema.Field{
			{Name: "entity_kind", Type: schema.FieldTypeString, Required: true},
			{Name: "entity_id", Type: schema.FieldTypeUUID, Required: true},
			{Name: "op", Type: schema.FieldTypeString, Required: true},
			{Name: "actor_id", Type: schema.FieldTypeUUID, Required: true},
			{Name: "occurred_at", Type: schema.FieldTypeDate, Required: true},
		},
	}
	if err := host.Entities().Registry().Register(auditDef); err != nil {
		return err
	}

	record := func(ctx context.Context, hc *services.HookContext) error {
		entityID := ""
		if hc.Record != nil {
			entityID = hc.Record.ID()
		}
		if entityID == "" && hc.Previous != nil {
			entityID = hc.Previous.ID()
		}
		entry := models.Record{
			constants.FieldID: utils.GenerateID(),
			"entity_kind":     hc.Kind,
			"entity_id":       entityID,
			"op":              string(hc.Op),
			"actor_id":        hc.RequesterID,
			"occurred_at":     time.Now(),
		}
		return host.Entities().Store().Insert(ctx, auditDef, entry)
	}

	for _, def := range host.Entities().Registry().All() {
		if def.Kind == KindAuditLogEntry || def.Kind == constants.KindPermission {
			continue
		}
		for _, op := range []services.Op{services.OpCreate, services.OpUpdate, services.OpDelete} {
			if err := host.RegisterHook(def.Kind, op, services.PhaseAfter, "audit-"+string(op), true, record); err != nil {
				return err
			}
		}
	}
	return nil
}
