// Package schema declares entity kinds as data. An EntityDef is the single
// source of truth the pipeline, the permission engine and the seeder inspect:
// composable traits instead of inheritance chains, declared permission
// references instead of ad-hoc joins.
package schema

import (
	"fmt"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/pkg/constants"
)

// FieldType enumerates the scalar types a declared field can take
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeBool   FieldType = "bool"
	FieldTypeDate   FieldType = "date"
	FieldTypeUUID   FieldType = "uuid"
)

// Field declares one column beyond the trait-provided ones
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Unique   bool
}

// Traits are the composable behaviors of an entity kind. The pipeline reads
// them directly; there is no virtual dispatch.
type Traits struct {
	Audit       bool // created_at, created_by_user_id
	UpdateAudit bool // updated_at, updated_by_user_id
	SoftDelete  bool // deleted_at, deleted_by_user_id
	UserRef     bool // user_id direct owner
	TeamRef     bool // team_id team owner
	Parent      bool // parent_id self-reference
	Image       bool // image_url
}

// Reference is a declared permission reference: a foreign key whose target's
// access contributes to this entity's access.
type Reference struct {
	Name     string // relation name exposed to callers
	Kind     string // referenced entity kind
	Column   string // FK column on this table
	Optional bool   // NULL FK is skipped during evaluation
}

// Seed is one declarative initial row, inserted idempotently by ID
type Seed struct {
	ID     string
	Values models.Record
}

// EntityDef describes one managed entity kind
type EntityDef struct {
	Kind   string // singular name, e.g. "project"
	Plural string // e.g. "projects"
	Table  string
	System bool // only ROOT/SYSTEM may mutate records of this kind

	Traits     Traits
	Fields     []Field
	References []Reference

	// CreateReference names the single reference whose EDIT access governs
	// creation. Empty when creation is governed by ownership alone. Must be
	// one of References.
	CreateReference string

	// SeedList returns the rows to insert at startup; nil for none
	SeedList func() []Seed

	// ValidationRules are boolean expressions evaluated against the draft
	// (and the requester) before any I/O. A rule evaluating to false fails
	// the operation with its message.
	ValidationRules []ValidationRule
}

// ValidationRule pairs a compiled-once expression with its failure message
type ValidationRule struct {
	Expr    string
	Message string
}

// Validate checks internal consistency of the definition
func (d *EntityDef) Validate() error {
	if d.Kind == "" || d.Table == "" {
		return fmt.Errorf("entity definition missing kind or table")
	}
	if d.Plural == "" {
		d.Plural = d.Kind + "s"
	}
	if d.CreateReference != "" {
		if _, ok := d.Reference(d.CreateReference); !ok {
			return fmt.Errorf("entity %s: create reference %q is not a declared reference", d.Kind, d.CreateReference)
		}
	}
	seen := make(map[string]bool)
	for _, ref := range d.References {
		if seen[ref.Name] {
			return fmt.Errorf("entity %s: duplicate reference %q", d.Kind, ref.Name)
		}
		seen[ref.Name] = true
	}
	return nil
}

// Reference looks up a declared reference by name
func (d *EntityDef) Reference(name string) (Reference, bool) {
	for _, ref := range d.References {
		if ref.Name == name {
			return ref, true
		}
	}
	return Reference{}, false
}

// Columns returns every legal column for the kind, traits included
func (d *EntityDef) Columns() []string {
	cols := []string{constants.FieldID}
	for _, f := range d.Fields {
		cols = append(cols, f.Name)
	}
	if d.Traits.Audit {
		cols = append(cols, constants.FieldCreatedAt, constants.FieldCreatedBy)
	}
	if d.Traits.UpdateAudit {
		cols = append(cols, constants.FieldUpdatedAt, constants.FieldUpdatedBy)
	}
	if d.Traits.SoftDelete {
		cols = append(cols, constants.FieldDeletedAt, constants.FieldDeletedBy)
	}
	if d.Traits.UserRef {
		cols = append(cols, constants.FieldUserID)
	}
	if d.Traits.TeamRef {
		cols = append(cols, constants.FieldTeamID)
	}
	if d.Traits.Parent {
		cols = append(cols, constants.FieldParentID)
	}
	if d.Traits.Image {
		cols = append(cols, constants.FieldImageURL)
	}
	for _, ref := range d.References {
		cols = append(cols, ref.Column)
	}
	return cols
}

// HasColumn reports whether name is a legal column for the kind
func (d *EntityDef) HasColumn(name string) bool {
	for _, c := range d.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// FieldByName looks up a declared field
func (d *EntityDef) FieldByName(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
