package services

import (
	"fmt"
	"time"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/schema"
	apperrors "github.com/tenantcore/backend/pkg/errors"
	"github.com/tenantcore/backend/pkg/expression"
	"github.com/tenantcore/backend/pkg/utils"
)

// ValidationService checks drafts against the entity definition: structural
// shape first (unknown columns, required fields, scalar types), then the
// kind's declarative rule expressions. All checks happen before any I/O.
type ValidationService struct {
	engine *expression.Engine
}

// NewValidationService creates a new ValidationService
func NewValidationService() *ValidationService {
	return &ValidationService{engine: expression.NewEngine()}
}

// CompileRules pre-compiles the rule expressions of a definition so syntax
// errors surface at registration, not first use
func (vs *ValidationService) CompileRules(def *schema.EntityDef) error {
	for _, rule := range def.ValidationRules {
		if err := vs.engine.Validate(rule.Expr); err != nil {
			return fmt.Errorf("entity %s: rule %q: %w", def.Kind, rule.Expr, err)
		}
	}
	return nil
}

// ValidateDraft validates a create draft (partial=false) or an update diff
// (partial=true)
func (vs *ValidationService) ValidateDraft(def *schema.EntityDef, draft models.Record, requesterID string, partial bool) error {
	if err := vs.validateShape(def, draft, partial); err != nil {
		return err
	}
	return vs.runRules(def, draft, requesterID)
}

func (vs *ValidationService) validateShape(def *schema.EntityDef, draft models.Record, partial bool) error {
	for key, value := range draft {
		if !def.HasColumn(key) {
			return apperrors.NewValidationError(key, "unknown field")
		}
		if field, ok := def.FieldByName(key); ok && value != nil {
			if err := checkScalar(field, value); err != nil {
				return err
			}
		}
	}

	if partial {
		return nil
	}

	for _, field := range def.Fields {
		if !field.Required {
			continue
		}
		if v, ok := draft[field.Name]; !ok || v == nil || v == "" {
			return apperrors.NewValidationError(field.Name, "required field is missing")
		}
	}
	return nil
}

func (vs *ValidationService) runRules(def *schema.EntityDef, draft models.Record, requesterID string) error {
	if len(def.ValidationRules) == 0 {
		return nil
	}

	env := map[string]interface{}{
		"record":       map[string]interface{}(draft),
		"requester_id": requesterID,
	}
	for _, rule := range def.ValidationRules {
		ok, err := vs.engine.EvaluateBool(rule.Expr, env)
		if err != nil {
			return apperrors.NewValidationError("", fmt.Sprintf("rule %q failed to evaluate: %v", rule.Expr, err))
		}
		if !ok {
			return apperrors.NewValidationError("", rule.Message)
		}
	}
	return nil
}

func checkScalar(field schema.Field, value interface{}) error {
	switch field.Type {
	case schema.FieldTypeString, schema.FieldTypeText:
		if _, ok := value.(string); !ok {
			return apperrors.NewValidationError(field.Name, "expected a string")
		}
	case schema.FieldTypeBool:
		if _, ok := value.(bool); !ok {
			return apperrors.NewValidationError(field.Name, "expected a boolean")
		}
	case schema.FieldTypeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return apperrors.NewValidationError(field.Name, "expected a number")
		}
	case schema.FieldTypeDate:
		switch v := value.(type) {
		case time.Time, *time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				if _, err := time.Parse("2006-01-02", v); err != nil {
					return apperrors.NewValidationError(field.Name, "expected an ISO-8601 date")
				}
			}
		default:
			return apperrors.NewValidationError(field.Name, "expected an ISO-8601 date")
		}
	case schema.FieldTypeUUID:
		s, ok := value.(string)
		if !ok || !utils.IsValidUUID(s) {
			return apperrors.NewValidationError(field.Name, "expected a UUID")
		}
	}
	return nil
}

// ValidateFieldSelection rejects unknown fields in a projection whitelist
func (vs *ValidationService) ValidateFieldSelection(def *schema.EntityDef, fields []string) error {
	for _, f := range fields {
		if !def.HasColumn(f) {
			return apperrors.NewValidationError(f, "unknown field in selection")
		}
	}
	return nil
}

// ValidateIncludes rejects unknown relation names in an include list
func (vs *ValidationService) ValidateIncludes(def *schema.EntityDef, includes []string) error {
	for _, name := range includes {
		if _, ok := def.Reference(name); !ok {
			return apperrors.NewValidationError(name, "unknown relation")
		}
	}
	return nil
}
