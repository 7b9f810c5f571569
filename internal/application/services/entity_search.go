package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// SearchTransformer maps one high-level search parameter to concrete filter
// predicates, e.g. overdue -> scheduled AND NOT completed AND due_date <= NOW().
// Transformers run before the permission filter is applied.
type SearchTransformer func(value interface{}) ([]ports.Predicate, error)

// searchTransformers is the per-kind transformer registry, populated during
// manager construction and extension load
type searchTransformers struct {
	mu    sync.RWMutex
	byKey map[string]SearchTransformer // kind + "." + param
}

func newSearchTransformers() *searchTransformers {
	return &searchTransformers{byKey: make(map[string]SearchTransformer)}
}

func (st *searchTransformers) register(kind, param string, fn SearchTransformer) {
	st.mu.Lock()
	st.byKey[kind+"."+param] = fn
	st.mu.Unlock()
}

func (st *searchTransformers) lookup(kind, param string) (SearchTransformer, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	fn, ok := st.byKey[kind+"."+param]
	return fn, ok
}

// parseSearchParams turns the structured search payload into predicates.
// Transformer-named parameters are expanded first; the rest must be declared
// fields carrying a per-type clause shape:
//
//	string:  {inc|sw|ew: string}
//	number:  {eq|neq|lt|gt|lteq|gteq: number}
//	date:    {before|after|on: iso8601}
//	bool:    {is_true: bool}
func parseSearchParams(def *schema.EntityDef, transformers *searchTransformers, params map[string]interface{}) ([]ports.Predicate, error) {
	// Deterministic predicate order regardless of map iteration
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []ports.Predicate
	for _, name := range names {
		value := params[name]

		if fn, ok := transformers.lookup(def.Kind, name); ok {
			preds, err := fn(value)
			if err != nil {
				return nil, err
			}
			out = append(out, preds...)
			continue
		}

		field, ok := def.FieldByName(name)
		if !ok {
			return nil, apperrors.NewValidationError(name, "unknown search field")
		}
		clause, ok := value.(map[string]interface{})
		if !ok {
			return nil, apperrors.NewValidationError(name, "search clause must be an object")
		}
		preds, err := parseClause(def, field, clause)
		if err != nil {
			return nil, err
		}
		out = append(out, preds...)
	}
	return out, nil
}

func parseClause(def *schema.EntityDef, field schema.Field, clause map[string]interface{}) ([]ports.Predicate, error) {
	col := fmt.Sprintf("`%s`.`%s`", def.Table, field.Name)

	ops := make([]string, 0, len(clause))
	for op := range clause {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var out []ports.Predicate
	for _, op := range ops {
		operand := clause[op]
		pred, err := buildPredicate(field, col, op, operand)
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, nil
}

func buildPredicate(field schema.Field, col, op string, operand interface{}) (ports.Predicate, error) {
	switch field.Type {
	case schema.FieldTypeString, schema.FieldTypeText, schema.FieldTypeUUID:
		s, ok := operand.(string)
		if !ok {
			return ports.Predicate{}, apperrors.NewValidationError(field.Name, "string search operand must be a string")
		}
		switch op {
		case "inc":
			return ports.Predicate{SQL: col + " LIKE ?", Params: []interface{}{"%" + s + "%"}}, nil
		case "sw":
			return ports.Predicate{SQL: col + " LIKE ?", Params: []interface{}{s + "%"}}, nil
		case "ew":
			return ports.Predicate{SQL: col + " LIKE ?", Params: []interface{}{"%" + s}}, nil
		}

	case schema.FieldTypeNumber:
		switch operand.(type) {
		case int, int32, int64, float32, float64:
		default:
			return ports.Predicate{}, apperrors.NewValidationError(field.Name, "numeric search operand must be a number")
		}
		comparators := map[string]string{
			"eq": "=", "neq": "<>", "lt": "<", "gt": ">", "lteq": "<=", "gteq": ">=",
		}
		if cmp, ok := comparators[op]; ok {
			return ports.Predicate{SQL: fmt.Sprintf("%s %s ?", col, cmp), Params: []interface{}{operand}}, nil
		}

	case schema.FieldTypeDate:
		s, ok := operand.(string)
		if !ok {
			return ports.Predicate{}, apperrors.NewValidationError(field.Name, "date search operand must be an ISO-8601 string")
		}
		switch op {
		case "before":
			return ports.Predicate{SQL: col + " < ?", Params: []interface{}{s}}, nil
		case "after":
			return ports.Predicate{SQL: col + " > ?", Params: []interface{}{s}}, nil
		case "on":
			return ports.Predicate{SQL: fmt.Sprintf("DATE(%s) = DATE(?)", col), Params: []interface{}{s}}, nil
		}

	case schema.FieldTypeBool:
		if op == "is_true" {
			want, ok := operand.(bool)
			if !ok {
				return ports.Predicate{}, apperrors.NewValidationError(field.Name, "is_true operand must be a boolean")
			}
			expected := 0
			if want {
				expected = 1
			}
			return ports.Predicate{SQL: col + " = ?", Params: []interface{}{expected}}, nil
		}
	}

	return ports.Predicate{}, apperrors.NewValidationError(field.Name,
		fmt.Sprintf("operator %q is not valid for %s fields", op, field.Type))
}
