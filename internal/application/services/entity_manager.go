package services

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
	apperrors "github.com/tenantcore/backend/pkg/errors"
	"github.com/tenantcore/backend/pkg/utils"
)

// EntityService is the shared plumbing behind every manager: the definition
// registry, the record store, the permission engine, the hook registry and
// the transaction runner. Managers are cheap per-request bindings of a kind
// and an actor onto this service.
type EntityService struct {
	registry     *schema.Registry
	records      ports.RecordStore
	perms        *PermissionService
	hooks        *HookRegistry
	validation   *ValidationService
	tx           ports.TxRunner
	ids          SystemIdentity
	transformers *searchTransformers

	now func() time.Time
}

// NewEntityService creates a new EntityService
func NewEntityService(registry *schema.Registry, records ports.RecordStore, perms *PermissionService, hooks *HookRegistry, validation *ValidationService, tx ports.TxRunner, ids SystemIdentity) *EntityService {
	return &EntityService{
		registry:     registry,
		records:      records,
		perms:        perms,
		hooks:        hooks,
		validation:   validation,
		tx:           tx,
		ids:          ids,
		transformers: newSearchTransformers(),
		now:          time.Now,
	}
}

// RegisterSearchTransformer attaches a named search transformer to a kind
func (es *EntityService) RegisterSearchTransformer(kind, param string, fn SearchTransformer) {
	es.transformers.register(kind, param, fn)
}

// Registry exposes the definition registry for bootstrap and extensions
func (es *EntityService) Registry() *schema.Registry {
	return es.registry
}

// Hooks exposes the hook registry for bootstrap and extensions
func (es *EntityService) Hooks() *HookRegistry {
	return es.hooks
}

// Store exposes the record store for extensions that persist their own rows
// outside the pipeline, such as audit trails
func (es *EntityService) Store() ports.RecordStore {
	return es.records
}

// Permissions exposes the permission engine for grant management surfaces
func (es *EntityService) Permissions() *PermissionService {
	return es.perms
}

// Validation exposes the validation service so bootstrap can compile rules
// after all kinds are registered
func (es *EntityService) Validation() *ValidationService {
	return es.validation
}

// ActorContext identifies who is operating and, optionally, on whose behalf.
// Targeting another user or team is subject to the same permission engine.
type ActorContext struct {
	RequesterID  string
	TargetUserID string
	TargetTeamID string
}

func (a ActorContext) effectiveUserID() string {
	if a.TargetUserID != "" {
		return a.TargetUserID
	}
	return a.RequesterID
}

// Manager is the pipeline instance for one entity kind bound to one actor.
// Callers wanting to share a transaction run manager operations under a
// context produced by TransactionManager.InjectTx.
type Manager struct {
	def   *schema.EntityDef
	actor ActorContext
	es    *EntityService
}

// Manager constructs a manager for the kind
func (es *EntityService) Manager(kind string, actor ActorContext) (*Manager, error) {
	def, ok := es.registry.Get(kind)
	if !ok {
		return nil, apperrors.NewNotFoundError(kind, "")
	}
	if actor.RequesterID == "" {
		return nil, apperrors.NewUnauthorizedError("missing requester")
	}
	return &Manager{def: def, actor: actor, es: es}, nil
}

// ManagerByPlural constructs a manager resolving the kind from its plural name
func (es *EntityService) ManagerByPlural(plural string, actor ActorContext) (*Manager, error) {
	def, ok := es.registry.ByPlural(plural)
	if !ok {
		return nil, apperrors.NewNotFoundError(plural, "")
	}
	return es.Manager(def.Kind, actor)
}

// Def returns the manager's entity definition
func (m *Manager) Def() *schema.EntityDef {
	return m.def
}

// GetOptions controls projection and relation inclusion on reads
type GetOptions struct {
	Fields         []string
	Include        []string
	IncludeDeleted bool
}

// ListParams controls list queries
type ListParams struct {
	Filters        map[string]interface{}
	SortField      string
	SortDesc       *bool
	Limit          int
	Offset         int
	Fields         []string
	Include        []string
	IncludeDeleted bool
	// Exact post-filters results through Check so reference-inherited
	// visibility is honored at the cost of one check per row
	Exact bool
}

// Create validates the draft, checks creation permission, runs before-create
// hooks, persists with audit stamping and runs after-create hooks, all in one
// transaction.
func (m *Manager) Create(ctx context.Context, draft models.Record) (models.Record, error) {
	if len(draft) == 0 {
		return nil, apperrors.NewValidationError("", "empty draft")
	}
	draft = draft.Clone()

	if err := m.es.validation.ValidateDraft(m.def, draft, m.actor.RequesterID, false); err != nil {
		return nil, err
	}

	err := m.es.tx.InTransaction(ctx, func(ctx context.Context) error {
		m.stampCreate(draft)

		if err := m.es.perms.CanCreate(ctx, m.actor.RequesterID, m.def, draft); err != nil {
			return err
		}

		hc := &HookContext{Kind: m.def.Kind, Op: OpCreate, RequesterID: m.actor.RequesterID, Draft: draft}
		if err := m.es.hooks.Run(ctx, PhaseBefore, hc); err != nil {
			return err
		}

		if err := m.es.records.Insert(ctx, m.def, draft); err != nil {
			return err
		}

		hc.Record = draft
		return m.es.hooks.Run(ctx, PhaseAfter, hc)
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (m *Manager) stampCreate(draft models.Record) {
	if draft.ID() == "" {
		draft[constants.FieldID] = utils.GenerateID()
	}
	now := m.es.now()
	if m.def.Traits.Audit {
		draft[constants.FieldCreatedAt] = now
		draft[constants.FieldCreatedBy] = m.actor.RequesterID
	}
	if m.def.Traits.UserRef && draft.GetString(constants.FieldUserID) == "" {
		draft[constants.FieldUserID] = m.actor.effectiveUserID()
	}
	if m.def.Traits.TeamRef && draft.GetString(constants.FieldTeamID) == "" && m.actor.TargetTeamID != "" {
		draft[constants.FieldTeamID] = m.actor.TargetTeamID
	}
}

// Get checks VIEW, loads the record, and applies projection and relation
// inclusion. Permission denials surface as NotFound so callers cannot probe
// for hidden records.
func (m *Manager) Get(ctx context.Context, id string, opts GetOptions) (models.Record, error) {
	if err := m.es.validation.ValidateFieldSelection(m.def, opts.Fields); err != nil {
		return nil, err
	}
	if err := m.es.validation.ValidateIncludes(m.def, opts.Include); err != nil {
		return nil, err
	}

	includeDeleted := opts.IncludeDeleted && m.es.ids.IsRoot(m.actor.RequesterID)

	if !includeDeleted {
		if err := m.es.perms.Check(ctx, m.actor.RequesterID, m.def.Kind, id, models.LevelView); err != nil {
			return nil, apperrors.Mask(err, m.def.Kind, id)
		}
	}

	rec, err := m.es.records.GetByID(ctx, m.def, id, includeDeleted)
	if err != nil {
		return nil, err
	}

	hc := &HookContext{Kind: m.def.Kind, Op: OpGet, RequesterID: m.actor.RequesterID, Record: rec}
	if err := m.es.hooks.Run(ctx, PhaseAfter, hc); err != nil {
		return nil, err
	}

	if err := m.hydrate(ctx, rec, opts.Include); err != nil {
		return nil, err
	}
	return project(rec, opts.Fields, opts.Include), nil
}

// hydrate eagerly loads the named relations into the record. A relation the
// requester cannot view is left null rather than failing the read.
func (m *Manager) hydrate(ctx context.Context, rec models.Record, include []string) error {
	for _, name := range include {
		ref, _ := m.def.Reference(name)
		refID := rec.GetString(ref.Column)
		if refID == "" {
			rec[name] = nil
			continue
		}
		refDef, ok := m.es.registry.Get(ref.Kind)
		if !ok {
			rec[name] = nil
			continue
		}
		if err := m.es.perms.Check(ctx, m.actor.RequesterID, ref.Kind, refID, models.LevelView); err != nil {
			if apperrors.IsPermission(err) || apperrors.IsNotFound(err) {
				rec[name] = nil
				continue
			}
			return err
		}
		related, err := m.es.records.GetByID(ctx, refDef, refID, false)
		if err != nil {
			if apperrors.IsNotFound(err) {
				rec[name] = nil
				continue
			}
			return err
		}
		rec[name] = related
	}
	return nil
}

// project reduces the record to the requested fields; id always survives
func project(rec models.Record, fields, include []string) models.Record {
	if len(fields) == 0 {
		return rec
	}
	out := models.Record{constants.FieldID: rec[constants.FieldID]}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	for _, name := range include {
		if v, ok := rec[name]; ok {
			out[name] = v
		}
	}
	return out
}

// List applies equality filters, the row-level security predicate, sorting
// (created_at descending by default, id as tie-break) and paging
func (m *Manager) List(ctx context.Context, p ListParams) ([]models.Record, error) {
	preds, err := m.equalityPredicates(p.Filters)
	if err != nil {
		return nil, err
	}
	return m.runQuery(ctx, OpList, preds, p)
}

// Search is List with structured per-field search clauses and registered
// transformers applied before the permission filter
func (m *Manager) Search(ctx context.Context, params map[string]interface{}, p ListParams) ([]models.Record, error) {
	preds, err := parseSearchParams(m.def, m.es.transformers, params)
	if err != nil {
		return nil, err
	}
	return m.runQuery(ctx, OpSearch, preds, p)
}

func (m *Manager) runQuery(ctx context.Context, op Op, preds []ports.Predicate, p ListParams) ([]models.Record, error) {
	if err := m.es.validation.ValidateFieldSelection(m.def, p.Fields); err != nil {
		return nil, err
	}
	if err := m.es.validation.ValidateIncludes(m.def, p.Include); err != nil {
		return nil, err
	}
	if p.SortField != "" && !m.def.HasColumn(p.SortField) {
		return nil, apperrors.NewValidationError(p.SortField, "unknown sort field")
	}

	security, err := m.es.perms.GenerateFilter(ctx, m.actor.RequesterID, m.def, models.LevelView)
	if err != nil {
		return nil, err
	}

	sortDesc := true
	if p.SortDesc != nil {
		sortDesc = *p.SortDesc
	}

	opts := ports.ListOptions{
		Predicates:     preds,
		Security:       security,
		SortField:      p.SortField,
		SortDesc:       sortDesc,
		Limit:          p.Limit,
		Offset:         p.Offset,
		IncludeDeleted: p.IncludeDeleted && m.es.ids.IsRoot(m.actor.RequesterID),
	}

	recs, err := m.es.records.List(ctx, m.def, opts)
	if err != nil {
		return nil, err
	}

	if p.Exact && !m.es.ids.IsRoot(m.actor.RequesterID) {
		exact := recs[:0]
		for _, rec := range recs {
			if err := m.es.perms.Check(ctx, m.actor.RequesterID, m.def.Kind, rec.ID(), models.LevelView); err == nil {
				exact = append(exact, rec)
			}
		}
		recs = exact
	}

	out := make([]models.Record, 0, len(recs))
	for _, rec := range recs {
		hc := &HookContext{Kind: m.def.Kind, Op: op, RequesterID: m.actor.RequesterID, Record: rec}
		if err := m.es.hooks.Run(ctx, PhaseAfter, hc); err != nil {
			return nil, err
		}
		if err := m.hydrate(ctx, rec, p.Include); err != nil {
			return nil, err
		}
		out = append(out, project(rec, p.Fields, p.Include))
	}
	return out, nil
}

func (m *Manager) equalityPredicates(filters map[string]interface{}) ([]ports.Predicate, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(filters))
	for col := range filters {
		if !m.def.HasColumn(col) {
			return nil, apperrors.NewValidationError(col, "unknown filter field")
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	preds := make([]ports.Predicate, 0, len(cols))
	for _, col := range cols {
		preds = append(preds, ports.Predicate{
			SQL:    "`" + m.def.Table + "`.`" + col + "` = ?",
			Params: []interface{}{filters[col]},
		})
	}
	return preds, nil
}

// Update checks EDIT, loads the pre-image, runs before-update hooks on the
// partial, persists only the changed columns with audit stamping and runs
// after-update hooks with the pre-image
func (m *Manager) Update(ctx context.Context, id string, partial models.Record) (models.Record, error) {
	if len(partial) == 0 {
		return nil, apperrors.NewValidationError("", "empty update")
	}
	partial = partial.Clone()
	delete(partial, constants.FieldID)

	if err := m.es.validation.ValidateDraft(m.def, partial, m.actor.RequesterID, true); err != nil {
		return nil, err
	}

	var result models.Record
	err := m.es.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := m.es.perms.Check(ctx, m.actor.RequesterID, m.def.Kind, id, models.LevelEdit); err != nil {
			return err
		}
		current, err := m.es.records.GetByID(ctx, m.def, id, m.es.ids.IsRoot(m.actor.RequesterID))
		if err != nil {
			return err
		}

		hc := &HookContext{Kind: m.def.Kind, Op: OpUpdate, RequesterID: m.actor.RequesterID, Draft: partial, Previous: current}
		if err := m.es.hooks.Run(ctx, PhaseBefore, hc); err != nil {
			return err
		}

		diff := make(map[string]interface{})
		for key, value := range partial {
			if !reflect.DeepEqual(current[key], value) {
				diff[key] = value
			}
		}
		if len(diff) == 0 {
			// Identical values produce no observable change
			result = current
			return nil
		}

		if m.def.Traits.UpdateAudit {
			diff[constants.FieldUpdatedAt] = m.es.now()
			diff[constants.FieldUpdatedBy] = m.actor.RequesterID
		}

		if err := m.es.records.UpdateByID(ctx, m.def, id, diff); err != nil {
			return err
		}

		merged := current.Clone()
		for key, value := range diff {
			merged[key] = value
		}
		result = merged

		hc.Record = merged
		return m.es.hooks.Run(ctx, PhaseAfter, hc)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete checks DELETE, runs before-delete hooks and stamps the soft-delete
// fields. Kinds without the soft-delete trait can only be deleted by ROOT,
// and are removed outright.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.es.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := m.es.perms.Check(ctx, m.actor.RequesterID, m.def.Kind, id, models.LevelDelete); err != nil {
			return err
		}
		current, err := m.es.records.GetByID(ctx, m.def, id, false)
		if err != nil {
			return err
		}

		hc := &HookContext{Kind: m.def.Kind, Op: OpDelete, RequesterID: m.actor.RequesterID, Previous: current}
		if err := m.es.hooks.Run(ctx, PhaseBefore, hc); err != nil {
			return err
		}

		if m.def.Traits.SoftDelete {
			if err := m.es.records.SoftDelete(ctx, m.def, id, m.actor.RequesterID, m.es.now()); err != nil {
				return err
			}
		} else {
			if !m.es.ids.IsRoot(m.actor.RequesterID) {
				return &apperrors.PermissionError{Action: "delete", Resource: m.def.Kind, Reason: "hard deletion is reserved"}
			}
			if err := m.es.records.HardDelete(ctx, m.def, id); err != nil {
				return err
			}
		}

		hc.Record = current
		return m.es.hooks.Run(ctx, PhaseAfter, hc)
	})
}
