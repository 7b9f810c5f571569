package services

import (
	"context"
	"sort"
	"time"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// fakeRecordStore is an in-memory RecordStore. SQL predicates and the
// security clause are not evaluated; tests that care about row-level
// filtering assert on the generated predicate instead.
type fakeRecordStore struct {
	data map[string]map[string]models.Record
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{data: make(map[string]map[string]models.Record)}
}

func (s *fakeRecordStore) kind(kind string) map[string]models.Record {
	if s.data[kind] == nil {
		s.data[kind] = make(map[string]models.Record)
	}
	return s.data[kind]
}

func (s *fakeRecordStore) Insert(ctx context.Context, def *schema.EntityDef, rec models.Record) error {
	rows := s.kind(def.Kind)
	if _, exists := rows[rec.ID()]; exists {
		return apperrors.NewConflictError(def.Kind, "id", rec.ID())
	}
	rows[rec.ID()] = rec.Clone()
	return nil
}

func (s *fakeRecordStore) GetByID(ctx context.Context, def *schema.EntityDef, id string, includeDeleted bool) (models.Record, error) {
	rec, ok := s.kind(def.Kind)[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(def.Kind, id)
	}
	if !includeDeleted && rec.IsDeleted() {
		return nil, apperrors.NewNotFoundError(def.Kind, id)
	}
	return rec.Clone(), nil
}

func (s *fakeRecordStore) List(ctx context.Context, def *schema.EntityDef, opts ports.ListOptions) ([]models.Record, error) {
	rows := s.kind(def.Kind)
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.Record
	for _, id := range ids {
		rec := rows[id]
		if !opts.IncludeDeleted && rec.IsDeleted() {
			continue
		}
		out = append(out, rec.Clone())
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeRecordStore) Count(ctx context.Context, def *schema.EntityDef, opts ports.ListOptions) (int, error) {
	recs, err := s.List(ctx, def, opts)
	return len(recs), err
}

func (s *fakeRecordStore) UpdateByID(ctx context.Context, def *schema.EntityDef, id string, diff map[string]interface{}) error {
	rec, ok := s.kind(def.Kind)[id]
	if !ok {
		return apperrors.NewNotFoundError(def.Kind, id)
	}
	for k, v := range diff {
		rec[k] = v
	}
	return nil
}

func (s *fakeRecordStore) SoftDelete(ctx context.Context, def *schema.EntityDef, id, deletedBy string, now time.Time) error {
	rec, ok := s.kind(def.Kind)[id]
	if !ok {
		return apperrors.NewNotFoundError(def.Kind, id)
	}
	rec[constants.FieldDeletedAt] = now
	rec[constants.FieldDeletedBy] = deletedBy
	return nil
}

func (s *fakeRecordStore) HardDelete(ctx context.Context, def *schema.EntityDef, id string) error {
	rows := s.kind(def.Kind)
	if _, ok := rows[id]; !ok {
		return apperrors.NewNotFoundError(def.Kind, id)
	}
	delete(rows, id)
	return nil
}

func (s *fakeRecordStore) Exists(ctx context.Context, def *schema.EntityDef, id string, includeDeleted bool) (bool, error) {
	rec, ok := s.kind(def.Kind)[id]
	if !ok {
		return false, nil
	}
	if !includeDeleted && def.Traits.SoftDelete && rec.IsDeleted() {
		return false, nil
	}
	return true, nil
}

// put seeds a row directly, bypassing the pipeline
func (s *fakeRecordStore) put(kind string, rec models.Record) {
	s.kind(kind)[rec.ID()] = rec
}

// fakeAuthStore is an in-memory AuthStore
type fakeAuthStore struct {
	roles        []models.Role
	memberships  map[string][]models.TeamMembership
	teamParents  map[string]string
	grants       map[string][]models.Grant
	usersByEmail map[string]*models.User

	sweepErr     error
	sweepDeleted int64
	sweepCalls   int
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		memberships:  make(map[string][]models.TeamMembership),
		teamParents:  make(map[string]string),
		grants:       make(map[string][]models.Grant),
		usersByEmail: make(map[string]*models.User),
	}
}

func (a *fakeAuthStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	return a.roles, nil
}

func (a *fakeAuthStore) ListMemberships(ctx context.Context, userID string) ([]models.TeamMembership, error) {
	return a.memberships[userID], nil
}

func (a *fakeAuthStore) TeamAncestors(ctx context.Context, teamID string, maxDepth int) ([]string, error) {
	chain := []string{teamID}
	current := teamID
	for depth := 0; depth < maxDepth; depth++ {
		parent, ok := a.teamParents[current]
		if !ok {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

func (a *fakeAuthStore) GrantsFor(ctx context.Context, kind, recordID string) ([]models.Grant, error) {
	return a.grants[kind+"/"+recordID], nil
}

func (a *fakeAuthStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := a.usersByEmail[email]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", "")
	}
	return u, nil
}

func (a *fakeAuthStore) DeleteExpiredGrants(ctx context.Context) (int64, error) {
	a.sweepCalls++
	return a.sweepDeleted, a.sweepErr
}

func (a *fakeAuthStore) addGrant(g models.Grant) {
	key := g.ResourceKind + "/" + g.ResourceID
	a.grants[key] = append(a.grants[key], g)
}

func builtinRoles() []models.Role {
	adminParent := constants.RoleIDSuperadmin
	userParent := constants.RoleIDAdmin
	return []models.Role{
		{ID: constants.RoleIDSuperadmin, Name: constants.RoleSuperadmin},
		{ID: constants.RoleIDAdmin, Name: constants.RoleAdmin, ParentRoleID: &adminParent},
		{ID: constants.RoleIDUser, Name: constants.RoleUser, ParentRoleID: &userParent},
	}
}

// fakeTxRunner runs the function directly; the fakes have no transactions
type fakeTxRunner struct{}

func (fakeTxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// testEnv wires the fakes into a full service stack around three reference
// levels: note -> doc -> folder
type testEnv struct {
	ids      SystemIdentity
	registry *schema.Registry
	store    *fakeRecordStore
	auth     *fakeAuthStore
	roles    *RoleHierarchyService
	perms    *PermissionService
	hooks    *HookRegistry
	entities *EntityService
	now      time.Time
}

func newTestEnv() *testEnv {
	ids := SystemIdentity{
		RootID:       constants.DefaultRootID,
		SystemID:     constants.DefaultSystemID,
		TemplateID:   constants.DefaultTemplateID,
		MaxTeamDepth: constants.DefaultMaxTeamDepth,
	}

	registry := schema.NewRegistry()
	defs := []*schema.EntityDef{
		{
			Kind: "folder", Plural: "folders", Table: "folders",
			Traits: schema.Traits{Audit: true, SoftDelete: true, UserRef: true, TeamRef: true},
			Fields: []schema.Field{{Name: "name", Type: schema.FieldTypeString, Required: true}},
		},
		{
			Kind: "doc", Plural: "docs", Table: "docs",
			Traits: schema.Traits{Audit: true, UpdateAudit: true, SoftDelete: true, UserRef: true, TeamRef: true},
			Fields: []schema.Field{
				{Name: "title", Type: schema.FieldTypeString, Required: true},
				{Name: "pages", Type: schema.FieldTypeNumber},
				{Name: "published", Type: schema.FieldTypeBool},
				{Name: "published_on", Type: schema.FieldTypeDate},
			},
			References: []schema.Reference{
				{Name: "folder", Kind: "folder", Column: "folder_id", Optional: true},
			},
			CreateReference: "folder",
		},
		{
			Kind: "note", Plural: "notes", Table: "notes",
			Traits: schema.Traits{Audit: true, SoftDelete: true, UserRef: true},
			Fields: []schema.Field{{Name: "body", Type: schema.FieldTypeText}},
			References: []schema.Reference{
				{Name: "doc", Kind: "doc", Column: "doc_id"},
			},
			CreateReference: "doc",
		},
		{
			Kind: "setting", Plural: "settings", Table: "settings", System: true,
			Traits: schema.Traits{Audit: true},
			Fields: []schema.Field{
				{Name: "key", Type: schema.FieldTypeString, Required: true},
				{Name: "value", Type: schema.FieldTypeString},
			},
		},
		{
			Kind: constants.KindPermission, Plural: "permissions", Table: constants.TablePermissions, System: true,
			Traits: schema.Traits{Audit: true},
			Fields: []schema.Field{
				{Name: "resource_kind", Type: schema.FieldTypeString, Required: true},
				{Name: "resource_id", Type: schema.FieldTypeUUID, Required: true},
			},
		},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			panic(err)
		}
	}

	store := newFakeRecordStore()
	auth := newFakeAuthStore()
	auth.roles = builtinRoles()

	roles := NewRoleHierarchyService(auth)
	perms := NewPermissionService(ids, registry, store, auth, roles)
	hooks := NewHookRegistry()
	entities := NewEntityService(registry, store, perms, hooks, NewValidationService(), fakeTxRunner{}, ids)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	perms.now = func() time.Time { return now }
	entities.now = func() time.Time { return now }

	return &testEnv{
		ids: ids, registry: registry, store: store, auth: auth,
		roles: roles, perms: perms, hooks: hooks, entities: entities, now: now,
	}
}

// seedRecord inserts a row with audit stamps, bypassing permissions
func (e *testEnv) seedRecord(kind, id, createdBy string, extra models.Record) models.Record {
	rec := models.Record{
		constants.FieldID:        id,
		constants.FieldCreatedAt: e.now.Add(-time.Hour),
		constants.FieldCreatedBy: createdBy,
	}
	for k, v := range extra {
		rec[k] = v
	}
	e.store.put(kind, rec)
	return rec
}

func (e *testEnv) addMembership(userID, teamID, roleID string) {
	e.auth.memberships[userID] = append(e.auth.memberships[userID], models.TeamMembership{
		ID: userID + "-" + teamID, UserID: userID, TeamID: teamID, RoleID: roleID, Enabled: true,
	})
}
