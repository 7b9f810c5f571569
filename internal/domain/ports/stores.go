package ports

import (
	"context"
	"time"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/schema"
)

// Predicate is one WHERE fragment with its parameters
type Predicate struct {
	SQL    string
	Params []interface{}
}

// ListOptions collects the restrictions for a list/search query
type ListOptions struct {
	Predicates     []Predicate
	Security       Predicate
	Fields         []string
	SortField      string
	SortDesc       bool
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// RecordStore performs generic row access driven by entity definitions.
// This interface enables testing the pipeline and the permission engine
// without a real database.
type RecordStore interface {
	Insert(ctx context.Context, def *schema.EntityDef, rec models.Record) error
	GetByID(ctx context.Context, def *schema.EntityDef, id string, includeDeleted bool) (models.Record, error)
	List(ctx context.Context, def *schema.EntityDef, opts ListOptions) ([]models.Record, error)
	Count(ctx context.Context, def *schema.EntityDef, opts ListOptions) (int, error)
	UpdateByID(ctx context.Context, def *schema.EntityDef, id string, diff map[string]interface{}) error
	SoftDelete(ctx context.Context, def *schema.EntityDef, id, deletedBy string, now time.Time) error
	HardDelete(ctx context.Context, def *schema.EntityDef, id string) error
	Exists(ctx context.Context, def *schema.EntityDef, id string, includeDeleted bool) (bool, error)
}

// AuthStore loads the identity graph the permission engine evaluates
type AuthStore interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	ListMemberships(ctx context.Context, userID string) ([]models.TeamMembership, error)
	TeamAncestors(ctx context.Context, teamID string, maxDepth int) ([]string, error)
	GrantsFor(ctx context.Context, kind, recordID string) ([]models.Grant, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	DeleteExpiredGrants(ctx context.Context) (int64, error)
}

// TxRunner runs a function inside a transaction, joining one already carried
// by the context or owning a fresh one
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
