package extensions

import (
	"context"
	"log"
	"time"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/ports"
)

// GrantExpiryExtension purges expired permission grants. The engine already
// treats expired grants as absent; the sweeper just removes the dead rows.
type GrantExpiryExtension struct {
	auth ports.AuthStore
}

// NewGrantExpiryExtension creates the extension bound to the auth store
func NewGrantExpiryExtension(auth ports.AuthStore) *GrantExpiryExtension {
	return &GrantExpiryExtension{auth: auth}
}

func (e *GrantExpiryExtension) Name() string { return "grant-expiry" }
func (e *GrantExpiryExtension) Version() string { return "1.0.0" }
func (e *GrantExpiryExtension) Description() string { return "expired grant sweeper" }

func (e *GrantExpiryExtension) Dependencies() []services.ExtDependency { return nil }

func (e *GrantExpiryExtension) Initialize(ctx context.Context, host *services.ExtensionHost) error {
	return host.RegisterService(&grantSweeper{auth: e.auth})
}

// Abilities exposes sweep for on-demand purging
func (e *GrantExpiryExtension) Abilities() map[string]services.Ability {
	return map[string]services.Ability{
		"sweep": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			n, err := e.auth.DeleteExpiredGrants(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"deleted": n}, nil
		},
	}
}

// grantSweeper is the supervised background service
type grantSweeper struct {
	auth ports.AuthStore
}

func (s *grantSweeper) Name() string { return "grant-sweeper" }
func (s *grantSweeper) Interval() time.Duration { return time.Hour }
func (s *grantSweeper) MaxFailures() int { return 3 }
func (s *grantSweeper) RetryDelay() time.Duration { return 30 * time.Second }

func (s *grantSweeper) Update(ctx context.Context) error {
	n, err := s.auth.DeleteExpiredGrants(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("🛡️ Purged %d expired grants", n)
	}
	return nil
}

func (s *grantSweeper) Cleanup(ctx context.Context) error {
	log.Printf("🛡️ Grant sweeper cleanup complete")
	return nil
}
