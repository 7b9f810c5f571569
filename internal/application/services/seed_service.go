package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
)

// SeedService inserts the declarative seed rows of every registered kind.
// Seeding is idempotent: a row whose ID already exists is left untouched, so
// restarts never duplicate or overwrite seeded data.
type SeedService struct {
	registry *schema.Registry
	store    ports.RecordStore
	ids      SystemIdentity
	now      func() time.Time
}

// NewSeedService creates a new SeedService
func NewSeedService(registry *schema.Registry, store ports.RecordStore, ids SystemIdentity) *SeedService {
	return &SeedService{registry: registry, store: store, ids: ids, now: time.Now}
}

// Seed walks the registered kinds in reference order and inserts every
// missing seed row, audit-stamped by the SYSTEM principal
func (s *SeedService) Seed(ctx context.Context) error {
	order, err := s.registry.SeedOrder()
	if err != nil {
		return err
	}

	inserted := 0
	for _, def := range order {
		if def.SeedList == nil {
			continue
		}
		for _, seed := range def.SeedList() {
			// Tombstones count as present: a deleted seed row stays deleted
			exists, err := s.store.Exists(ctx, def, seed.ID, true)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			rec := seed.Values.Clone()
			rec[constants.FieldID] = seed.ID
			if def.Traits.Audit {
				rec[constants.FieldCreatedAt] = s.now()
				rec[constants.FieldCreatedBy] = s.ids.SystemID
			}
			if err := s.store.Insert(ctx, def, rec); err != nil {
				return err
			}
			inserted++
			log.Printf("✅ Seeded %s %s", def.Kind, seed.ID)
		}
	}

	if inserted > 0 {
		log.Printf("✅ Seeding complete, %d rows inserted", inserted)
	} else {
		log.Printf("✅ Seeding complete, nothing to do")
	}
	return nil
}

// SeedEnabled reads the SEED_DATA gate; absent or unparseable values default
// to enabled
func SeedEnabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "false", "0", "no", "off":
		return false
	}
	return true
}
