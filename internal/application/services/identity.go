package services

import (
	"log"
	"os"
	"strconv"

	"github.com/tenantcore/backend/pkg/constants"
)

// SystemIdentity holds the three distinguished principal IDs and the team
// depth bound, fixed at process init from the environment.
type SystemIdentity struct {
	RootID       string
	SystemID     string
	TemplateID   string
	MaxTeamDepth int
}

// LoadSystemIdentity resolves the system identity from the environment,
// falling back to the reserved defaults
func LoadSystemIdentity() SystemIdentity {
	ids := SystemIdentity{
		RootID:       envOr(constants.EnvRootID, constants.DefaultRootID),
		SystemID:     envOr(constants.EnvSystemID, constants.DefaultSystemID),
		TemplateID:   envOr(constants.EnvTemplateID, constants.DefaultTemplateID),
		MaxTeamDepth: constants.DefaultMaxTeamDepth,
	}
	if raw := os.Getenv(constants.EnvMaxTeamDepth); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			ids.MaxTeamDepth = n
		} else {
			log.Printf("⚠️  Ignoring invalid %s=%q", constants.EnvMaxTeamDepth, raw)
		}
	}
	return ids
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsRoot reports whether the principal is ROOT
func (s SystemIdentity) IsRoot(id string) bool {
	return id != "" && id == s.RootID
}

// IsSystem reports whether the principal is SYSTEM
func (s SystemIdentity) IsSystem(id string) bool {
	return id != "" && id == s.SystemID
}

// IsTemplate reports whether the principal is TEMPLATE
func (s SystemIdentity) IsTemplate(id string) bool {
	return id != "" && id == s.TemplateID
}

// IsPrivileged reports whether the principal is ROOT or SYSTEM
func (s SystemIdentity) IsPrivileged(id string) bool {
	return s.IsRoot(id) || s.IsSystem(id)
}
