package models

import "time"

// Grant is an explicit permission row targeting exactly one subject: a user,
// a team, or a role. A grant with ExpiresAt in the past is equivalent to
// absent. A grant with no subject at all is global and may only be created by
// ROOT or SYSTEM.
type Grant struct {
	ID           string     `json:"id"`
	ResourceKind string     `json:"resource_kind"`
	ResourceID   string     `json:"resource_id"`
	UserID       *string    `json:"user_id,omitempty"`
	TeamID       *string    `json:"team_id,omitempty"`
	RoleID       *string    `json:"role_id,omitempty"`
	CanView      bool       `json:"can_view"`
	CanExecute   bool       `json:"can_execute"`
	CanCopy      bool       `json:"can_copy"`
	CanEdit      bool       `json:"can_edit"`
	CanDelete    bool       `json:"can_delete"`
	CanShare     bool       `json:"can_share"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by_user_id"`
}

// Allows reports whether the grant's boolean for the level is set
func (g *Grant) Allows(level AccessLevel) bool {
	switch level {
	case LevelView:
		return g.CanView
	case LevelExecute:
		return g.CanExecute
	case LevelCopy:
		return g.CanCopy
	case LevelEdit:
		return g.CanEdit
	case LevelDelete:
		return g.CanDelete
	case LevelShare:
		return g.CanShare
	}
	return false
}

// ActiveAt reports whether the grant counts at the given instant
func (g *Grant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// IsGlobal reports whether the grant names no subject and therefore applies
// to every principal
func (g *Grant) IsGlobal() bool {
	return g.UserID == nil && g.TeamID == nil && g.RoleID == nil
}

// SetLevel switches the boolean for one level on or off
func (g *Grant) SetLevel(level AccessLevel, on bool) {
	switch level {
	case LevelView:
		g.CanView = on
	case LevelExecute:
		g.CanExecute = on
	case LevelCopy:
		g.CanCopy = on
	case LevelEdit:
		g.CanEdit = on
	case LevelDelete:
		g.CanDelete = on
	case LevelShare:
		g.CanShare = on
	}
}
