package models

import "time"

// User represents a principal. The distinguished ROOT, SYSTEM and TEMPLATE
// principals are ordinary rows in the users table whose IDs are fixed at
// process init from configuration.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by_user_id"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Team represents a team. Teams form a forest through ParentTeamID;
// traversal is bounded by MAX_TEAM_DEPTH.
type Team struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	ParentTeamID *string    `json:"parent_team_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by_user_id"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Role represents a node in the role forest. A role dominates another iff it
// is an ancestor of it (or the same role); parents are the more powerful end.
type Role struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ParentRoleID *string `json:"parent_role_id,omitempty"`
}

// TeamMembership links a user to a team with a role. A disabled or expired
// membership is equivalent to absent.
type TeamMembership struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TeamID    string     `json:"team_id"`
	RoleID    string     `json:"role_id"`
	Enabled   bool       `json:"enabled"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ActiveAt reports whether the membership counts at the given instant
func (m *TeamMembership) ActiveAt(now time.Time) bool {
	if !m.Enabled {
		return false
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return false
	}
	return true
}
