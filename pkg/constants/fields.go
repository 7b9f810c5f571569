package constants

// Audit and ownership column names shared by every managed table
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldCreatedBy = "created_by_user_id"
	FieldUpdatedAt = "updated_at"
	FieldUpdatedBy = "updated_by_user_id"
	FieldDeletedAt = "deleted_at"
	FieldDeletedBy = "deleted_by_user_id"
	FieldUserID    = "user_id"
	FieldTeamID    = "team_id"
	FieldParentID  = "parent_id"
	FieldImageURL  = "image_url"
)

// Core table names
const (
	TableUsers           = "users"
	TableTeams           = "teams"
	TableRoles           = "roles"
	TableUserTeams       = "user_teams"
	TablePermissions     = "permissions"
	TableAuditLogEntries = "audit_log_entries"
)

// Environment variable keys
const (
	EnvRootID       = "ROOT_ID"
	EnvSystemID     = "SYSTEM_ID"
	EnvTemplateID   = "TEMPLATE_ID"
	EnvExtensions   = "APP_EXTENSIONS"
	EnvSeedData     = "SEED_DATA"
	EnvMaxTeamDepth = "MAX_TEAM_DEPTH"
)

// DefaultMaxTeamDepth bounds team parent-chain traversal
const DefaultMaxTeamDepth = 5

// Pagination defaults for list and search
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)
