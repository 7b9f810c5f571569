package constants

// Reserved seed ID range. Every row inserted by the seeder carries an ID with
// this prefix so seeded records are distinguishable from user-created ones.
const SeedIDPrefix = "FFFFFFFF-FFFF-FFFF"

// Default IDs for the three distinguished principals. Overridable at startup
// via ROOT_ID, SYSTEM_ID and TEMPLATE_ID.
const (
	DefaultRootID     = "FFFFFFFF-FFFF-FFFF-FFFF-000000000001"
	DefaultSystemID   = "FFFFFFFF-FFFF-FFFF-FFFF-000000000002"
	DefaultTemplateID = "FFFFFFFF-FFFF-FFFF-FFFF-000000000003"
)

// Seed IDs for the built-in role forest. superadmin is the root of the tree,
// admin its child, user the leaf. A role dominates another iff it is an
// ancestor of it (or the same role).
const (
	RoleIDUser       = "FFFFFFFF-FFFF-FFFF-0000-FFFFFFFFFFFF"
	RoleIDAdmin      = "FFFFFFFF-FFFF-FFFF-AAAA-FFFFFFFFFFFF"
	RoleIDSuperadmin = "FFFFFFFF-FFFF-FFFF-FFFF-FFFFFFFFFFFF"
)

// Built-in role names
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)
