package constants

// Core entity kind names
const (
	KindUser       = "user"
	KindTeam       = "team"
	KindRole       = "role"
	KindMembership = "user_team"
	KindPermission = "permission"
	KindProvider   = "provider"
)
