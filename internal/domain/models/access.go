package models

import "fmt"

// AccessLevel is the strictly ordered set of permissions a principal can hold
// on a record. Higher levels do not imply lower ones; each check names the
// exact level it requires.
type AccessLevel int

const (
	LevelView AccessLevel = iota + 1
	LevelExecute
	LevelCopy
	LevelEdit
	LevelDelete
	LevelShare
)

var levelNames = map[AccessLevel]string{
	LevelView:    "view",
	LevelExecute: "execute",
	LevelCopy:    "copy",
	LevelEdit:    "edit",
	LevelDelete:  "delete",
	LevelShare:   "share",
}

func (l AccessLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("access_level(%d)", int(l))
}

// GrantColumn returns the boolean column on the permissions table that
// encodes this level.
func (l AccessLevel) GrantColumn() string {
	return "can_" + l.String()
}

// MinimumRole returns the role name a team membership must dominate to obtain
// this level through team ownership.
func (l AccessLevel) MinimumRole() string {
	if l <= LevelCopy {
		return "user"
	}
	return "admin"
}

// ParseAccessLevel maps a level name to its AccessLevel
func ParseAccessLevel(name string) (AccessLevel, bool) {
	for l, n := range levelNames {
		if n == name {
			return l, true
		}
	}
	return 0, false
}

// AccessLevels lists all levels in ascending order
func AccessLevels() []AccessLevel {
	return []AccessLevel{LevelView, LevelExecute, LevelCopy, LevelEdit, LevelDelete, LevelShare}
}
