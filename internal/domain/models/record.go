package models

import (
	"time"

	"github.com/tenantcore/backend/pkg/constants"
)

// Record represents a generic managed row. Every entity kind flows through
// the pipeline as a Record; typed views are the caller's concern.
type Record map[string]interface{}

// Helper methods for Record

func (r Record) GetString(key string) string {
	if v, ok := r[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (r Record) GetBool(key string) bool {
	if v, ok := r[key]; ok && v != nil {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func (r Record) GetTime(key string) *time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}
	return nil
}

// ID returns the record's primary key
func (r Record) ID() string {
	return r.GetString(constants.FieldID)
}

// CreatedBy returns the creating principal's ID
func (r Record) CreatedBy() string {
	return r.GetString(constants.FieldCreatedBy)
}

// OwnerUserID returns the direct owner, empty when the kind is not user-scoped
func (r Record) OwnerUserID() string {
	return r.GetString(constants.FieldUserID)
}

// OwnerTeamID returns the owning team, empty when the kind is not team-scoped
func (r Record) OwnerTeamID() string {
	return r.GetString(constants.FieldTeamID)
}

// IsDeleted reports whether the record carries a soft-delete stamp
func (r Record) IsDeleted() bool {
	return r.GetTime(constants.FieldDeletedAt) != nil
}

// Clone returns a shallow copy, used to hand before-hooks a mutable draft and
// to keep update pre-images stable
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
