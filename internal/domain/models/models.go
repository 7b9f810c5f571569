// Package models defines the domain models for the tenantcore backend.
//
// The models are organized into the following files:
// - auth.go: Users, Teams, Roles and team memberships
// - permission.go: Explicit permission grants
// - access.go: The ordered access-level enum
// - record.go: The generic record type flowing through the entity pipeline
package models
