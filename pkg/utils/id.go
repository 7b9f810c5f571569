package utils

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/tenantcore/backend/pkg/constants"
)

// GenerateID generates a new UUID v4 string
func GenerateID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		log.Printf("Failed to generate UUID: %v", err)
		return ""
	}
	return id.String()
}

// IsValidUUID checks if the string is a valid UUID
func IsValidUUID(u string) bool {
	_, err := uuid.Parse(u)
	return err == nil
}

// IsSeedID reports whether the ID lies in the reserved seed range
func IsSeedID(id string) bool {
	return strings.HasPrefix(strings.ToUpper(id), constants.SeedIDPrefix)
}
