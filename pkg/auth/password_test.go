package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3rSecret")
	require.NoError(t, err)
	require.NotEqual(t, "Sup3rSecret", hash)

	require.True(t, VerifyPassword("Sup3rSecret", hash))
	require.False(t, VerifyPassword("sup3rsecret", hash))
	require.False(t, VerifyPassword("Sup3rSecret", "not-a-hash"))
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		wantErr  string
	}{
		{"Abc123xy", ""},
		{"Ab1", "at least 8 characters"},
		{strings.Repeat("Ab1", 50), "must not exceed 128"},
		{"abc123xyz", "uppercase"},
		{"ABC123XYZ", "lowercase"},
		{"Abcdefgh", "number"},
	}
	for _, tc := range cases {
		err := ValidatePasswordStrength(tc.password)
		if tc.wantErr == "" {
			require.NoError(t, err, tc.password)
		} else {
			require.ErrorContains(t, err, tc.wantErr, tc.password)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	require.True(t, IsValidEmail("a@example.com"))
	require.True(t, IsValidEmail("  a@example.com  "))
	require.True(t, IsValidEmail("first.last+tag@sub.example.co"))

	require.False(t, IsValidEmail(""))
	require.False(t, IsValidEmail("no-at-sign"))
	require.False(t, IsValidEmail("a@b"))
	require.False(t, IsValidEmail("@example.com"))
}
