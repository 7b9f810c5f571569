package utils

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tenantcore/backend/pkg/constants"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()
	require.True(t, IsValidUUID(a))
	require.True(t, IsValidUUID(b))
	require.NotEqual(t, a, b)
}

func TestIsValidUUID(t *testing.T) {
	require.True(t, IsValidUUID("11111111-2222-3333-4444-555555555555"))
	require.False(t, IsValidUUID(""))
	require.False(t, IsValidUUID("not-a-uuid"))
}

func TestIsSeedID(t *testing.T) {
	require.True(t, IsSeedID(constants.SeedIDPrefix+"-0000-000000000001"))
	require.True(t, IsSeedID("ffffffff-ffff-ffff-0000-000000000001"))
	require.False(t, IsSeedID("11111111-2222-3333-4444-555555555555"))
	require.False(t, IsSeedID(""))
}
