package rest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tenantcore/backend/internal/domain/models"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

func TestGrantPayloadAppliesLevels(t *testing.T) {
	p := grantPayload{Levels: []string{"view", " Edit ", "SHARE"}}
	require.NoError(t, p.applyLevels())
	require.True(t, p.Grant.CanView)
	require.True(t, p.Grant.CanEdit)
	require.True(t, p.Grant.CanShare)
	require.False(t, p.Grant.CanExecute)
	require.False(t, p.Grant.CanCopy)
	require.False(t, p.Grant.CanDelete)
}

func TestGrantPayloadKeepsExplicitBooleans(t *testing.T) {
	p := grantPayload{Grant: models.Grant{CanCopy: true}, Levels: []string{"view"}}
	require.NoError(t, p.applyLevels())
	require.True(t, p.Grant.CanCopy)
	require.True(t, p.Grant.CanView)
}

func TestGrantPayloadRejectsUnknownLevel(t *testing.T) {
	p := grantPayload{Levels: []string{"admin"}}
	err := p.applyLevels()
	require.True(t, apperrors.IsValidation(err))
	require.Contains(t, err.Error(), "admin")
}
