package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/models"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// PermissionHandler manages explicit grants
type PermissionHandler struct {
	sm *services.ServiceManager
}

// NewPermissionHandler creates a new PermissionHandler
func NewPermissionHandler(sm *services.ServiceManager) *PermissionHandler {
	return &PermissionHandler{sm: sm}
}

// grantPayload is the POST /permissions body: a grant plus an optional list
// of level names ("view", "edit", ...) merged into the can_* booleans
type grantPayload struct {
	models.Grant
	Levels []string `json:"levels"`
}

// applyLevels folds the named levels into the grant
func (p *grantPayload) applyLevels() error {
	for _, name := range p.Levels {
		level, ok := models.ParseAccessLevel(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return apperrors.NewValidationError("levels", "unknown access level "+name)
		}
		p.Grant.SetLevel(level, true)
	}
	return nil
}

// CreateGrant handles POST /permissions. The grantor needs SHARE on the
// target record.
func (h *PermissionHandler) CreateGrant(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	var payload grantPayload
	if !BindJSON(c, &payload) {
		return
	}
	if err := payload.applyLevels(); err != nil {
		RespondAppError(c, err)
		return
	}
	if err := h.sm.Permissions.CreateGrant(c.Request.Context(), actor.RequesterID, &payload.Grant); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"permission": payload.Grant})
}

// RevokeGrant handles DELETE /permissions/:id
func (h *PermissionHandler) RevokeGrant(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	if err := h.sm.Permissions.RevokeGrant(c.Request.Context(), actor.RequesterID, c.Param("id")); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "revoked"})
}
