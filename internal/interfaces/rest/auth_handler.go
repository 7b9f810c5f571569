package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/interfaces/middleware"
	"github.com/tenantcore/backend/pkg/auth"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// AuthHandler issues and introspects sessions
type AuthHandler struct {
	sm *services.ServiceManager
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(sm *services.ServiceManager) *AuthHandler {
	return &AuthHandler{sm: sm}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a signed token
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !BindJSON(c, &req) {
		return
	}

	user, err := h.sm.Auth.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		// Same answer for unknown email and wrong password
		RespondAppError(c, apperrors.NewUnauthorizedError("invalid credentials"))
		return
	}
	if !user.Active {
		RespondAppError(c, apperrors.NewUnauthorizedError("account is disabled"))
		return
	}

	session := auth.UserSession{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName}
	token, err := auth.GenerateToken(session)
	if err != nil {
		RespondAppError(c, apperrors.NewInternalError("failed to sign token", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  session,
	})
}

// Me returns the authenticated session
func (h *AuthHandler) Me(c *gin.Context) {
	session := middleware.SessionFromContext(c)
	if session == nil {
		abortUnauthenticated(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": session})
}
