package rest

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/interfaces/middleware"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// ActorFromContext builds the pipeline actor from the session and the
// optional targeting headers. Acting on behalf of another user or team is
// still subject to the permission engine.
func ActorFromContext(c *gin.Context) (services.ActorContext, bool) {
	session := middleware.SessionFromContext(c)
	if session == nil {
		return services.ActorContext{}, false
	}
	return services.ActorContext{
		RequesterID:  session.ID,
		TargetUserID: c.GetHeader("X-Target-User-ID"),
		TargetTeamID: c.GetHeader("X-Target-Team-ID"),
	}, true
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := apperrors.GetHTTPStatus(err)
	errorCode := apperrors.GetErrorCode(err)
	message := err.Error()

	if code >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", code, c.Request.Method, c.Request.URL.Path, message)
	}

	c.JSON(code, gin.H{
		"error":   message,
		"message": message,
		"code":    errorCode,
		"data":    nil,
	})
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, apperrors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

func abortUnauthenticated(c *gin.Context) {
	RespondAppError(c, apperrors.NewUnauthorizedError("missing session"))
}

// csvParam splits a comma-separated query value, dropping empties
func csvParam(c *gin.Context, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// batchStatus picks the response code for a batch result: 201/200 when every
// item succeeded, 207 when outcomes are mixed
func batchStatus(result services.BatchResult, allOK int) int {
	if result.Failed() {
		return http.StatusMultiStatus
	}
	return allOK
}
