package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantcore/backend/internal/application/services"
)

// ExtensionHandler exposes the loaded extension set and their abilities
type ExtensionHandler struct {
	sm *services.ServiceManager
}

// NewExtensionHandler creates a new ExtensionHandler
func NewExtensionHandler(sm *services.ServiceManager) *ExtensionHandler {
	return &ExtensionHandler{sm: sm}
}

// List handles GET /extensions
func (h *ExtensionHandler) List(c *gin.Context) {
	loaded := h.sm.Extensions.Loaded()
	out := make([]gin.H, 0, len(loaded))
	for _, ext := range loaded {
		out = append(out, gin.H{
			"name":        ext.Name(),
			"version":     ext.Version(),
			"description": ext.Description(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"extensions": out,
		"unloadable": h.sm.Extensions.Unloadable(),
	})
}

// ExecuteAbility handles POST /extensions/:name/abilities/:ability with an
// optional JSON argument object
func (h *ExtensionHandler) ExecuteAbility(c *gin.Context) {
	if _, ok := ActorFromContext(c); !ok {
		abortUnauthenticated(c)
		return
	}
	args := make(map[string]interface{})
	if c.Request.ContentLength > 0 {
		if !BindJSON(c, &args) {
			return
		}
	}
	result, err := h.sm.Extensions.ExecuteAbility(c.Request.Context(), c.Param("name"), c.Param("ability"), args)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
