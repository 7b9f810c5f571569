package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenantcore/backend/internal/application/services"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// ServiceHandler exposes supervisor state and lifecycle control. Lifecycle
// mutation is reserved to ROOT.
type ServiceHandler struct {
	sm *services.ServiceManager
}

// NewServiceHandler creates a new ServiceHandler
func NewServiceHandler(sm *services.ServiceManager) *ServiceHandler {
	return &ServiceHandler{sm: sm}
}

// List handles GET /services
func (h *ServiceHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": h.sm.Supervisor.Statuses()})
}

// Control handles POST /services/:name/:action where action is one of
// start, stop, pause, resume
func (h *ServiceHandler) Control(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		abortUnauthenticated(c)
		return
	}
	if !h.sm.Identity.IsRoot(actor.RequesterID) {
		RespondAppError(c, &apperrors.PermissionError{Action: c.Param("action"), Resource: "service", Reason: "lifecycle control is reserved"})
		return
	}

	name := c.Param("name")
	var err error
	switch c.Param("action") {
	case "start":
		err = h.sm.Supervisor.Start(name)
	case "stop":
		err = h.sm.Supervisor.Stop(name)
	case "pause":
		err = h.sm.Supervisor.Pause(name)
	case "resume":
		err = h.sm.Supervisor.Resume(name)
	default:
		err = apperrors.NewValidationError("action", "unknown service action")
	}
	if err != nil {
		RespondAppError(c, err)
		return
	}

	state, err := h.sm.Supervisor.State(name)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "state": state})
}
