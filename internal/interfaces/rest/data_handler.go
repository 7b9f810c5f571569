package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/models"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// DataHandler is the generic entity transport: one set of routes serving
// every registered kind through the manager pipeline.
type DataHandler struct {
	sm *services.ServiceManager
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(sm *services.ServiceManager) *DataHandler {
	return &DataHandler{sm: sm}
}

// query parameter names reserved by the transport; everything else is an
// equality filter
var reservedQueryParams = map[string]bool{
	"limit": true, "offset": true, "sort": true, "order": true,
	"fields": true, "include": true, "include_deleted": true,
	"exact": true, "target_ids": true,
}

func (h *DataHandler) manager(c *gin.Context) (*services.Manager, bool) {
	actor, ok := ActorFromContext(c)
	if !ok {
		abortUnauthenticated(c)
		return nil, false
	}
	mgr, err := h.sm.Entities.ManagerByPlural(c.Param("plural"), actor)
	if err != nil {
		RespondAppError(c, err)
		return nil, false
	}
	return mgr, true
}

// Create handles both payload shapes on POST /data/:plural:
// single {kind: {...}} and batch {plural: [{...}, ...]}
func (h *DataHandler) Create(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}
	var body map[string]interface{}
	if !BindJSON(c, &body) {
		return
	}

	if raw, exists := body[mgr.Def().Plural]; exists {
		items, ok := raw.([]interface{})
		if !ok {
			RespondAppError(c, apperrors.NewValidationError(mgr.Def().Plural, "batch payload must be an array"))
			return
		}
		drafts := make([]models.Record, 0, len(items))
		for _, item := range items {
			draft, ok := item.(map[string]interface{})
			if !ok {
				RespondAppError(c, apperrors.NewValidationError(mgr.Def().Plural, "batch items must be objects"))
				return
			}
			drafts = append(drafts, models.Record(draft))
		}
		result := mgr.CreateMany(c.Request.Context(), drafts)
		c.JSON(batchStatus(result, http.StatusCreated), gin.H{
			mgr.Def().Plural: result.Successes,
			"errors":         result.Errors,
		})
		return
	}

	raw, exists := body[mgr.Def().Kind]
	if !exists {
		RespondAppError(c, apperrors.NewValidationError("body", "payload must be keyed by the entity name"))
		return
	}
	draft, ok := raw.(map[string]interface{})
	if !ok {
		RespondAppError(c, apperrors.NewValidationError(mgr.Def().Kind, "payload must be an object"))
		return
	}

	rec, err := mgr.Create(c.Request.Context(), models.Record(draft))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{mgr.Def().Kind: rec})
}

// Get handles GET /data/:plural/:id
func (h *DataHandler) Get(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}
	rec, err := mgr.Get(c.Request.Context(), c.Param("id"), services.GetOptions{
		Fields:         csvParam(c, "fields"),
		Include:        csvParam(c, "include"),
		IncludeDeleted: c.Query("include_deleted") == "true",
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{mgr.Def().Kind: rec})
}

// List handles GET /data/:plural; non-reserved query parameters are equality
// filters
func (h *DataHandler) List(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}

	params := h.listParams(c)
	filters := make(map[string]interface{})
	for key, values := range c.Request.URL.Query() {
		if reservedQueryParams[key] || len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}
	params.Filters = filters

	recs, err := mgr.List(c.Request.Context(), params)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{mgr.Def().Plural: recs})
}

// Search handles POST /data/:plural/search with the {kind: {field: clause}}
// payload
func (h *DataHandler) Search(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}
	var body map[string]interface{}
	if !BindJSON(c, &body) {
		return
	}
	raw, exists := body[mgr.Def().Kind]
	if !exists {
		RespondAppError(c, apperrors.NewValidationError("body", "search payload must be keyed by the entity name"))
		return
	}
	clauses, ok := raw.(map[string]interface{})
	if !ok {
		RespondAppError(c, apperrors.NewValidationError(mgr.Def().Kind, "search payload must be an object"))
		return
	}

	recs, err := mgr.Search(c.Request.Context(), clauses, h.listParams(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{mgr.Def().Plural: recs})
}

// Update handles PUT /data/:plural/:id with the single payload shape
func (h *DataHandler) Update(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}
	var body map[string]interface{}
	if !BindJSON(c, &body) {
		return
	}
	raw, exists := body[mgr.Def().Kind]
	if !exists {
		RespondAppError(c, apperrors.NewValidationError("body", "payload must be keyed by the entity name"))
		return
	}
	partial, ok := raw.(map[string]interface{})
	if !ok {
		RespondAppError(c, apperrors.NewValidationError(mgr.Def().Kind, "payload must be an object"))
		return
	}

	rec, err := mgr.Update(c.Request.Context(), c.Param("id"), models.Record(partial))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{mgr.Def().Kind: rec})
}

type batchUpdateRequest struct {
	TargetIDs []string `json:"target_ids"`
}

// BatchUpdate handles PUT /data/:plural with {kind: {...partial...},
// target_ids: [...]}
func (h *DataHandler) BatchUpdate(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}
	var body map[string]interface{}
	if !BindJSON(c, &body) {
		return
	}

	raw, exists := body[mgr.Def().Kind]
	if !exists {
		RespondAppError(c, apperrors.NewValidationError("body", "payload must be keyed by the entity name"))
		return
	}
	partial, ok := raw.(map[string]interface{})
	if !ok {
		RespondAppError(c, apperrors.NewValidationError(mgr.Def().Kind, "payload must be an object"))
		return
	}

	rawIDs, _ := body["target_ids"].([]interface{})
	if len(rawIDs) == 0 {
		RespondAppError(c, apperrors.NewValidationError("target_ids", "batch update requires target ids"))
		return
	}
	ids := make([]string, 0, len(rawIDs))
	for _, v := range rawIDs {
		id, ok := v.(string)
		if !ok {
			RespondAppError(c, apperrors.NewValidationError("target_ids", "target ids must be strings"))
			return
		}
		ids = append(ids, id)
	}

	result := mgr.BatchUpdate(c.Request.Context(), ids, models.Record(partial))
	c.JSON(batchStatus(result, http.StatusOK), gin.H{
		mgr.Def().Plural: result.Successes,
		"errors":         result.Errors,
	})
}

// Delete handles DELETE /data/:plural/:id
func (h *DataHandler) Delete(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}
	if err := mgr.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// BatchDelete handles DELETE /data/:plural?target_ids=a,b,c
func (h *DataHandler) BatchDelete(c *gin.Context) {
	mgr, ok := h.manager(c)
	if !ok {
		return
	}
	ids := csvParam(c, "target_ids")
	if len(ids) == 0 {
		RespondAppError(c, apperrors.NewValidationError("target_ids", "batch delete requires target ids"))
		return
	}
	result := mgr.BatchDelete(c.Request.Context(), ids)
	c.JSON(batchStatus(result, http.StatusOK), gin.H{
		mgr.Def().Plural: result.Successes,
		"errors":         result.Errors,
	})
}

func (h *DataHandler) listParams(c *gin.Context) services.ListParams {
	params := services.ListParams{
		SortField:      c.Query("sort"),
		Fields:         csvParam(c, "fields"),
		Include:        csvParam(c, "include"),
		IncludeDeleted: c.Query("include_deleted") == "true",
		Exact:          c.Query("exact") == "true",
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		params.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		params.Offset = v
	}
	if order := c.Query("order"); order != "" {
		desc := order != "asc"
		params.SortDesc = &desc
	}
	return params
}
