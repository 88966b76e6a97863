package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/query"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/transport"
	"crm_backend/platform/httpkit"
)

// LogActivity records an activity against a lead.
// POST /api/v1/leads/:id/activities
func (h *Handler) LogActivity(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.GetIdentity(c)

	activity, err := h.svc.LogActivity(c.Request.Context(), identity.UserID(), req.ToCreateParams(leadID))
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToActivityResponse(activity))
}

// ListActivities serves the activity timeline of a lead.
// GET /api/v1/leads/:id/activities
func (h *Handler) ListActivities(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.ListActivitiesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	perPage := req.PerPage
	if perPage < 1 {
		perPage = 20
	}
	params := repository.ListActivitiesParams{
		LeadID: leadID,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if req.Type != "" {
		t := domain.ActivityType(req.Type)
		params.Type = &t
	}
	if req.Status != "" {
		s := domain.ActivityStatus(req.Status)
		params.Status = &s
	}
	if req.Category != "" {
		cat := domain.ActivityCategory(req.Category)
		params.Category = &cat
	}

	activities, total, err := h.svc.ListActivities(c.Request.Context(), params)
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	httpkit.OK(c, transport.ActivityListResponse{
		Data: transport.ToActivityResponses(activities),
		Pagination: query.Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    page < totalPages,
		},
	})
}

// UpdateActivity applies a partial update to an activity.
// PATCH /api/v1/activities/:id
func (h *Handler) UpdateActivity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid activity id", nil)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var rawBody map[string]any
	if err := json.Unmarshal(body, &rawBody); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.UpdateActivityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	req.MarkSetFields(rawBody)
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	activity, err := h.svc.UpdateActivity(c.Request.Context(), id, req.ToUpdateParams())
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.OK(c, transport.ToActivityResponse(activity))
}

// DeleteActivity soft-deletes an activity.
// DELETE /api/v1/activities/:id
func (h *Handler) DeleteActivity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid activity id", nil)
		return
	}
	if err := h.svc.DeleteActivity(c.Request.Context(), id); err != nil {
		httpkit.DomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReindexSearch drops and rebuilds the search index. Admin only.
// POST /api/v1/admin/search/reindex
func (h *Handler) ReindexSearch(c *gin.Context) {
	identity := httpkit.GetIdentity(c)
	if !identity.HasRole(RoleAdmin) {
		httpkit.Error(c, http.StatusForbidden, "reindex requires the admin role", nil)
		return
	}

	indexed, err := h.reindex.Reindex(c.Request.Context())
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.OK(c, transport.ReindexResponse{Indexed: indexed})
}
