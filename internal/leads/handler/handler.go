// Package handler exposes the leads API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm_backend/internal/leads/query"
	"crm_backend/internal/leads/service"
	"crm_backend/internal/leads/transport"
	"crm_backend/platform/httpkit"
	"crm_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid lead id"

	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// Reindexer rebuilds the search index from scratch.
type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

type Handler struct {
	svc     *service.Service
	val     *validator.Validator
	reindex Reindexer
}

func New(svc *service.Service, val *validator.Validator, reindex Reindexer) *Handler {
	return &Handler{svc: svc, val: val, reindex: reindex}
}

func elevated(identity httpkit.Identity) bool {
	return identity.HasRole(RoleAdmin) || identity.HasRole(RoleManager)
}

// ListLeads retrieves leads.
// GET /api/v1/leads
func (h *Handler) ListLeads(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.GetIdentity(c)
	elevatedBulk := req.Bulk && elevated(identity)

	result, err := h.svc.ListLeads(c.Request.Context(), req.ToListRequest(elevatedBulk))
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.OK(c, transport.LeadListResponse{
		Data:       transport.ToLeadResponses(result.Data),
		Pagination: result.Pagination,
		Meta:       transport.ToCacheMetaResponse(result.Meta),
	})
}

// GetLead retrieves one lead.
// GET /api/v1/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	forceRefresh := c.Query("forceRefresh") == "true"

	payload, meta, err := h.svc.GetLead(c.Request.Context(), id, forceRefresh)
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.OK(c, transport.LeadDetailResponse{
		Data: payload,
		Meta: transport.ToCacheMetaResponse(meta),
	})
}

// CreateLead creates a lead.
// POST /api/v1/leads
func (h *Handler) CreateLead(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.GetIdentity(c)

	lead, err := h.svc.CreateLead(c.Request.Context(), identity.UserID(), req.ToCreateParams())
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToLeadResponse(lead))
}

// UpdateLead applies a partial update.
// PATCH /api/v1/leads/:id
func (h *Handler) UpdateLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	// The body is decoded twice: once into a raw map to learn which keys
	// were present (null-to-clear vs. leave-unchanged), once into the
	// typed request.
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
	var req transport.UpdateLeadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	req.MarkSetFields(rawBody)
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.GetIdentity(c)

	lead, err := h.svc.UpdateLead(c.Request.Context(), identity.UserID(), id, req.ToUpdateParams())
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// DeleteLead soft-deletes a lead.
// DELETE /api/v1/leads/:id
func (h *Handler) DeleteLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if err := h.svc.DeleteLead(c.Request.Context(), id); err != nil {
		httpkit.DomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkDeleteLeads soft-deletes a batch. Restricted to elevated roles.
// POST /api/v1/leads/bulk-delete
func (h *Handler) BulkDeleteLeads(c *gin.Context) {
	identity := httpkit.GetIdentity(c)
	if !elevated(identity) {
		httpkit.Error(c, http.StatusForbidden, "bulk delete requires an elevated role", nil)
		return
	}
	var req transport.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	deleted, err := h.svc.BulkDeleteLeads(c.Request.Context(), req.IDs)
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.OK(c, transport.BulkDeleteResponse{Deleted: deleted})
}

// GetStats serves the dashboard aggregates.
// GET /api/v1/leads/stats
func (h *Handler) GetStats(c *gin.Context) {
	req := query.StatsRequest{
		ForceRefresh: c.Query("forceRefresh") == "true",
	}
	if days := c.Query("trendDays"); days != "" {
		if parsed, err := parsePositiveInt(days); err == nil {
			req.TrendDays = parsed
		}
	}

	data, meta, err := h.svc.Stats(c.Request.Context(), req)
	if err != nil {
		httpkit.DomainError(c, err)
		return
	}
	httpkit.OK(c, transport.StatsResponse{
		Data: data,
		Meta: transport.ToCacheMetaResponse(meta),
	})
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
