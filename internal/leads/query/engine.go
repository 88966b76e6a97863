// Package query serves lead list, detail, and statistics reads through a
// tiered cache, routing free-text searches to the index mirror and
// everything else to the relational store.
package query

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/searchindex"
	"crm_backend/platform/cache"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Cache tags. Every lead read is tagged TagLeads so the write path can
// invalidate all of them in one operation; the narrower tags exist for
// targeted invalidation.
const (
	TagLeads      = "leads"
	TagLeadsList  = "leads_list"
	TagLeadsStats = "leads_stats"
)

// LeadTag is the per-lead tag carried by that lead's detail cache entry.
func LeadTag(id uuid.UUID) string {
	return "lead:" + id.String()
}

// TTL tiers by filter shape. Assignment- and hot-scoped lists change
// often and get the short tier; broad unfiltered lists are stable and get
// the long one.
const (
	ttlVolatile = 5 * time.Minute
	ttlBroad    = 15 * time.Minute
	ttlDefault  = 10 * time.Minute
	ttlDetail   = 15 * time.Minute
	ttlStats    = 30 * time.Minute
)

// BypassReason explains why a read skipped the cache.
type BypassReason string

const (
	BypassForceRefresh   BypassReason = "force_refresh"
	BypassRealtimeWindow BypassReason = "realtime_window"
	BypassElevatedBulk   BypassReason = "elevated_bulk"
	BypassSearchPath     BypassReason = "search_path"
)

// MaxPerPage caps list page sizes.
const MaxPerPage = 100

// Store is the relational read surface the engine consumes. Satisfied by
// *repository.Repository.
type Store interface {
	List(ctx context.Context, params repository.ListParams) ([]domain.Lead, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Lead, error)
	GetStats(ctx context.Context, windowDays int) (repository.LeadStats, error)
	GetCreationTrend(ctx context.Context, days int) ([]repository.DailyLeadCount, error)
}

// Searcher is the index mirror's query surface.
type Searcher interface {
	Search(ctx context.Context, q searchindex.Query) (searchindex.Result, error)
}

// DetailRenderer converts a lead into its response representation. The
// engine caches the serialized form, so a cache hit skips re-rendering as
// well as the store read. The transport layer supplies it.
type DetailRenderer func(lead domain.Lead) any

type Engine struct {
	store        Store
	cache        *cache.Cache
	search       Searcher
	renderDetail DetailRenderer
	logger       *logger.Logger

	realtimeWindow time.Duration
	now            func() time.Time
}

func New(store Store, c *cache.Cache, search Searcher, render DetailRenderer, log *logger.Logger, realtimeWindow time.Duration) *Engine {
	return &Engine{
		store:          store,
		cache:          c,
		search:         search,
		renderDetail:   render,
		logger:         log,
		realtimeWindow: realtimeWindow,
		now:            time.Now,
	}
}

// ListRequest is the filter map for a list query.
type ListRequest struct {
	Search string

	Status      string
	Priority    string
	InquiryType string
	Tag         string

	SourceID   *uuid.UUID
	ServiceID  *uuid.UUID
	AssignedTo *uuid.UUID
	Unassigned bool
	Hot        bool

	BudgetMin *float64
	BudgetMax *float64
	ScoreMin  *int
	ScoreMax  *int

	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	UpdatedAfter *time.Time

	Latitude  *float64
	Longitude *float64
	RadiusKM  *float64

	SortBy    string
	SortOrder string
	Page      int
	PerPage   int

	ForceRefresh bool
	// ElevatedBulk marks a bulk operation by an elevated role; those
	// reads must see live state.
	ElevatedBulk bool
}

func (r *ListRequest) normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PerPage < 1 {
		r.PerPage = 20
	}
	if r.PerPage > MaxPerPage {
		r.PerPage = MaxPerPage
	}
}

// signatureMap canonicalizes the filters for cache keying: only set
// fields appear, values normalized to strings, so equivalent requests in
// any construction order produce the same map.
func (r ListRequest) signatureMap() map[string]any {
	filters := map[string]any{
		"page":     r.Page,
		"per_page": r.PerPage,
	}
	putString := func(key, value string) {
		if value != "" {
			filters[key] = value
		}
	}
	putString("status", r.Status)
	putString("priority", r.Priority)
	putString("inquiry_type", r.InquiryType)
	putString("tag", r.Tag)
	putString("sort_by", r.SortBy)
	putString("sort_order", r.SortOrder)
	if r.SourceID != nil {
		filters["source_id"] = r.SourceID.String()
	}
	if r.ServiceID != nil {
		filters["service_id"] = r.ServiceID.String()
	}
	if r.AssignedTo != nil {
		filters["assigned_to"] = r.AssignedTo.String()
	}
	if r.Unassigned {
		filters["unassigned"] = true
	}
	if r.Hot {
		filters["hot"] = true
	}
	if r.BudgetMin != nil {
		filters["budget_min"] = *r.BudgetMin
	}
	if r.BudgetMax != nil {
		filters["budget_max"] = *r.BudgetMax
	}
	if r.ScoreMin != nil {
		filters["score_min"] = *r.ScoreMin
	}
	if r.ScoreMax != nil {
		filters["score_max"] = *r.ScoreMax
	}
	if r.CreatedFrom != nil {
		filters["created_from"] = r.CreatedFrom.UTC().Format(time.RFC3339)
	}
	if r.CreatedTo != nil {
		filters["created_to"] = r.CreatedTo.UTC().Format(time.RFC3339)
	}
	if r.UpdatedAfter != nil {
		filters["updated_after"] = r.UpdatedAfter.UTC().Format(time.RFC3339)
	}
	if r.Latitude != nil && r.Longitude != nil && r.RadiusKM != nil {
		filters["lat"] = *r.Latitude
		filters["lng"] = *r.Longitude
		filters["radius_km"] = *r.RadiusKM
	}
	return filters
}

// hasScopedFilters reports whether any filter beyond sort/pagination is
// set; an empty filter set gets the broad TTL tier.
func (r ListRequest) hasScopedFilters() bool {
	return r.Status != "" || r.Priority != "" || r.InquiryType != "" || r.Tag != "" ||
		r.SourceID != nil || r.ServiceID != nil || r.AssignedTo != nil ||
		r.Unassigned || r.Hot ||
		r.BudgetMin != nil || r.BudgetMax != nil ||
		r.ScoreMin != nil || r.ScoreMax != nil ||
		r.CreatedFrom != nil || r.CreatedTo != nil || r.UpdatedAfter != nil ||
		r.Latitude != nil
}

func listTTL(r ListRequest) time.Duration {
	if r.AssignedTo != nil || r.Unassigned || r.Hot {
		return ttlVolatile
	}
	if !r.hasScopedFilters() {
		return ttlBroad
	}
	return ttlDefault
}

func (r ListRequest) repoParams() repository.ListParams {
	params := repository.ListParams{
		SourceID:     r.SourceID,
		ServiceID:    r.ServiceID,
		AssignedTo:   r.AssignedTo,
		Unassigned:   r.Unassigned,
		Hot:          r.Hot,
		BudgetMin:    r.BudgetMin,
		BudgetMax:    r.BudgetMax,
		ScoreMin:     r.ScoreMin,
		ScoreMax:     r.ScoreMax,
		CreatedFrom:  r.CreatedFrom,
		CreatedTo:    r.CreatedTo,
		UpdatedAfter: r.UpdatedAfter,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		RadiusKM:     r.RadiusKM,
		SortBy:       r.SortBy,
		SortOrder:    r.SortOrder,
		Limit:        r.PerPage,
		Offset:       (r.Page - 1) * r.PerPage,
	}
	if r.Status != "" {
		status := domain.LeadStatus(r.Status)
		params.Status = &status
	}
	if r.Priority != "" {
		priority := domain.Priority(r.Priority)
		params.Priority = &priority
	}
	if r.InquiryType != "" {
		params.InquiryType = &r.InquiryType
	}
	if r.Tag != "" {
		params.Tag = &r.Tag
	}
	return params
}

// searchQuery translates the filters into the index's vocabulary. Filters
// the index cannot express (geo radius, budget and date ranges) are
// silently not applied on the search path; that is a documented gap, not
// an error.
func (r ListRequest) searchQuery() searchindex.Query {
	return searchindex.Query{
		Term:        r.Search,
		Status:      r.Status,
		Priority:    r.Priority,
		InquiryType: r.InquiryType,
		Tag:         r.Tag,
		AssignedTo:  r.AssignedTo,
		Hot:         r.Hot,
		ScoreMin:    r.ScoreMin,
		ScoreMax:    r.ScoreMax,
		Limit:       r.PerPage,
		Offset:      (r.Page - 1) * r.PerPage,
	}
}

// CacheMeta reports how a read was served.
type CacheMeta struct {
	ServedFromCache bool   `json:"served_from_cache"`
	CacheKey        string `json:"cache_key"`
	TTLUsed         string `json:"ttl_used"`
	BypassReason    string `json:"bypass_reason,omitempty"`
}

// Pagination is the page envelope for list results.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

func paginate(page, perPage, total int) Pagination {
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// listPayload is what a cached list entry stores: the response body minus
// the per-request cache metadata.
type listPayload struct {
	Data       []domain.Lead `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// ListResult is one served list page.
type ListResult struct {
	Data       []domain.Lead
	Pagination Pagination
	Meta       CacheMeta
}

func (e *Engine) bypassReason(r ListRequest) BypassReason {
	if r.ForceRefresh {
		return BypassForceRefresh
	}
	if r.UpdatedAfter != nil && r.UpdatedAfter.After(e.now().Add(-e.realtimeWindow)) {
		return BypassRealtimeWindow
	}
	if r.ElevatedBulk {
		return BypassElevatedBulk
	}
	return ""
}

// List serves one page of leads. A request with a free-text term routes
// to the search index; everything else goes through the cache unless a
// bypass rule applies.
func (e *Engine) List(ctx context.Context, req ListRequest) (ListResult, error) {
	req.normalize()

	if req.Search != "" {
		return e.searchList(ctx, req)
	}

	key := Signature("list", req.signatureMap())
	ttl := listTTL(req)
	meta := CacheMeta{CacheKey: key, TTLUsed: ttl.String()}

	if reason := e.bypassReason(req); reason != "" {
		meta.BypassReason = string(reason)
		data, total, err := e.store.List(ctx, req.repoParams())
		if err != nil {
			return ListResult{}, err
		}
		return ListResult{Data: data, Pagination: paginate(req.Page, req.PerPage, total), Meta: meta}, nil
	}

	var payload listPayload
	hit, err := e.cache.GetJSON(ctx, key, &payload)
	if err != nil {
		e.logger.CacheEvent("read_failed", key, nil)
	}
	if hit {
		meta.ServedFromCache = true
		return ListResult{Data: payload.Data, Pagination: payload.Pagination, Meta: meta}, nil
	}

	data, total, err := e.store.List(ctx, req.repoParams())
	if err != nil {
		return ListResult{}, err
	}
	payload = listPayload{Data: data, Pagination: paginate(req.Page, req.PerPage, total)}
	if err := e.cache.SetJSON(ctx, key, payload, ttl, TagLeads, TagLeadsList); err != nil {
		e.logger.CacheEvent("write_failed", key, []string{TagLeads, TagLeadsList})
	}
	return ListResult{Data: payload.Data, Pagination: payload.Pagination, Meta: meta}, nil
}

// searchList runs the search path: the index decides which ids match and
// in what order; the relational store supplies the records, re-ordered to
// the index's exact sequence. Search results are never cached.
func (e *Engine) searchList(ctx context.Context, req ListRequest) (ListResult, error) {
	result, err := e.search.Search(ctx, req.searchQuery())
	if err != nil {
		return ListResult{}, err
	}

	records, err := e.store.GetByIDs(ctx, result.IDs)
	if err != nil {
		return ListResult{}, err
	}
	byID := make(map[uuid.UUID]domain.Lead, len(records))
	for _, lead := range records {
		byID[lead.ID] = lead
	}

	// Index hits missing from the store are mirror drift; drop them
	// rather than fail the page.
	data := make([]domain.Lead, 0, len(result.IDs))
	for _, id := range result.IDs {
		if lead, ok := byID[id]; ok {
			data = append(data, lead)
		}
	}

	return ListResult{
		Data:       data,
		Pagination: paginate(req.Page, req.PerPage, result.Total),
		Meta: CacheMeta{
			CacheKey:     Signature("search", req.signatureMap()),
			TTLUsed:      "0s",
			BypassReason: string(BypassSearchPath),
		},
	}, nil
}

// Detail serves one lead's rendered response payload, cached per lead id
// so a mutation can invalidate exactly that lead's entry. What goes into
// the cache is the serialized representation, not the relational record.
func (e *Engine) Detail(ctx context.Context, id uuid.UUID, forceRefresh bool) (json.RawMessage, CacheMeta, error) {
	key := "leads:detail:" + id.String()
	meta := CacheMeta{CacheKey: key, TTLUsed: ttlDetail.String()}

	if forceRefresh {
		meta.BypassReason = string(BypassForceRefresh)
		lead, err := e.store.GetByID(ctx, id)
		if err != nil {
			return nil, meta, err
		}
		payload, err := json.Marshal(e.renderDetail(lead))
		return payload, meta, err
	}

	var cached json.RawMessage
	hit, err := e.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		e.logger.CacheEvent("read_failed", key, nil)
	}
	if hit && len(cached) > 0 {
		meta.ServedFromCache = true
		return cached, meta, nil
	}

	lead, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, meta, err
	}
	payload, err := json.Marshal(e.renderDetail(lead))
	if err != nil {
		return nil, meta, err
	}
	if err := e.cache.SetJSON(ctx, key, json.RawMessage(payload), ttlDetail, TagLeads, LeadTag(id)); err != nil {
		e.logger.CacheEvent("write_failed", key, []string{TagLeads, LeadTag(id)})
	}
	return payload, meta, nil
}

// StatsRequest selects the statistics window.
type StatsRequest struct {
	TrendDays    int
	ForceRefresh bool
}

// StatsData is the cached statistics payload.
type StatsData struct {
	Stats repository.LeadStats        `json:"stats"`
	Trend []repository.DailyLeadCount `json:"trend"`
}

// Stats serves the dashboard aggregates, cached for the stats tier.
func (e *Engine) Stats(ctx context.Context, req StatsRequest) (StatsData, CacheMeta, error) {
	if req.TrendDays < 1 {
		req.TrendDays = 30
	}
	key := Signature("stats", map[string]any{"trend_days": strconv.Itoa(req.TrendDays)})
	meta := CacheMeta{CacheKey: key, TTLUsed: ttlStats.String()}

	if !req.ForceRefresh {
		var cached StatsData
		hit, err := e.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			e.logger.CacheEvent("read_failed", key, nil)
		}
		if hit {
			meta.ServedFromCache = true
			return cached, meta, nil
		}
	} else {
		meta.BypassReason = string(BypassForceRefresh)
	}

	stats, err := e.store.GetStats(ctx, req.TrendDays)
	if err != nil {
		return StatsData{}, meta, err
	}
	trend, err := e.store.GetCreationTrend(ctx, req.TrendDays)
	if err != nil {
		return StatsData{}, meta, err
	}
	data := StatsData{Stats: stats, Trend: trend}
	if !req.ForceRefresh {
		if err := e.cache.SetJSON(ctx, key, data, ttlStats, TagLeads, TagLeadsStats); err != nil {
			e.logger.CacheEvent("write_failed", key, []string{TagLeads, TagLeadsStats})
		}
	}
	return data, meta, nil
}

// InvalidateLead drops every cached read touching leads plus the given
// lead's detail entry. Called after any lead mutation commits; tag-based
// invalidation replaces any attempt to reconstruct filter-derived keys.
func (e *Engine) InvalidateLead(ctx context.Context, id uuid.UUID) {
	tags := []string{TagLeads, LeadTag(id)}
	deleted, err := e.cache.InvalidateTags(ctx, tags...)
	if err != nil {
		e.logger.CacheEvent("invalidate_failed", "", tags)
		return
	}
	e.logger.CacheEvent("invalidated", strconv.Itoa(deleted)+" keys", tags)
}
