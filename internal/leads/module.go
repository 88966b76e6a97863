// Package leads provides the lead management bounded context module.
package leads

import (
	"context"

	"crm_backend/internal/directory"
	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/internal/leads/aggregates"
	"crm_backend/internal/leads/audit"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/handler"
	"crm_backend/internal/leads/query"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/searchindex"
	"crm_backend/internal/leads/service"
	"crm_backend/internal/leads/transport"
	"crm_backend/platform/cache"
	"crm_backend/platform/config"
	"crm_backend/platform/logger"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig is the configuration surface the leads module needs.
type ModuleConfig interface {
	config.CacheConfig
	config.SearchConfig
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	mirror  *searchindex.Mirror
	repo    *repository.Repository
	logger  *logger.Logger
}

// NewModule creates and initializes the leads module. The search index
// mirror shares the cache's Redis connection.
func NewModule(pool *pgxpool.Pool, c *cache.Cache, bus events.Bus, val *validator.Validator, cfg ModuleConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	dir := directory.New(pool)

	auditGen := audit.New(repo, dir, log)
	agg := aggregates.New(repo)
	mirror := searchindex.New(c.Client(), repo, log, cfg.GetSearchIndexName(), cfg.GetSearchReindexBatchSize())
	renderDetail := func(lead domain.Lead) any { return transport.ToLeadResponse(lead) }
	engine := query.New(repo, c, mirror, renderDetail, log, cfg.GetCacheRealtimeWindow())

	svc := service.New(repo, auditGen, agg, engine, bus, log)
	h := handler.New(svc, val, mirror)

	return &Module{
		handler: h,
		service: svc,
		mirror:  mirror,
		repo:    repo,
		logger:  log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the service layer for external use (scheduler jobs).
func (m *Module) Service() *service.Service {
	return m.service
}

// Mirror returns the search index mirror for external use (reindex jobs).
func (m *Module) Mirror() *searchindex.Mirror {
	return m.mirror
}

// EnsureSearchIndex creates the RediSearch index if it does not exist yet.
func (m *Module) EnsureSearchIndex(ctx context.Context) error {
	return m.mirror.EnsureIndex(ctx)
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	leads.GET("", m.handler.ListLeads)
	leads.POST("", m.handler.CreateLead)
	leads.GET("/stats", m.handler.GetStats)
	leads.POST("/bulk-delete", m.handler.BulkDeleteLeads)
	leads.GET("/:id", m.handler.GetLead)
	leads.PATCH("/:id", m.handler.UpdateLead)
	leads.DELETE("/:id", m.handler.DeleteLead)
	leads.POST("/:id/activities", m.handler.LogActivity)
	leads.GET("/:id/activities", m.handler.ListActivities)

	activities := ctx.Protected.Group("/activities")
	activities.PATCH("/:id", m.handler.UpdateActivity)
	activities.DELETE("/:id", m.handler.DeleteActivity)

	ctx.Admin.POST("/search/reindex", m.handler.ReindexSearch)
}

// RegisterHandlers subscribes the search index mirror to lead lifecycle
// events so every committed write is projected into RediSearch.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.LeadUpdated{}.EventName(), m)
	bus.Subscribe(events.LeadDeleted{}.EventName(), m)
	bus.Subscribe(events.ActivityLogged{}.EventName(), m)
}

// Handle routes events to the search index mirror.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		return m.mirror.SyncLead(ctx, e.LeadID)
	case events.LeadUpdated:
		return m.mirror.SyncLead(ctx, e.LeadID)
	case events.LeadDeleted:
		return m.mirror.RemoveLead(ctx, e.LeadID)
	case events.ActivityLogged:
		if e.PreviousLeadID != nil {
			if err := m.mirror.SyncLead(ctx, *e.PreviousLeadID); err != nil {
				return err
			}
		}
		return m.mirror.SyncLead(ctx, e.LeadID)
	default:
		return nil
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
