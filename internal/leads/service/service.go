// Package service orchestrates lead and activity writes: each mutation
// runs the primary write and its reactor pipeline (audit trail, aggregate
// recomputation) inside one transaction, then invalidates caches and
// publishes events for the asynchronous consumers (search sync).
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/aggregates"
	"crm_backend/internal/leads/audit"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/query"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/scoring"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"
	"crm_backend/platform/phone"

	"github.com/google/uuid"
)

type Service struct {
	repo   *repository.Repository
	audit  *audit.Generator
	agg    *aggregates.Reactor
	engine *query.Engine
	bus    events.Bus
	logger *logger.Logger
}

func New(
	repo *repository.Repository,
	auditGen *audit.Generator,
	agg *aggregates.Reactor,
	engine *query.Engine,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:   repo,
		audit:  auditGen,
		agg:    agg,
		engine: engine,
		bus:    bus,
		logger: log,
	}
}

func actorOrSystem(actor uuid.UUID) uuid.UUID {
	if actor == uuid.Nil {
		return domain.SystemActorID
	}
	return actor
}

// CreateLead creates a lead with its initial score, logs the creation
// activity, and brings the derived fields in line, all in one transaction.
func (s *Service) CreateLead(ctx context.Context, actor uuid.UUID, params repository.CreateLeadParams) (domain.Lead, error) {
	actor = actorOrSystem(actor)
	params.Phone = phone.NormalizeE164(params.Phone)
	if params.InquiryStatus == "" {
		params.InquiryStatus = domain.StatusNew
	}
	if !params.InquiryStatus.Valid() {
		return domain.Lead{}, apperr.Validation(fmt.Sprintf("invalid status %q", params.InquiryStatus))
	}
	if params.Priority == "" {
		params.Priority = domain.PriorityMedium
	}
	if !params.Priority.Valid() {
		return domain.Lead{}, apperr.Validation(fmt.Sprintf("invalid priority %q", params.Priority))
	}
	params.LeadScore = scoring.Score(scoring.Input{
		Phone:        params.Phone,
		Email:        params.Email,
		BudgetAmount: params.Budget.Amount,
		Occupation:   params.Occupation,
	})

	var lead domain.Lead
	err := s.inTx(ctx, func(txRepo *repository.Repository) error {
		var err error
		lead, err = txRepo.Create(ctx, params)
		if err != nil {
			return err
		}

		if _, err := txRepo.CreateActivity(ctx, repository.CreateActivityParams{
			LeadID:   lead.ID,
			UserID:   actor,
			Type:     domain.ActivityNote,
			Status:   domain.ActivityCompleted,
			Category: domain.CategorySystem,
			Priority: domain.PriorityLow,
			Subject:  "Lead created",
		}); err != nil {
			return err
		}

		return s.agg.WithRepo(txRepo).React(ctx, lead.ID)
	})
	if err != nil {
		return domain.Lead{}, err
	}

	s.engine.InvalidateLead(ctx, lead.ID)
	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		AssignedTo: lead.AssignedTo,
		Status:     string(lead.InquiryStatus),
		LeadScore:  lead.LeadScore,
	})
	return s.repo.GetByID(ctx, lead.ID)
}

// UpdateLead applies a partial update, runs the audit generator on the
// committed diff, recomputes aggregates when audit entries were written,
// and refreshes the score when a scoring input changed.
func (s *Service) UpdateLead(ctx context.Context, actor uuid.UUID, id uuid.UUID, params repository.UpdateLeadParams) (domain.Lead, error) {
	actor = actorOrSystem(actor)
	if params.Phone != nil {
		normalized := phone.NormalizeE164(*params.Phone)
		params.Phone = &normalized
	}
	if params.InquiryStatus != nil && !params.InquiryStatus.Valid() {
		return domain.Lead{}, apperr.Validation(fmt.Sprintf("invalid status %q", *params.InquiryStatus))
	}
	if params.Priority != nil && !params.Priority.Valid() {
		return domain.Lead{}, apperr.Validation(fmt.Sprintf("invalid priority %q", *params.Priority))
	}

	var updated domain.Lead
	var changes []audit.Change
	err := s.inTx(ctx, func(txRepo *repository.Repository) error {
		old, err := txRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		changes = buildChanges(old, params)

		updated, err = txRepo.Update(ctx, id, params)
		if err != nil {
			return err
		}

		created := s.audit.WithWriter(txRepo).React(ctx, updated, changes, actor)
		if len(created) > 0 {
			if err := s.agg.WithRepo(txRepo).React(ctx, id); err != nil {
				return err
			}
		}

		if scoreInputsChanged(changes) {
			score := scoring.Score(scoring.Input{
				Phone:        updated.Phone,
				Email:        updated.Email,
				BudgetAmount: updated.Budget.Amount,
				Occupation:   updated.Occupation,
			})
			if score != updated.LeadScore {
				if err := txRepo.UpdateLeadScore(ctx, id, score); err != nil {
					return err
				}
				updated.LeadScore = score
			}
		}
		return nil
	})
	if err != nil {
		return domain.Lead{}, mapNotFound(err)
	}

	s.engine.InvalidateLead(ctx, id)
	s.bus.Publish(ctx, events.LeadUpdated{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        id,
		ChangedBy:     actor,
		ChangedFields: changedFieldNames(changes),
	})
	return s.repo.GetByID(ctx, id)
}

// DeleteLead soft-deletes a lead.
func (s *Service) DeleteLead(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapNotFound(err)
	}
	s.engine.InvalidateLead(ctx, id)
	s.bus.Publish(ctx, events.LeadDeleted{BaseEvent: events.NewBaseEvent(), LeadID: id})
	return nil
}

// BulkDeleteLeads soft-deletes a batch and returns how many were removed.
// Role enforcement happens at the transport layer; this path assumes an
// elevated caller.
func (s *Service) BulkDeleteLeads(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted, err := s.repo.BulkDelete(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.engine.InvalidateLead(ctx, id)
		s.bus.Publish(ctx, events.LeadDeleted{BaseEvent: events.NewBaseEvent(), LeadID: id})
	}
	return deleted, nil
}

// GetLead serves the detail read through the cache. The payload comes back
// already serialized; a cache hit never touches the store or re-renders.
func (s *Service) GetLead(ctx context.Context, id uuid.UUID, forceRefresh bool) (json.RawMessage, query.CacheMeta, error) {
	payload, meta, err := s.engine.Detail(ctx, id, forceRefresh)
	if err != nil {
		return nil, meta, mapNotFound(err)
	}
	return payload, meta, nil
}

// ListLeads serves the list read through the cache engine.
func (s *Service) ListLeads(ctx context.Context, req query.ListRequest) (query.ListResult, error) {
	return s.engine.List(ctx, req)
}

// Stats serves the dashboard aggregates.
func (s *Service) Stats(ctx context.Context, req query.StatsRequest) (query.StatsData, query.CacheMeta, error) {
	return s.engine.Stats(ctx, req)
}

// inTx runs fn with a transaction-bound repository, committing on success
// and rolling back on any error so the reactor pipeline is all-or-nothing.
func (s *Service) inTx(ctx context.Context, fn func(txRepo *repository.Repository) error) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(s.repo.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("lead not found")
	}
	if errors.Is(err, repository.ErrActivityNotFound) {
		return apperr.NotFound("activity not found")
	}
	return err
}
