package service

import (
	"context"
	"fmt"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
)

// LogActivity appends a user-authored activity and recomputes the lead's
// aggregates in the same transaction. A failure in the recomputation rolls
// the activity back: the log and the derived fields never diverge.
func (s *Service) LogActivity(ctx context.Context, actor uuid.UUID, params repository.CreateActivityParams) (domain.Activity, error) {
	params.UserID = actorOrSystem(actor)
	if !params.Type.Valid() {
		return domain.Activity{}, apperr.Validation(fmt.Sprintf("invalid activity type %q", params.Type))
	}
	if params.Status == "" {
		params.Status = domain.ActivityPending
	}
	if !params.Status.Valid() {
		return domain.Activity{}, apperr.Validation(fmt.Sprintf("invalid activity status %q", params.Status))
	}
	if params.Category == "" {
		params.Category = domain.CategoryUser
	}
	if params.Priority == "" {
		params.Priority = domain.PriorityMedium
	}

	var activity domain.Activity
	err := s.inTx(ctx, func(txRepo *repository.Repository) error {
		if _, err := txRepo.GetByID(ctx, params.LeadID); err != nil {
			return err
		}
		var err error
		activity, err = txRepo.CreateActivity(ctx, params)
		if err != nil {
			return err
		}
		return s.agg.WithRepo(txRepo).React(ctx, params.LeadID)
	})
	if err != nil {
		return domain.Activity{}, mapNotFound(err)
	}

	s.engine.InvalidateLead(ctx, params.LeadID)
	s.publishActivity(ctx, activity, nil)
	return activity, nil
}

// UpdateActivity applies a partial activity update. Status transitions are
// validated, and when the activity moves to another lead both leads'
// aggregates are recomputed.
func (s *Service) UpdateActivity(ctx context.Context, id uuid.UUID, params repository.UpdateActivityParams) (domain.Activity, error) {
	var updated domain.Activity
	var previousLead uuid.UUID

	err := s.inTx(ctx, func(txRepo *repository.Repository) error {
		current, err := txRepo.GetActivityByID(ctx, id)
		if err != nil {
			return err
		}
		previousLead = current.LeadID

		if params.Status != nil && !current.Status.CanTransitionTo(*params.Status) {
			return apperr.Conflict(fmt.Sprintf("cannot move activity from %s to %s", current.Status, *params.Status))
		}
		if params.LeadID != nil && *params.LeadID != current.LeadID {
			if _, err := txRepo.GetByID(ctx, *params.LeadID); err != nil {
				return err
			}
		}

		updated, err = txRepo.UpdateActivity(ctx, id, params)
		if err != nil {
			return err
		}
		return s.agg.WithRepo(txRepo).ReactMoved(ctx, previousLead, updated.LeadID)
	})
	if err != nil {
		return domain.Activity{}, mapNotFound(err)
	}

	s.engine.InvalidateLead(ctx, updated.LeadID)
	if previousLead != updated.LeadID {
		s.engine.InvalidateLead(ctx, previousLead)
		s.publishActivity(ctx, updated, &previousLead)
	} else {
		s.publishActivity(ctx, updated, nil)
	}
	return updated, nil
}

// DeleteActivity soft-deletes an activity and recomputes the owning
// lead's aggregates.
func (s *Service) DeleteActivity(ctx context.Context, id uuid.UUID) error {
	var leadID uuid.UUID
	err := s.inTx(ctx, func(txRepo *repository.Repository) error {
		activity, err := txRepo.GetActivityByID(ctx, id)
		if err != nil {
			return err
		}
		leadID = activity.LeadID

		if err := txRepo.DeleteActivity(ctx, id); err != nil {
			return err
		}
		return s.agg.WithRepo(txRepo).React(ctx, leadID)
	})
	if err != nil {
		return mapNotFound(err)
	}

	s.engine.InvalidateLead(ctx, leadID)
	return nil
}

// ListActivities pages a lead's activity log, newest first.
func (s *Service) ListActivities(ctx context.Context, params repository.ListActivitiesParams) ([]domain.Activity, int, error) {
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		params.Limit = 100
	}
	activities, total, err := s.repo.ListActivities(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}

// SweepOverdue flips past-due pending activities to overdue and
// recomputes the aggregates of every touched lead. Run periodically by
// the scheduler; safe to run concurrently since both steps are
// idempotent.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	leadIDs, err := s.repo.MarkOverdueActivities(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for _, leadID := range leadIDs {
		if err := s.agg.React(ctx, leadID); err != nil {
			s.logger.DatabaseError("overdue_sweep_recompute", err)
			continue
		}
		s.engine.InvalidateLead(ctx, leadID)
	}
	return len(leadIDs), nil
}

func (s *Service) publishActivity(ctx context.Context, activity domain.Activity, previousLead *uuid.UUID) {
	s.bus.Publish(ctx, events.ActivityLogged{
		BaseEvent:      events.NewBaseEvent(),
		ActivityID:     activity.ID,
		LeadID:         activity.LeadID,
		PreviousLeadID: previousLead,
		Type:           string(activity.Type),
		Category:       string(activity.Category),
	})
}
