// Package aggregates keeps the lead's derived fields consistent with its
// activity log. It is the "activity changed" reactor: every activity
// create, update, or delete runs it inside the same transaction, and it
// rewrites next_follow_up_at, pending_activities_count, and
// last_activity_at from the log's current state.
//
// The write-back goes through the repository's dedicated derived-field
// path, which never bumps updated_at. That keeps these writes invisible
// to the audit generator's diffing: recomputation is bookkeeping, not a
// field change.
package aggregates

import (
	"context"
	"errors"
	"time"

	"crm_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// Repo is the slice of the repository the reactor needs. A
// transaction-bound *repository.Repository satisfies it.
type Repo interface {
	ComputeDerivedFields(ctx context.Context, leadID uuid.UUID, now time.Time) (repository.DerivedFields, error)
	UpdateDerivedFields(ctx context.Context, leadID uuid.UUID, fields repository.DerivedFields) error
}

type Reactor struct {
	repo Repo
	now  func() time.Time
}

func New(repo Repo) *Reactor {
	return &Reactor{repo: repo, now: time.Now}
}

// WithRepo returns a copy of the reactor bound to another repository,
// typically one scoped to the caller's transaction.
func (r *Reactor) WithRepo(repo Repo) *Reactor {
	copied := *r
	copied.repo = repo
	return &copied
}

// React recomputes the lead's derived fields from the activity log. It
// must run after the triggering activity write is applied in the same
// transaction, so the computation sees the final log state; given that,
// the result is idempotent and independent of write interleaving.
//
// A lead that no longer exists is a no-op (the activity raced a lead
// deletion). Any other failure is returned so the caller can roll the
// whole transaction back rather than commit divergent aggregates.
func (r *Reactor) React(ctx context.Context, leadID uuid.UUID) error {
	fields, err := r.repo.ComputeDerivedFields(ctx, leadID, r.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = r.repo.UpdateDerivedFields(ctx, leadID, fields)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// ReactMoved handles an activity whose lead_id changed: both the old and
// the new lead's aggregates are stale and both are recomputed.
func (r *Reactor) ReactMoved(ctx context.Context, oldLeadID, newLeadID uuid.UUID) error {
	if oldLeadID != uuid.Nil && oldLeadID != newLeadID {
		if err := r.React(ctx, oldLeadID); err != nil {
			return err
		}
	}
	return r.React(ctx, newLeadID)
}
