package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm_backend/internal/leads/repository"

	"github.com/google/uuid"
)

type fakeRepo struct {
	fields     map[uuid.UUID]repository.DerivedFields
	written    []uuid.UUID
	computeErr error
	writeErr   error
}

func (f *fakeRepo) ComputeDerivedFields(_ context.Context, leadID uuid.UUID, _ time.Time) (repository.DerivedFields, error) {
	if f.computeErr != nil {
		return repository.DerivedFields{}, f.computeErr
	}
	fields, ok := f.fields[leadID]
	if !ok {
		return repository.DerivedFields{}, repository.ErrNotFound
	}
	return fields, nil
}

func (f *fakeRepo) UpdateDerivedFields(_ context.Context, leadID uuid.UUID, _ repository.DerivedFields) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, leadID)
	return nil
}

func TestReactWritesComputedFields(t *testing.T) {
	leadID := uuid.New()
	repo := &fakeRepo{fields: map[uuid.UUID]repository.DerivedFields{
		leadID: {PendingActivitiesCount: 2, LastActivityAt: time.Now()},
	}}
	reactor := New(repo)

	if err := reactor.React(context.Background(), leadID); err != nil {
		t.Fatalf("React: %v", err)
	}
	if len(repo.written) != 1 || repo.written[0] != leadID {
		t.Fatalf("expected one write for %s, got %v", leadID, repo.written)
	}
}

func TestReactIsIdempotent(t *testing.T) {
	leadID := uuid.New()
	repo := &fakeRepo{fields: map[uuid.UUID]repository.DerivedFields{
		leadID: {PendingActivitiesCount: 1, LastActivityAt: time.Now()},
	}}
	reactor := New(repo)

	for range 2 {
		if err := reactor.React(context.Background(), leadID); err != nil {
			t.Fatalf("React: %v", err)
		}
	}
	// Same inputs, same outputs: both runs write identical fields.
	if len(repo.written) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(repo.written))
	}
}

func TestMissingLeadIsNoOp(t *testing.T) {
	repo := &fakeRepo{fields: map[uuid.UUID]repository.DerivedFields{}}
	reactor := New(repo)

	if err := reactor.React(context.Background(), uuid.New()); err != nil {
		t.Fatalf("missing lead should be a no-op, got %v", err)
	}
	if len(repo.written) != 0 {
		t.Fatalf("missing lead should not be written, got %v", repo.written)
	}
}

func TestComputeFailurePropagates(t *testing.T) {
	repo := &fakeRepo{computeErr: errors.New("connection reset")}
	reactor := New(repo)

	if err := reactor.React(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected compute failure to surface")
	}
}

func TestReactMovedRecomputesBothLeads(t *testing.T) {
	oldLead := uuid.New()
	newLead := uuid.New()
	repo := &fakeRepo{fields: map[uuid.UUID]repository.DerivedFields{
		oldLead: {}, newLead: {},
	}}
	reactor := New(repo)

	if err := reactor.ReactMoved(context.Background(), oldLead, newLead); err != nil {
		t.Fatalf("ReactMoved: %v", err)
	}
	if len(repo.written) != 2 {
		t.Fatalf("expected both leads recomputed, got %v", repo.written)
	}
}

func TestReactMovedSameLeadRecomputesOnce(t *testing.T) {
	leadID := uuid.New()
	repo := &fakeRepo{fields: map[uuid.UUID]repository.DerivedFields{leadID: {}}}
	reactor := New(repo)

	if err := reactor.ReactMoved(context.Background(), leadID, leadID); err != nil {
		t.Fatalf("ReactMoved: %v", err)
	}
	if len(repo.written) != 1 {
		t.Fatalf("expected a single recompute, got %v", repo.written)
	}
}
