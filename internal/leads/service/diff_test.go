package service

import (
	"testing"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestBuildChangesOnlySetFields(t *testing.T) {
	old := domain.Lead{
		FirstName:     "Sara",
		Email:         "sara@acme.ae",
		InquiryStatus: domain.StatusNew,
	}

	changes := buildChanges(old, repository.UpdateLeadParams{
		Email: strPtr("sara@globex.ae"),
	})

	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Field != "email" || changes[0].Old != "sara@acme.ae" || changes[0].New != "sara@globex.ae" {
		t.Errorf("unexpected change %+v", changes[0])
	}
}

func TestBuildChangesIgnoresNoOpWrites(t *testing.T) {
	old := domain.Lead{FirstName: "Sara", InquiryStatus: domain.StatusNew}
	status := domain.StatusNew

	changes := buildChanges(old, repository.UpdateLeadParams{
		FirstName:     strPtr("Sara"),
		InquiryStatus: &status,
	})

	if len(changes) != 0 {
		t.Fatalf("setting fields to their current value must not diff, got %+v", changes)
	}
}

func TestBuildChangesAssignment(t *testing.T) {
	userA := uuid.New()
	userB := uuid.New()
	old := domain.Lead{AssignedTo: &userA}

	changes := buildChanges(old, repository.UpdateLeadParams{
		AssignedTo: &userB, AssignedToSet: true,
	})

	if len(changes) != 1 || changes[0].Field != "assigned_to" {
		t.Fatalf("expected assigned_to change, got %+v", changes)
	}

	// Re-assigning the same user is not a change.
	changes = buildChanges(old, repository.UpdateLeadParams{
		AssignedTo: &userA, AssignedToSet: true,
	})
	if len(changes) != 0 {
		t.Fatalf("same assignee should not diff, got %+v", changes)
	}

	// Unassigning is.
	changes = buildChanges(old, repository.UpdateLeadParams{AssignedToSet: true})
	if len(changes) != 1 {
		t.Fatalf("unassignment should diff, got %+v", changes)
	}
}

func TestBuildChangesTagsRequireRealDelta(t *testing.T) {
	old := domain.Lead{Tags: []domain.Tag{{Value: "a"}, {Value: "b"}}}

	changes := buildChanges(old, repository.UpdateLeadParams{
		Tags: []domain.Tag{{Value: "b"}, {Value: "a"}}, TagsSet: true,
	})
	if len(changes) != 0 {
		t.Fatalf("reordering tags is not a delta, got %+v", changes)
	}

	changes = buildChanges(old, repository.UpdateLeadParams{
		Tags: []domain.Tag{{Value: "b"}, {Value: "c"}}, TagsSet: true,
	})
	if len(changes) != 1 || changes[0].Field != "tags" {
		t.Fatalf("expected tags change, got %+v", changes)
	}
}

func TestScoreInputsChanged(t *testing.T) {
	old := domain.Lead{Phone: "+971501111111"}

	changes := buildChanges(old, repository.UpdateLeadParams{Phone: strPtr("+971502222222")})
	if !scoreInputsChanged(changes) {
		t.Error("phone change should trigger rescoring")
	}

	changes = buildChanges(old, repository.UpdateLeadParams{City: strPtr("Dubai")})
	if scoreInputsChanged(changes) {
		t.Error("city change should not trigger rescoring")
	}
}
