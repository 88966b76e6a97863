package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeWriter struct {
	created []repository.CreateActivityParams
	failOn  func(params repository.CreateActivityParams) bool
}

func (w *fakeWriter) CreateActivity(_ context.Context, params repository.CreateActivityParams) (domain.Activity, error) {
	if w.failOn != nil && w.failOn(params) {
		return domain.Activity{}, errors.New("write failed")
	}
	w.created = append(w.created, params)
	return domain.Activity{
		ID:       uuid.New(),
		LeadID:   params.LeadID,
		UserID:   params.UserID,
		Type:     params.Type,
		Status:   params.Status,
		Category: params.Category,
		Subject:  params.Subject,
		DueAt:    params.DueAt,
	}, nil
}

type fakeResolver struct {
	users map[uuid.UUID]string
}

func (r *fakeResolver) UserName(_ context.Context, id uuid.UUID) (string, error) {
	if name, ok := r.users[id]; ok {
		return name, nil
	}
	return "", errors.New("unknown user")
}

func (r *fakeResolver) SourceName(_ context.Context, id uuid.UUID) (string, error) {
	return "", errors.New("unknown source")
}

func (r *fakeResolver) ServiceName(_ context.Context, id uuid.UUID) (string, error) {
	return "", errors.New("unknown service")
}

func newTestGenerator(writer *fakeWriter, resolver *fakeResolver) *Generator {
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	return New(writer, resolver, logger.New("development"))
}

func testLead() domain.Lead {
	return domain.Lead{
		ID:            uuid.New(),
		FirstName:     "Sara",
		LastName:      "Haddad",
		InquiryStatus: domain.StatusContacted,
		Priority:      domain.PriorityMedium,
	}
}

func TestStatusChangeToContacted(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)
	actor := uuid.New()

	created := gen.React(context.Background(), testLead(), []Change{
		{Field: "inquiry_status", Old: domain.StatusNew, New: domain.StatusContacted},
	}, actor)

	if len(created) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(created))
	}

	statusEntry := writer.created[0]
	if statusEntry.Type != domain.ActivityStatusChange {
		t.Errorf("first entry type = %s, want status_change", statusEntry.Type)
	}
	if statusEntry.Status != domain.ActivityCompleted {
		t.Errorf("status_change entry should be completed, got %s", statusEntry.Status)
	}
	if !strings.Contains(statusEntry.Subject, "New") || !strings.Contains(statusEntry.Subject, "Contacted") {
		t.Errorf("subject %q missing status labels", statusEntry.Subject)
	}

	followUp := writer.created[1]
	if followUp.Type != domain.ActivityFollowUp {
		t.Errorf("second entry type = %s, want follow_up", followUp.Type)
	}
	if followUp.Status != domain.ActivityPending {
		t.Errorf("follow_up should be pending, got %s", followUp.Status)
	}
	if followUp.DueAt == nil {
		t.Fatal("follow_up has no due date")
	}
	if until := time.Until(*followUp.DueAt); until > 3*24*time.Hour || until < 2*24*time.Hour {
		t.Errorf("follow_up due in %v, want ~3 days", until)
	}
}

func TestTerminalStatusSkipsFollowUp(t *testing.T) {
	for _, status := range []domain.LeadStatus{domain.StatusWon, domain.StatusLost} {
		writer := &fakeWriter{}
		gen := newTestGenerator(writer, nil)

		created := gen.React(context.Background(), testLead(), []Change{
			{Field: "inquiry_status", Old: domain.StatusProposal, New: status},
		}, uuid.New())

		if len(created) != 1 {
			t.Errorf("status %s: expected only the status_change entry, got %d activities", status, len(created))
		}
	}
}

func TestReassignmentCreatesTaskForNewAssignee(t *testing.T) {
	writer := &fakeWriter{}
	userA := uuid.New()
	userB := uuid.New()
	actor := uuid.New()
	resolver := &fakeResolver{users: map[uuid.UUID]string{
		userA: "Alice",
		userB: "Bob",
	}}
	gen := newTestGenerator(writer, resolver)

	created := gen.React(context.Background(), testLead(), []Change{
		{Field: "assigned_to", Old: &userA, New: &userB},
	}, actor)

	if len(created) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(created))
	}

	note := writer.created[0]
	if note.Type != domain.ActivityAssignmentChange {
		t.Errorf("first entry type = %s, want assignment_change", note.Type)
	}
	if !strings.Contains(note.Subject, "Alice") || !strings.Contains(note.Subject, "Bob") {
		t.Errorf("subject %q missing resolved names", note.Subject)
	}

	task := writer.created[1]
	if task.Type != domain.ActivityTask {
		t.Errorf("second entry type = %s, want task", task.Type)
	}
	if task.UserID != userB {
		t.Errorf("task addressed to %s, want new assignee %s", task.UserID, userB)
	}
	if task.Status != domain.ActivityPending {
		t.Errorf("task should be pending, got %s", task.Status)
	}
	if task.DueAt == nil || time.Until(*task.DueAt) > 24*time.Hour {
		t.Error("task should be due within a day")
	}
}

func TestSelfAssignmentSkipsTask(t *testing.T) {
	writer := &fakeWriter{}
	actor := uuid.New()
	gen := newTestGenerator(writer, &fakeResolver{users: map[uuid.UUID]string{actor: "Alice"}})

	created := gen.React(context.Background(), testLead(), []Change{
		{Field: "assigned_to", Old: (*uuid.UUID)(nil), New: &actor},
	}, actor)

	if len(created) != 1 {
		t.Fatalf("self-assignment should only create the note, got %d activities", len(created))
	}
}

func TestUrgentLeadEscalatesAssignmentTask(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)
	lead := testLead()
	lead.Priority = domain.PriorityUrgent
	assignee := uuid.New()

	gen.React(context.Background(), lead, []Change{
		{Field: "assigned_to", Old: (*uuid.UUID)(nil), New: &assignee},
	}, uuid.New())

	if len(writer.created) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(writer.created))
	}
	if writer.created[1].Priority != domain.PriorityUrgent {
		t.Errorf("task priority = %s, want urgent", writer.created[1].Priority)
	}
}

func TestTagDiff(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)

	oldTags := []domain.Tag{{Value: "a"}, {Value: "b"}}
	newTags := []domain.Tag{{Value: "b"}, {Value: "c"}}

	gen.React(context.Background(), testLead(), []Change{
		{Field: "tags", Old: oldTags, New: newTags},
	}, uuid.New())

	var added, removed, combined int
	for _, entry := range writer.created {
		switch {
		case strings.HasPrefix(entry.Subject, "Tags added"):
			added++
			if !strings.Contains(entry.Subject, "c") || strings.Contains(entry.Subject, "b") {
				t.Errorf("added entry %q should reference only c", entry.Subject)
			}
		case strings.HasPrefix(entry.Subject, "Tags removed"):
			removed++
			if !strings.Contains(entry.Subject, "a") || strings.Contains(entry.Subject, "b") {
				t.Errorf("removed entry %q should reference only a", entry.Subject)
			}
		case strings.HasPrefix(entry.Subject, "Tags updated"):
			combined++
		}
	}
	if added != 1 || removed != 1 || combined != 1 {
		t.Errorf("got added=%d removed=%d combined=%d, want 1 each", added, removed, combined)
	}
}

func TestTagsOnlyAdded(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)

	gen.React(context.Background(), testLead(), []Change{
		{Field: "tags", Old: []domain.Tag{{Value: "a"}}, New: []domain.Tag{{Value: "a"}, {Value: "b"}}},
	}, uuid.New())

	if len(writer.created) != 1 {
		t.Fatalf("add-only diff should create 1 activity, got %d", len(writer.created))
	}
	if !strings.HasPrefix(writer.created[0].Subject, "Tags added") {
		t.Errorf("unexpected subject %q", writer.created[0].Subject)
	}
}

func TestTagsDecodeDefensively(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)

	// Invalid JSON decodes to empty; no diff, no entries.
	gen.React(context.Background(), testLead(), []Change{
		{Field: "tags", Old: "{not json", New: "also not json"},
	}, uuid.New())

	if len(writer.created) != 0 {
		t.Fatalf("invalid tag payloads should produce no activities, got %d", len(writer.created))
	}
}

func TestSkipSetGeneratesNothing(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)

	created := gen.React(context.Background(), testLead(), []Change{
		{Field: "updated_at", Old: time.Now().Add(-time.Hour), New: time.Now()},
		{Field: "last_activity_at", Old: nil, New: time.Now()},
		{Field: "lead_score", Old: 50, New: 80},
		{Field: "pending_activities_count", Old: 1, New: 2},
		{Field: "next_follow_up_at", Old: nil, New: time.Now()},
	}, uuid.New())

	if len(created) != 0 {
		t.Fatalf("skip-set fields must generate zero activities, got %d", len(created))
	}
}

func TestFieldFailureDoesNotBlockSiblings(t *testing.T) {
	writer := &fakeWriter{
		failOn: func(params repository.CreateActivityParams) bool {
			return params.Type == domain.ActivityStatusChange
		},
	}
	gen := newTestGenerator(writer, nil)

	created := gen.React(context.Background(), testLead(), []Change{
		{Field: "inquiry_status", Old: domain.StatusNew, New: domain.StatusWon},
		{Field: "company_name", Old: "Acme", New: "Globex"},
	}, uuid.New())

	if len(created) != 1 {
		t.Fatalf("sibling field should still be processed, got %d activities", len(created))
	}
	if writer.created[0].Type != domain.ActivityNote {
		t.Errorf("surviving entry type = %s, want note", writer.created[0].Type)
	}
}

func TestPartialTagFailureKeepsCommittedEntries(t *testing.T) {
	writer := &fakeWriter{
		failOn: func(params repository.CreateActivityParams) bool {
			return strings.HasPrefix(params.Subject, "Tags removed")
		},
	}
	gen := newTestGenerator(writer, nil)

	created := gen.React(context.Background(), testLead(), []Change{
		{Field: "tags", Old: []domain.Tag{{Value: "a"}}, New: []domain.Tag{{Value: "b"}}},
	}, uuid.New())

	// The "Tags added" entry was written before the failure; it must be
	// reported so the caller's aggregate recomputation still runs.
	if len(writer.created) != 1 {
		t.Fatalf("expected 1 committed activity, got %d", len(writer.created))
	}
	if len(created) != len(writer.created) {
		t.Fatalf("React reported %d entries but %d were written", len(created), len(writer.created))
	}
}

func TestNilActorFallsBackToSystemActor(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)

	gen.React(context.Background(), testLead(), []Change{
		{Field: "city", Old: "Dubai", New: "Abu Dhabi"},
	}, uuid.Nil)

	if len(writer.created) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(writer.created))
	}
	if writer.created[0].UserID != domain.SystemActorID {
		t.Errorf("actor = %s, want system actor", writer.created[0].UserID)
	}
}

func TestGenericFormatting(t *testing.T) {
	writer := &fakeWriter{}
	gen := newTestGenerator(writer, nil)

	gen.React(context.Background(), testLead(), []Change{
		{Field: "company_name", Old: nil, New: "Acme"},
	}, uuid.New())

	entry := writer.created[0]
	if !strings.Contains(entry.Description, "Not set") || !strings.Contains(entry.Description, "Acme") {
		t.Errorf("description %q should read Not set → Acme", entry.Description)
	}
	if !strings.HasPrefix(entry.Subject, "Company name") {
		t.Errorf("subject %q should use the humanized field label", entry.Subject)
	}
}
