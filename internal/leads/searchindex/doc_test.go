package searchindex

import (
	"strings"
	"testing"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"

	"github.com/google/uuid"
)

func TestDocFieldsFlattening(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assignee := uuid.New()
	followUp := now.Add(-2 * time.Hour)

	item := repository.IndexableLead{
		Lead: domain.Lead{
			ID:             uuid.New(),
			FirstName:      "Sara",
			LastName:       "Haddad",
			Email:          "sara@acme.ae",
			CompanyName:    "Acme",
			City:           "Dubai",
			InquiryStatus:  domain.StatusQualified,
			Priority:       domain.PriorityHigh,
			LeadScore:      85,
			AssignedTo:     &assignee,
			Tags:           []domain.Tag{{Value: "vip"}, {Value: "referral"}},
			NextFollowUpAt: &followUp,
			CreatedAt:      now.Add(-48 * time.Hour),
			UpdatedAt:      now.Add(-72 * time.Hour),
		},
		SourceName:  "Website",
		ServiceName: "Consulting",
	}

	fields := docFields(item, now)

	if fields["name"] != "Sara Haddad" {
		t.Errorf("name = %v", fields["name"])
	}
	if fields["source"] != "Website" || fields["service"] != "Consulting" {
		t.Errorf("relationship names not denormalized: %v / %v", fields["source"], fields["service"])
	}
	if fields["tags"] != "vip,referral" {
		t.Errorf("tags = %v", fields["tags"])
	}
	if fields["assigned_to"] != assignee.String() {
		t.Errorf("assigned_to = %v", fields["assigned_to"])
	}
	if fields["hot"] != 1 {
		t.Errorf("score 85 should set hot=1, got %v", fields["hot"])
	}
	if fields["overdue"] != 1 {
		t.Errorf("past follow-up should set overdue=1, got %v", fields["overdue"])
	}
	if fields["days_in_status"] != 3 {
		t.Errorf("days_in_status = %v, want 3", fields["days_in_status"])
	}
	if fields["created_at"] != now.Add(-48*time.Hour).Unix() {
		t.Errorf("created_at should be epoch seconds, got %v", fields["created_at"])
	}
}

func TestDocFieldsUnassigned(t *testing.T) {
	fields := docFields(repository.IndexableLead{
		Lead: domain.Lead{InquiryStatus: domain.StatusNew, LeadScore: 40},
	}, time.Now())

	if fields["assigned_to"] != "" {
		t.Errorf("assigned_to = %v, want empty", fields["assigned_to"])
	}
	if fields["hot"] != 0 {
		t.Errorf("score 40 should set hot=0, got %v", fields["hot"])
	}
	if fields["overdue"] != 0 {
		t.Errorf("no follow-up should set overdue=0, got %v", fields["overdue"])
	}
}

func TestBuildQueryString(t *testing.T) {
	assignee := uuid.New()
	scoreMin := 60

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{
			name: "empty query matches everything",
			q:    Query{},
			want: []string{"*"},
		},
		{
			name: "term with filters",
			q:    Query{Term: "dubai", Priority: "high"},
			want: []string{"dubai", "@priority:{high}"},
		},
		{
			name: "operators stripped from free text",
			q:    Query{Term: `dubai @status:{won}`},
			want: []string{"dubai", "status", "won"},
		},
		{
			name: "attribute filters",
			q:    Query{Status: "new", AssignedTo: &assignee, Hot: true, ScoreMin: &scoreMin},
			want: []string{"@status:{new}", "@hot:[1 1]", "@lead_score:[60 +inf]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQueryString(tt.q)
			for _, fragment := range tt.want {
				if !strings.Contains(got, fragment) {
					t.Errorf("query %q missing %q", got, fragment)
				}
			}
		})
	}

	// The stripped-operator case must not leak TAG syntax into the text part.
	if got := buildQueryString(Query{Term: `@status:{won}`}); strings.Contains(got, "{") {
		t.Errorf("operator characters leaked into %q", got)
	}
}

func TestOrderDocs(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	docs := []rankedDoc{
		{ID: a, Relevance: 1.0, LeadScore: 50},
		{ID: b, Relevance: 2.0, LeadScore: 10},
		{ID: c, Relevance: 1.0, LeadScore: 80},
		{ID: d, Relevance: 1.0, LeadScore: 80, Hot: true},
	}

	orderDocs(docs)

	want := []uuid.UUID{b, d, c, a}
	for i, doc := range docs {
		if doc.ID != want[i] {
			t.Fatalf("position %d = %s, want %s (relevance first, then score, then hot)", i, doc.ID, want[i])
		}
	}
}

func TestOrderDocsStable(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	docs := []rankedDoc{
		{ID: a, Relevance: 1.0, LeadScore: 50},
		{ID: b, Relevance: 1.0, LeadScore: 50},
	}
	orderDocs(docs)
	if docs[0].ID != a {
		t.Error("fully tied docs must keep the index's original order")
	}
}
