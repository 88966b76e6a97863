package domain

import (
	"testing"
	"time"
)

func TestDecodeTags_JSONString(t *testing.T) {
	tags := DecodeTags(`[{"label":"VIP","value":"vip","color":"#f00"},{"label":"Hot","value":"hot"}]`)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}
	if tags[0].Value != "vip" || tags[1].Value != "hot" {
		t.Fatalf("unexpected tag values: %+v", tags)
	}
}

func TestDecodeTags_InvalidInputIsEmpty(t *testing.T) {
	cases := []any{
		`{"not":"an array"}`,
		`not json at all`,
		42,
		map[string]string{"value": "x"},
	}
	for _, input := range cases {
		if tags := DecodeTags(input); len(tags) != 0 {
			t.Fatalf("input %v: expected empty tags, got %+v", input, tags)
		}
	}
}

func TestDecodeTags_DedupesByValue(t *testing.T) {
	tags := DecodeTags([]Tag{
		{Label: "First", Value: "dup"},
		{Label: "Second", Value: "dup"},
		{Label: "", Value: ""},
		{Label: "Other", Value: "other"},
	})
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags after dedupe, got %d: %+v", len(tags), tags)
	}
	if tags[0].Label != "First" {
		t.Fatalf("expected first occurrence kept, got %+v", tags[0])
	}
}

func TestDiffTags(t *testing.T) {
	oldTags := []Tag{{Value: "a"}, {Value: "b"}}
	newTags := []Tag{{Value: "b"}, {Value: "c"}}

	added, removed := DiffTags(oldTags, newTags)

	if len(added) != 1 || added[0].Value != "c" {
		t.Fatalf("expected added [c], got %+v", added)
	}
	if len(removed) != 1 || removed[0].Value != "a" {
		t.Fatalf("expected removed [a], got %+v", removed)
	}
}

func TestDiffTags_NoChanges(t *testing.T) {
	tags := []Tag{{Value: "a"}, {Value: "b"}}
	added, removed := DiffTags(tags, tags)
	if len(added) != 0 || len(removed) != 0 {
		t.Fatalf("expected no diff, got added=%+v removed=%+v", added, removed)
	}
}

func TestLeadStatus_Terminal(t *testing.T) {
	for _, status := range []LeadStatus{StatusWon, StatusLost, StatusSpam} {
		if !status.Terminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	for _, status := range []LeadStatus{StatusNew, StatusContacted, StatusQualified, StatusProposal, StatusNurturing} {
		if status.Terminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestActivityStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to ActivityStatus
		want     bool
	}{
		{ActivityPending, ActivityCompleted, true},
		{ActivityPending, ActivityCancelled, true},
		{ActivityPending, ActivityOverdue, true},
		{ActivityOverdue, ActivityCompleted, true},
		{ActivityCompleted, ActivityPending, false},
		{ActivityCancelled, ActivityCompleted, false},
		{ActivityCompleted, ActivityCancelled, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestActivityStatus_CountsAsPending(t *testing.T) {
	if !ActivityPending.CountsAsPending() {
		t.Fatal("pending must count toward pending_activities_count")
	}
	// The sweep moving an activity to overdue must shrink the stored count.
	for _, status := range []ActivityStatus{ActivityOverdue, ActivityCompleted, ActivityCancelled} {
		if status.CountsAsPending() {
			t.Fatalf("%s must not count toward pending_activities_count", status)
		}
	}
}

func TestLead_IndexEligible(t *testing.T) {
	now := time.Now()

	lead := Lead{InquiryStatus: StatusNew}
	if !lead.IndexEligible() {
		t.Fatal("active lead should be eligible")
	}

	lead.InquiryStatus = StatusSpam
	if lead.IndexEligible() {
		t.Fatal("spam lead must not be eligible")
	}

	lead.InquiryStatus = StatusNew
	lead.DeletedAt = &now
	if lead.IndexEligible() {
		t.Fatal("soft-deleted lead must not be eligible")
	}
}

func TestActivity_IsOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	a := Activity{Status: ActivityPending, DueAt: &past}
	if !a.IsOverdue(now) {
		t.Fatal("pending activity past due should be overdue")
	}

	a.DueAt = &future
	if a.IsOverdue(now) {
		t.Fatal("pending activity not yet due should not be overdue")
	}

	a.DueAt = &past
	a.Status = ActivityCompleted
	if a.IsOverdue(now) {
		t.Fatal("completed activity is never overdue")
	}
}
