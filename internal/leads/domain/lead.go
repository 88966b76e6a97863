// Package domain defines the lead management entities and the invariants
// they carry. It has no dependencies on storage or transport.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SystemActorID is the fixed acting user recorded on system-authored writes
// when no authenticated user is present. Mutations never proceed with a nil
// actor; they fall back to this constant instead.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// LeadStatus is the inquiry status of a lead.
type LeadStatus string

const (
	StatusNew       LeadStatus = "new"
	StatusContacted LeadStatus = "contacted"
	StatusQualified LeadStatus = "qualified"
	StatusProposal  LeadStatus = "proposal"
	StatusWon       LeadStatus = "won"
	StatusLost      LeadStatus = "lost"
	StatusNurturing LeadStatus = "nurturing"
	// StatusSpam marks junk inquiries. Spam leads are excluded from the
	// search index; relational list queries still return them unless the
	// caller filters by status.
	StatusSpam LeadStatus = "spam"
)

// Valid reports whether s is a known lead status.
func (s LeadStatus) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusProposal,
		StatusWon, StatusLost, StatusNurturing, StatusSpam:
		return true
	}
	return false
}

// Terminal reports whether the status ends the sales process. Terminal
// statuses generate no follow-on scheduling activity.
func (s LeadStatus) Terminal() bool {
	return s == StatusWon || s == StatusLost || s == StatusSpam
}

// Label returns the human-readable form used in audit descriptions.
func (s LeadStatus) Label() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusContacted:
		return "Contacted"
	case StatusQualified:
		return "Qualified"
	case StatusProposal:
		return "Proposal Sent"
	case StatusWon:
		return "Won"
	case StatusLost:
		return "Lost"
	case StatusNurturing:
		return "Nurturing"
	case StatusSpam:
		return "Spam"
	}
	return string(s)
}

// Priority ranks how urgently a lead or activity should be worked.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// HotLeadScoreThreshold marks the score at or above which a lead is "hot".
// Hot leads get shorter cache TTLs and a ranking boost in search results.
const HotLeadScoreThreshold = 70

// Tag is one labelled marker on a lead. Tags are unique by Value; Label and
// Color are presentation data.
type Tag struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Color string `json:"color,omitempty"`
}

// Budget is the lead's stated budget.
type Budget struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

// Lead is one inquiry/prospect record. The three derived fields
// (LastActivityAt, NextFollowUpAt, PendingActivitiesCount) are owned
// exclusively by the aggregate recomputation reactor; nothing else may
// write them.
type Lead struct {
	ID uuid.UUID

	FirstName   string
	LastName    string
	Email       string
	Phone       string
	CompanyName string
	Occupation  string

	InquiryStatus LeadStatus
	InquiryType   string
	Priority      Priority
	LeadScore     int

	SourceID  *uuid.UUID
	ServiceID *uuid.UUID

	AssignedTo *uuid.UUID
	AssignedAt *time.Time

	Tags         []Tag
	CustomFields map[string]any
	Budget       Budget

	City      string
	Latitude  *float64
	Longitude *float64

	// Derived fields, recomputed from the activity log.
	LastActivityAt         time.Time
	NextFollowUpAt         *time.Time
	PendingActivitiesCount int

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// FullName joins the lead's name parts.
func (l Lead) FullName() string {
	if l.FirstName == "" {
		return l.LastName
	}
	if l.LastName == "" {
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// IsHot reports whether the lead's score crosses the hot threshold.
func (l Lead) IsHot() bool {
	return l.LeadScore >= HotLeadScoreThreshold
}

// IndexEligible reports whether the lead may appear in the search index:
// not soft-deleted and not classified as spam.
func (l Lead) IndexEligible() bool {
	return l.DeletedAt == nil && l.InquiryStatus != StatusSpam
}

// DecodeTags turns loosely-typed tag input into []Tag. Tag arrays arrive
// from several boundaries (API payloads, JSONB columns, webhook ingestion)
// and may be a JSON string, raw bytes, a decoded []any, or already []Tag.
// Anything unparseable decodes to an empty list, never an error: boundary
// data is not trusted to be well-formed.
func DecodeTags(value any) []Tag {
	switch v := value.(type) {
	case nil:
		return nil
	case []Tag:
		return dedupeTags(v)
	case string:
		return decodeTagJSON([]byte(v))
	case []byte:
		return decodeTagJSON(v)
	case []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return decodeTagJSON(data)
	}
	return nil
}

func decodeTagJSON(data []byte) []Tag {
	var tags []Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil
	}
	return dedupeTags(tags)
}

// dedupeTags enforces uniqueness by Value, keeping first occurrence order.
func dedupeTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, tag := range tags {
		if tag.Value == "" {
			continue
		}
		if _, dup := seen[tag.Value]; dup {
			continue
		}
		seen[tag.Value] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// DiffTags computes the set difference between two tag lists by Value.
func DiffTags(oldTags, newTags []Tag) (added, removed []Tag) {
	oldSet := make(map[string]struct{}, len(oldTags))
	for _, tag := range oldTags {
		oldSet[tag.Value] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newTags))
	for _, tag := range newTags {
		newSet[tag.Value] = struct{}{}
	}

	for _, tag := range newTags {
		if _, ok := oldSet[tag.Value]; !ok {
			added = append(added, tag)
		}
	}
	for _, tag := range oldTags {
		if _, ok := newSet[tag.Value]; !ok {
			removed = append(removed, tag)
		}
	}
	return added, removed
}
