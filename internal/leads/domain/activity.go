package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies an activity log entry.
type ActivityType string

const (
	ActivityCall             ActivityType = "call"
	ActivityEmail            ActivityType = "email"
	ActivityMeeting          ActivityType = "meeting"
	ActivityNote             ActivityType = "note"
	ActivityMessage          ActivityType = "message"
	ActivityTask             ActivityType = "task"
	ActivityFollowUp         ActivityType = "follow_up"
	ActivityStatusChange     ActivityType = "status_change"
	ActivityAssignmentChange ActivityType = "assignment_change"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityCall, ActivityEmail, ActivityMeeting, ActivityNote,
		ActivityMessage, ActivityTask, ActivityFollowUp,
		ActivityStatusChange, ActivityAssignmentChange:
		return true
	}
	return false
}

// ActivityStatus is the lifecycle state of an activity.
type ActivityStatus string

const (
	ActivityPending   ActivityStatus = "pending"
	ActivityCompleted ActivityStatus = "completed"
	ActivityCancelled ActivityStatus = "cancelled"
	// ActivityOverdue is derived: a pending activity whose due date has
	// passed. The periodic sweep recomputes it; it is never set once and
	// left behind.
	ActivityOverdue ActivityStatus = "overdue"
)

// Valid reports whether s is a known activity status.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityPending, ActivityCompleted, ActivityCancelled, ActivityOverdue:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status change is legal. Activities
// move only from pending (or its derived overdue form) to a settled state.
func (s ActivityStatus) CanTransitionTo(next ActivityStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case ActivityPending:
		return next == ActivityCompleted || next == ActivityCancelled || next == ActivityOverdue
	case ActivityOverdue:
		// Overdue is still pending work; it settles the same way.
		return next == ActivityCompleted || next == ActivityCancelled || next == ActivityPending
	}
	return false
}

// CountsAsPending reports whether the status contributes to
// pending_activities_count. Only pending itself counts: once the sweep marks
// an activity overdue it leaves the count and its scheduled_at no longer
// feeds next_follow_up_at.
func (s ActivityStatus) CountsAsPending() bool {
	return s == ActivityPending
}

// ActivityCategory separates human-authored entries from system-generated
// audit trail entries.
type ActivityCategory string

const (
	CategoryUser   ActivityCategory = "user"
	CategorySystem ActivityCategory = "system"
)

// Activity is one atomic event or task tied to exactly one lead.
type Activity struct {
	ID     uuid.UUID
	LeadID uuid.UUID
	UserID uuid.UUID

	Type     ActivityType
	Status   ActivityStatus
	Category ActivityCategory
	Priority Priority

	Subject     string
	Description string
	Metadata    map[string]any

	ScheduledAt *time.Time
	DueAt       *time.Time
	CompletedAt *time.Time

	DurationMinutes *int
	Cost            *float64
	Outcome         string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsOverdue reports whether the activity is pending work past its due date.
func (a Activity) IsOverdue(now time.Time) bool {
	return a.Status == ActivityPending && a.DueAt != nil && a.DueAt.Before(now)
}
