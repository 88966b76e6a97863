// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"crm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published after a new lead is committed.
type LeadCreated struct {
	BaseEvent
	LeadID     uuid.UUID  `json:"leadId"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
	Status     string     `json:"status"`
	LeadScore  int        `json:"leadScore"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadUpdated is published after a lead update commits. ChangedFields
// carries the field names of the diff so subscribers can filter.
type LeadUpdated struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	ChangedBy     uuid.UUID `json:"changedBy"`
	ChangedFields []string  `json:"changedFields"`
}

func (e LeadUpdated) EventName() string { return "leads.updated" }

// LeadDeleted is published after a lead is soft-deleted.
type LeadDeleted struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadDeleted) EventName() string { return "leads.deleted" }

// ActivityLogged is published after any activity write commits, including
// system-generated audit entries. The aggregate recomputation that this
// write triggered has already happened in the same transaction; subscribers
// see consistent lead state.
type ActivityLogged struct {
	BaseEvent
	ActivityID uuid.UUID `json:"activityId"`
	LeadID     uuid.UUID `json:"leadId"`
	// PreviousLeadID is set when the activity moved between leads.
	PreviousLeadID *uuid.UUID `json:"previousLeadId,omitempty"`
	Type           string     `json:"type"`
	Category       string     `json:"category"`
}

func (e ActivityLogged) EventName() string { return "leads.activity.logged" }
