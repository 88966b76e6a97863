// Package audit turns committed lead field changes into activity log
// entries. It is the "lead changed" reactor: the write path hands it a
// field-level diff after applying an update, and it appends
// system-authored activities describing what changed, plus any follow-on
// scheduling work the change implies.
package audit

import (
	"context"
	"fmt"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Change is one field of a lead diff, with the value before and after the
// update.
type Change struct {
	Field string
	Old   any
	New   any
}

// skipFields are derived/bookkeeping columns that must never generate
// audit entries. The aggregate reactor writes three of them on every
// activity mutation; diffing them here would recurse the pipeline.
var skipFields = map[string]struct{}{
	"updated_at":               {},
	"last_activity_at":         {},
	"lead_score":               {},
	"pending_activities_count": {},
	"next_follow_up_at":        {},
}

// Skipped reports whether the field is excluded from audit generation.
func Skipped(field string) bool {
	_, ok := skipFields[field]
	return ok
}

// ActivityWriter appends activities. Satisfied by *repository.Repository,
// including a transaction-bound copy.
type ActivityWriter interface {
	CreateActivity(ctx context.Context, params repository.CreateActivityParams) (domain.Activity, error)
}

// NameResolver renders foreign keys as display names for audit text. A
// failed lookup falls back to the raw id; it never blocks entry creation.
type NameResolver interface {
	UserName(ctx context.Context, id uuid.UUID) (string, error)
	SourceName(ctx context.Context, id uuid.UUID) (string, error)
	ServiceName(ctx context.Context, id uuid.UUID) (string, error)
}

// followUpRule describes the scheduling activity a status transition
// spawns.
type followUpRule struct {
	activityType domain.ActivityType
	priority     domain.Priority
	delay        time.Duration
	subject      string
}

// followUpRules maps a new status to its follow-on scheduling entry.
// Terminal statuses have no entry: nothing to schedule once the lead is
// won, lost, or binned.
var followUpRules = map[domain.LeadStatus]followUpRule{
	domain.StatusContacted: {domain.ActivityFollowUp, domain.PriorityMedium, 3 * 24 * time.Hour, "Follow up after first contact"},
	domain.StatusQualified: {domain.ActivityTask, domain.PriorityHigh, 2 * 24 * time.Hour, "Prepare proposal for qualified lead"},
	domain.StatusProposal:  {domain.ActivityFollowUp, domain.PriorityMedium, 4 * 24 * time.Hour, "Follow up on sent proposal"},
	domain.StatusNurturing: {domain.ActivityFollowUp, domain.PriorityLow, 30 * 24 * time.Hour, "Nurturing check-in"},
}

type Generator struct {
	writer ActivityWriter
	names  NameResolver
	logger *logger.Logger
	now    func() time.Time
}

func New(writer ActivityWriter, names NameResolver, log *logger.Logger) *Generator {
	return &Generator{
		writer: writer,
		names:  names,
		logger: log,
		now:    time.Now,
	}
}

// WithWriter returns a copy of the generator bound to another writer,
// typically a transaction-scoped repository.
func (g *Generator) WithWriter(writer ActivityWriter) *Generator {
	copied := *g
	copied.writer = writer
	return &copied
}

// React processes the diff of one committed lead update and appends audit
// activities. actor is the authenticated user performing the mutation;
// pass uuid.Nil for system-initiated writes and the fixed system actor is
// recorded instead.
//
// A failure generating one field's entry is logged and skipped; the
// remaining fields are still processed and the parent update is never
// aborted by this reactor. Returns the activities that were written.
func (g *Generator) React(ctx context.Context, lead domain.Lead, changes []Change, actor uuid.UUID) []domain.Activity {
	if actor == uuid.Nil {
		actor = domain.SystemActorID
	}

	created := make([]domain.Activity, 0, len(changes))
	for _, change := range changes {
		if Skipped(change.Field) {
			continue
		}

		var entries []domain.Activity
		var err error
		switch change.Field {
		case "inquiry_status":
			entries, err = g.statusChange(ctx, lead, change, actor)
		case "assigned_to":
			entries, err = g.assignmentChange(ctx, lead, change, actor)
		case "tags":
			entries, err = g.tagsChange(ctx, lead, change, actor)
		default:
			entries, err = g.genericChange(ctx, lead, change, actor)
		}
		if err != nil {
			g.logger.ReactorSkip("audit", change.Field, err)
		}
		// A handler can fail partway; whatever it already wrote is in the
		// transaction and the caller must recompute aggregates for it.
		created = append(created, entries...)
	}
	return created
}

// statusChange emits the status_change entry and, for non-terminal target
// statuses, the scheduled follow-up it implies.
func (g *Generator) statusChange(ctx context.Context, lead domain.Lead, change Change, actor uuid.UUID) ([]domain.Activity, error) {
	oldStatus := toLeadStatus(change.Old)
	newStatus := toLeadStatus(change.New)

	entry, err := g.writer.CreateActivity(ctx, repository.CreateActivityParams{
		LeadID:   lead.ID,
		UserID:   actor,
		Type:     domain.ActivityStatusChange,
		Status:   domain.ActivityCompleted,
		Category: domain.CategorySystem,
		Priority: domain.PriorityMedium,
		Subject:  fmt.Sprintf("Status changed from %s to %s", oldStatus.Label(), newStatus.Label()),
		Metadata: map[string]any{
			"field": "inquiry_status",
			"old":   string(oldStatus),
			"new":   string(newStatus),
		},
	})
	if err != nil {
		return nil, err
	}
	entries := []domain.Activity{entry}

	rule, ok := followUpRules[newStatus]
	if !ok {
		return entries, nil
	}

	due := g.now().Add(rule.delay)
	followUp, err := g.writer.CreateActivity(ctx, repository.CreateActivityParams{
		LeadID:      lead.ID,
		UserID:      actor,
		Type:        rule.activityType,
		Status:      domain.ActivityPending,
		Category:    domain.CategorySystem,
		Priority:    rule.priority,
		Subject:     rule.subject,
		Description: fmt.Sprintf("Auto-scheduled after status change to %s", newStatus.Label()),
		ScheduledAt: &due,
		DueAt:       &due,
	})
	if err != nil {
		// The status_change entry is already written; report the
		// follow-up failure but keep what succeeded.
		g.logger.ReactorSkip("audit", "inquiry_status.follow_up", err)
		return entries, nil
	}
	return append(entries, followUp), nil
}

// assignmentChange emits the assignment note and, when the lead is handed
// to someone other than the acting user, a pending task for the new
// assignee due the next day.
func (g *Generator) assignmentChange(ctx context.Context, lead domain.Lead, change Change, actor uuid.UUID) ([]domain.Activity, error) {
	oldAssignee := toUUIDPtr(change.Old)
	newAssignee := toUUIDPtr(change.New)

	entry, err := g.writer.CreateActivity(ctx, repository.CreateActivityParams{
		LeadID:   lead.ID,
		UserID:   actor,
		Type:     domain.ActivityAssignmentChange,
		Status:   domain.ActivityCompleted,
		Category: domain.CategorySystem,
		Priority: domain.PriorityMedium,
		Subject: fmt.Sprintf("Assignment changed from %s to %s",
			g.assigneeName(ctx, oldAssignee), g.assigneeName(ctx, newAssignee)),
		Metadata: map[string]any{
			"field": "assigned_to",
			"old":   uuidPtrString(oldAssignee),
			"new":   uuidPtrString(newAssignee),
		},
	})
	if err != nil {
		return nil, err
	}
	entries := []domain.Activity{entry}

	if newAssignee == nil || *newAssignee == actor {
		return entries, nil
	}

	priority := domain.PriorityHigh
	if lead.Priority == domain.PriorityUrgent {
		priority = domain.PriorityUrgent
	}
	due := g.now().Add(24 * time.Hour)
	task, err := g.writer.CreateActivity(ctx, repository.CreateActivityParams{
		LeadID:      lead.ID,
		UserID:      *newAssignee,
		Type:        domain.ActivityTask,
		Status:      domain.ActivityPending,
		Category:    domain.CategorySystem,
		Priority:    priority,
		Subject:     fmt.Sprintf("Review newly assigned lead %s", lead.FullName()),
		ScheduledAt: &due,
		DueAt:       &due,
	})
	if err != nil {
		g.logger.ReactorSkip("audit", "assigned_to.task", err)
		return entries, nil
	}
	return append(entries, task), nil
}

// tagsChange diffs the tag lists by value and emits added/removed entries,
// plus a combined summary when one update both added and removed.
func (g *Generator) tagsChange(ctx context.Context, lead domain.Lead, change Change, actor uuid.UUID) ([]domain.Activity, error) {
	oldTags := domain.DecodeTags(change.Old)
	newTags := domain.DecodeTags(change.New)
	added, removed := domain.DiffTags(oldTags, newTags)
	if len(added) == 0 && len(removed) == 0 {
		return nil, nil
	}

	entries := make([]domain.Activity, 0, 3)
	if len(added) > 0 {
		entry, err := g.tagEntry(ctx, lead, actor,
			fmt.Sprintf("Tags added: %s", tagValues(added)),
			map[string]any{"field": "tags", "added": tagValueList(added)})
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	if len(removed) > 0 {
		entry, err := g.tagEntry(ctx, lead, actor,
			fmt.Sprintf("Tags removed: %s", tagValues(removed)),
			map[string]any{"field": "tags", "removed": tagValueList(removed)})
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	if len(added) > 0 && len(removed) > 0 {
		entry, err := g.tagEntry(ctx, lead, actor,
			fmt.Sprintf("Tags updated: %d added, %d removed", len(added), len(removed)),
			map[string]any{
				"field":   "tags",
				"added":   tagValueList(added),
				"removed": tagValueList(removed),
			})
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (g *Generator) tagEntry(ctx context.Context, lead domain.Lead, actor uuid.UUID, subject string, metadata map[string]any) (domain.Activity, error) {
	return g.writer.CreateActivity(ctx, repository.CreateActivityParams{
		LeadID:   lead.ID,
		UserID:   actor,
		Type:     domain.ActivityNote,
		Status:   domain.ActivityCompleted,
		Category: domain.CategorySystem,
		Priority: domain.PriorityLow,
		Subject:  subject,
		Metadata: metadata,
	})
}

// genericChange emits one note describing old → new for any field without
// a bespoke shape.
func (g *Generator) genericChange(ctx context.Context, lead domain.Lead, change Change, actor uuid.UUID) ([]domain.Activity, error) {
	entry, err := g.writer.CreateActivity(ctx, repository.CreateActivityParams{
		LeadID:   lead.ID,
		UserID:   actor,
		Type:     domain.ActivityNote,
		Status:   domain.ActivityCompleted,
		Category: domain.CategorySystem,
		Priority: domain.PriorityLow,
		Subject:  fmt.Sprintf("%s updated", fieldLabel(change.Field)),
		Description: fmt.Sprintf("%s changed from %s to %s",
			fieldLabel(change.Field),
			g.formatValue(ctx, change.Field, change.Old),
			g.formatValue(ctx, change.Field, change.New)),
		Metadata: map[string]any{"field": change.Field},
	})
	if err != nil {
		return nil, err
	}
	return []domain.Activity{entry}, nil
}

func (g *Generator) assigneeName(ctx context.Context, id *uuid.UUID) string {
	if id == nil {
		return "Unassigned"
	}
	name, err := g.names.UserName(ctx, *id)
	if err != nil || name == "" {
		return id.String()
	}
	return name
}
