package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrActivityNotFound = errors.New("activity not found")

const activitySelectCols = `
	id, lead_id, user_id, activity_type, status, category, priority,
	subject, description, metadata,
	scheduled_at, due_at, completed_at,
	duration_minutes, cost, outcome,
	created_at, updated_at, deleted_at`

func scanActivity(s leadRowScanner) (domain.Activity, error) {
	var activity domain.Activity
	var rawMeta []byte
	if err := s.Scan(
		&activity.ID, &activity.LeadID, &activity.UserID,
		&activity.Type, &activity.Status, &activity.Category, &activity.Priority,
		&activity.Subject, &activity.Description, &rawMeta,
		&activity.ScheduledAt, &activity.DueAt, &activity.CompletedAt,
		&activity.DurationMinutes, &activity.Cost, &activity.Outcome,
		&activity.CreatedAt, &activity.UpdatedAt, &activity.DeletedAt,
	); err != nil {
		return domain.Activity{}, err
	}
	if len(rawMeta) > 0 {
		_ = json.Unmarshal(rawMeta, &activity.Metadata)
	}
	return activity, nil
}

type CreateActivityParams struct {
	LeadID uuid.UUID
	UserID uuid.UUID

	Type     domain.ActivityType
	Status   domain.ActivityStatus
	Category domain.ActivityCategory
	Priority domain.Priority

	Subject     string
	Description string
	Metadata    map[string]any

	ScheduledAt *time.Time
	DueAt       *time.Time

	DurationMinutes *int
	Cost            *float64
	Outcome         string
}

func (r *Repository) CreateActivity(ctx context.Context, params CreateActivityParams) (domain.Activity, error) {
	metaJSON, err := json.Marshal(params.Metadata)
	if err != nil {
		return domain.Activity{}, err
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO lead_activities (
			lead_id, user_id, activity_type, status, category, priority,
			subject, description, metadata,
			scheduled_at, due_at,
			duration_minutes, cost, outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING`+activitySelectCols,
		params.LeadID, params.UserID,
		params.Type, params.Status, params.Category, params.Priority,
		params.Subject, params.Description, metaJSON,
		params.ScheduledAt, params.DueAt,
		params.DurationMinutes, params.Cost, params.Outcome,
	)
	return scanActivity(row)
}

func (r *Repository) GetActivityByID(ctx context.Context, id uuid.UUID) (domain.Activity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+activitySelectCols+`
		FROM lead_activities WHERE id = $1 AND deleted_at IS NULL
	`, id)
	activity, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Activity{}, ErrActivityNotFound
	}
	return activity, err
}

type ListActivitiesParams struct {
	LeadID   uuid.UUID
	Type     *domain.ActivityType
	Status   *domain.ActivityStatus
	Category *domain.ActivityCategory
	Limit    int
	Offset   int
}

func (r *Repository) ListActivities(ctx context.Context, params ListActivitiesParams) ([]domain.Activity, int, error) {
	where := "lead_id = $1 AND deleted_at IS NULL"
	args := []any{params.LeadID}
	argIdx := 2

	if params.Type != nil {
		where += " AND activity_type = $" + strconv.Itoa(argIdx)
		args = append(args, *params.Type)
		argIdx++
	}
	if params.Status != nil {
		where += " AND status = $" + strconv.Itoa(argIdx)
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Category != nil {
		where += " AND category = $" + strconv.Itoa(argIdx)
		args = append(args, *params.Category)
		argIdx++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM lead_activities WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, params.Limit, params.Offset)
	rows, err := r.db.Query(ctx, `
		SELECT`+activitySelectCols+`
		FROM lead_activities
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $`+strconv.Itoa(argIdx)+` OFFSET $`+strconv.Itoa(argIdx+1),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, 0, err
		}
		activities = append(activities, activity)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return activities, total, nil
}

type UpdateActivityParams struct {
	Status      *domain.ActivityStatus
	Subject     *string
	Description *string
	Priority    *domain.Priority
	Outcome     *string

	ScheduledAt    *time.Time
	ScheduledAtSet bool
	DueAt          *time.Time
	DueAtSet       bool

	DurationMinutes *int
	Cost            *float64

	// LeadID moves the activity to another lead; both leads' aggregates
	// must be recomputed afterwards.
	LeadID *uuid.UUID
}

func (r *Repository) UpdateActivity(ctx context.Context, id uuid.UUID, params UpdateActivityParams) (domain.Activity, error) {
	setClauses := []string{"updated_at = now()"}
	args := []any{}
	argIdx := 1

	add := func(column string, value any) {
		setClauses = append(setClauses, column+" = $"+strconv.Itoa(argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Status != nil {
		add("status", *params.Status)
		if *params.Status == domain.ActivityCompleted {
			setClauses = append(setClauses, "completed_at = now()")
		}
	}
	if params.Subject != nil {
		add("subject", *params.Subject)
	}
	if params.Description != nil {
		add("description", *params.Description)
	}
	if params.Priority != nil {
		add("priority", *params.Priority)
	}
	if params.Outcome != nil {
		add("outcome", *params.Outcome)
	}
	if params.ScheduledAtSet {
		add("scheduled_at", params.ScheduledAt)
	}
	if params.DueAtSet {
		add("due_at", params.DueAt)
	}
	if params.DurationMinutes != nil {
		add("duration_minutes", *params.DurationMinutes)
	}
	if params.Cost != nil {
		add("cost", *params.Cost)
	}
	if params.LeadID != nil {
		add("lead_id", *params.LeadID)
	}

	args = append(args, id)
	row := r.db.QueryRow(ctx, `
		UPDATE lead_activities SET `+strings.Join(setClauses, ", ")+`
		WHERE id = $`+strconv.Itoa(argIdx)+` AND deleted_at IS NULL
		RETURNING`+activitySelectCols,
		args...)

	activity, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Activity{}, ErrActivityNotFound
	}
	return activity, err
}

func (r *Repository) DeleteActivity(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE lead_activities SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrActivityNotFound
	}
	return nil
}

// MarkOverdueActivities flips pending activities whose due date has passed
// to overdue and returns the distinct lead ids that were touched, so the
// sweep can recompute their aggregates.
func (r *Repository) MarkOverdueActivities(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE lead_activities
		SET status = $1, updated_at = now()
		WHERE status = $2 AND due_at IS NOT NULL AND due_at < $3 AND deleted_at IS NULL
		RETURNING lead_id
	`, domain.ActivityOverdue, domain.ActivityPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]struct{})
	leadIDs := make([]uuid.UUID, 0)
	for rows.Next() {
		var leadID uuid.UUID
		if err := rows.Scan(&leadID); err != nil {
			return nil, err
		}
		if _, ok := seen[leadID]; ok {
			continue
		}
		seen[leadID] = struct{}{}
		leadIDs = append(leadIDs, leadID)
	}
	return leadIDs, rows.Err()
}
