package repository

import (
	"context"
	"errors"
	"time"

	"crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ComputeDerivedFields recomputes a lead's aggregates from its activity
// log in one pass:
//
//   - next_follow_up_at: earliest future scheduled_at among activities
//     still in pending status (NULL when nothing is scheduled ahead)
//   - pending_activities_count: entries in pending status, nothing else;
//     the overdue sweep shrinks it
//   - last_activity_at: newest activity created_at, falling back to the
//     lead's own created_at when the log is empty
//
// The result depends only on the current log contents, so recomputation is
// idempotent and insensitive to the order of the writes that triggered it.
// Returns ErrNotFound when the lead does not exist or is soft-deleted.
func (r *Repository) ComputeDerivedFields(ctx context.Context, leadID uuid.UUID, now time.Time) (DerivedFields, error) {
	var fields DerivedFields
	err := r.db.QueryRow(ctx, `
		SELECT
			MIN(a.scheduled_at) FILTER (
				WHERE a.status = $3 AND a.scheduled_at > $2
			) AS next_follow_up_at,
			COUNT(*) FILTER (WHERE a.status = $3) AS pending_count,
			COALESCE(MAX(a.created_at), l.created_at) AS last_activity_at
		FROM leads l
		LEFT JOIN lead_activities a ON a.lead_id = l.id AND a.deleted_at IS NULL
		WHERE l.id = $1 AND l.deleted_at IS NULL
		GROUP BY l.created_at
	`, leadID, now, domain.ActivityPending).Scan(
		&fields.NextFollowUpAt,
		&fields.PendingActivitiesCount,
		&fields.LastActivityAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DerivedFields{}, ErrNotFound
	}
	return fields, err
}
