package repository

import (
	"context"
	"time"

	"crm_backend/internal/leads/domain"
)

// LeadStats is the dashboard aggregate over the live lead population.
// ConversionRate alone is windowed; the counts cover all live leads.
type LeadStats struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	ByPriority      map[string]int `json:"by_priority"`
	BySource        map[string]int `json:"by_source"`
	Hot             int            `json:"hot"`
	Unassigned      int            `json:"unassigned"`
	OverdueFollowUp int            `json:"overdue_follow_up"`
	AverageScore    float64        `json:"average_score"`
	ConversionRate  float64        `json:"conversion_rate"`
}

// DailyLeadCount is one bucket of the creation trend.
type DailyLeadCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// GetStats computes the dashboard aggregates. The conversion rate covers
// only leads created in the last windowDays days, so the dashboard's rate
// follows the date window it was asked for rather than all-time history.
func (r *Repository) GetStats(ctx context.Context, windowDays int) (LeadStats, error) {
	stats := LeadStats{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
		BySource:   make(map[string]int),
	}
	windowStart := time.Now().AddDate(0, 0, -windowDays)

	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE lead_score >= $1),
			COUNT(*) FILTER (WHERE assigned_to IS NULL),
			COUNT(*) FILTER (WHERE next_follow_up_at IS NOT NULL AND next_follow_up_at < now()),
			COALESCE(AVG(lead_score), 0),
			CASE WHEN COUNT(*) FILTER (WHERE created_at >= $4 AND inquiry_status IN ($2, $3)) = 0 THEN 0
			     ELSE COUNT(*) FILTER (WHERE created_at >= $4 AND inquiry_status = $2)::float
			          / COUNT(*) FILTER (WHERE created_at >= $4 AND inquiry_status IN ($2, $3))
			END
		FROM leads
		WHERE deleted_at IS NULL
	`, domain.HotLeadScoreThreshold, domain.StatusWon, domain.StatusLost, windowStart).Scan(
		&stats.Total, &stats.Hot, &stats.Unassigned, &stats.OverdueFollowUp,
		&stats.AverageScore, &stats.ConversionRate,
	)
	if err != nil {
		return LeadStats{}, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT inquiry_status, COUNT(*)
		FROM leads WHERE deleted_at IS NULL
		GROUP BY inquiry_status
	`)
	if err != nil {
		return LeadStats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return LeadStats{}, err
		}
		stats.ByStatus[status] = count
	}
	if rows.Err() != nil {
		return LeadStats{}, rows.Err()
	}

	priorityRows, err := r.db.Query(ctx, `
		SELECT priority, COUNT(*)
		FROM leads WHERE deleted_at IS NULL
		GROUP BY priority
	`)
	if err != nil {
		return LeadStats{}, err
	}
	defer priorityRows.Close()
	for priorityRows.Next() {
		var priority string
		var count int
		if err := priorityRows.Scan(&priority, &count); err != nil {
			return LeadStats{}, err
		}
		stats.ByPriority[priority] = count
	}
	if priorityRows.Err() != nil {
		return LeadStats{}, priorityRows.Err()
	}

	sourceRows, err := r.db.Query(ctx, `
		SELECT COALESCE(s.name, 'unknown'), COUNT(*)
		FROM leads l
		LEFT JOIN lead_sources s ON s.id = l.source_id
		WHERE l.deleted_at IS NULL
		GROUP BY s.name
	`)
	if err != nil {
		return LeadStats{}, err
	}
	defer sourceRows.Close()
	for sourceRows.Next() {
		var source string
		var count int
		if err := sourceRows.Scan(&source, &count); err != nil {
			return LeadStats{}, err
		}
		stats.BySource[source] = count
	}
	return stats, sourceRows.Err()
}

// GetCreationTrend returns per-day lead creation counts for the last N days,
// including empty days.
func (r *Repository) GetCreationTrend(ctx context.Context, days int) ([]DailyLeadCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.day, COUNT(l.id)
		FROM generate_series(
			date_trunc('day', now()) - ($1 - 1) * interval '1 day',
			date_trunc('day', now()),
			interval '1 day'
		) AS d(day)
		LEFT JOIN leads l ON date_trunc('day', l.created_at) = d.day AND l.deleted_at IS NULL
		GROUP BY d.day
		ORDER BY d.day
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trend := make([]DailyLeadCount, 0, days)
	for rows.Next() {
		var bucket DailyLeadCount
		if err := rows.Scan(&bucket.Day, &bucket.Count); err != nil {
			return nil, err
		}
		trend = append(trend, bucket)
	}
	return trend, rows.Err()
}
