package repository

import (
	"context"
	"encoding/json"
	"errors"

	"crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IndexableLead is a lead joined with the display names the search index
// denormalizes into its documents.
type IndexableLead struct {
	Lead          domain.Lead
	SourceName    string
	ServiceName   string
	AssigneeName  string
	AssigneeEmail string
}

const indexableSelect = `
	SELECT` + aliasedLeadSelectCols + `,
		COALESCE(s.name, ''), COALESCE(st.name, ''),
		COALESCE(u.name, ''), COALESCE(u.email, '')
	FROM leads l
	LEFT JOIN lead_sources s ON s.id = l.source_id
	LEFT JOIN service_types st ON st.id = l.service_id
	LEFT JOIN users u ON u.id = l.assigned_to`

// aliasedLeadSelectCols is leadSelectCols with the leads alias prefixed,
// for joined queries.
const aliasedLeadSelectCols = `
	l.id, l.first_name, l.last_name, l.email, l.phone, l.company_name, l.occupation,
	l.inquiry_status, l.inquiry_type, l.priority, l.lead_score,
	l.source_id, l.service_id, l.assigned_to, l.assigned_at,
	l.tags, l.custom_fields, l.budget_amount, l.budget_currency,
	l.city, l.latitude, l.longitude,
	l.last_activity_at, l.next_follow_up_at, l.pending_activities_count,
	l.created_at, l.updated_at, l.deleted_at`

func scanIndexableLead(s leadRowScanner) (IndexableLead, error) {
	// Reuse scanLead's column layout plus the two joined names.
	var item IndexableLead
	var lead domain.Lead
	var rawTags, rawCustom []byte
	var budgetAmount *float64
	var budgetCurrency *string
	if err := s.Scan(
		&lead.ID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone,
		&lead.CompanyName, &lead.Occupation,
		&lead.InquiryStatus, &lead.InquiryType, &lead.Priority, &lead.LeadScore,
		&lead.SourceID, &lead.ServiceID, &lead.AssignedTo, &lead.AssignedAt,
		&rawTags, &rawCustom, &budgetAmount, &budgetCurrency,
		&lead.City, &lead.Latitude, &lead.Longitude,
		&lead.LastActivityAt, &lead.NextFollowUpAt, &lead.PendingActivitiesCount,
		&lead.CreatedAt, &lead.UpdatedAt, &lead.DeletedAt,
		&item.SourceName, &item.ServiceName,
		&item.AssigneeName, &item.AssigneeEmail,
	); err != nil {
		return IndexableLead{}, err
	}
	lead.Tags = domain.DecodeTags(rawTags)
	if len(rawCustom) > 0 {
		_ = json.Unmarshal(rawCustom, &lead.CustomFields)
	}
	if budgetAmount != nil {
		lead.Budget.Amount = *budgetAmount
	}
	if budgetCurrency != nil {
		lead.Budget.Currency = *budgetCurrency
	}
	item.Lead = lead
	return item, nil
}

// GetForIndexing loads one lead with denormalized names for the mirror.
func (r *Repository) GetForIndexing(ctx context.Context, id uuid.UUID) (IndexableLead, error) {
	row := r.db.QueryRow(ctx, indexableSelect+`
		WHERE l.id = $1 AND l.deleted_at IS NULL
	`, id)
	item, err := scanIndexableLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return IndexableLead{}, ErrNotFound
	}
	return item, err
}

// ListForIndexing pages through all index-eligible leads in id order. Pass
// uuid.Nil to start from the beginning; feed the last returned id back as
// afterID for the next batch.
func (r *Repository) ListForIndexing(ctx context.Context, afterID uuid.UUID, limit int) ([]IndexableLead, error) {
	rows, err := r.db.Query(ctx, indexableSelect+`
		WHERE l.id > $1 AND l.deleted_at IS NULL
		ORDER BY l.id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]IndexableLead, 0, limit)
	for rows.Next() {
		item, err := scanIndexableLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
