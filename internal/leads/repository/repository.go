// Package repository provides pgx-backed persistence for leads and their
// activity log. All writes that participate in the reactor pipeline go
// through a transaction-bound copy of the Repository (see WithTx).
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

// DB is the subset of pgx operations the repository needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so repository methods run identically
// inside and outside a transaction.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	db   DB
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx, pool: r.pool}
}

// Begin starts a transaction on the underlying pool.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Ping verifies database connectivity for health checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const leadSelectCols = `
	id, first_name, last_name, email, phone, company_name, occupation,
	inquiry_status, inquiry_type, priority, lead_score,
	source_id, service_id, assigned_to, assigned_at,
	tags, custom_fields, budget_amount, budget_currency,
	city, latitude, longitude,
	last_activity_at, next_follow_up_at, pending_activities_count,
	created_at, updated_at, deleted_at`

// leadRowScanner is satisfied by pgx.Rows and pgx.Row so scanLead can be
// shared between single-row and multi-row queries.
type leadRowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s leadRowScanner) (domain.Lead, error) {
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
	); err != nil {
		return domain.Lead{}, err
	}

	// JSONB columns decode defensively: a malformed blob yields empty
	// values, not a failed read.
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
	return lead, nil
}

type CreateLeadParams struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	CompanyName string
	Occupation  string

	InquiryStatus domain.LeadStatus
	InquiryType   string
	Priority      domain.Priority
	LeadScore     int

	SourceID  *uuid.UUID
	ServiceID *uuid.UUID

	AssignedTo *uuid.UUID

	Tags         []domain.Tag
	CustomFields map[string]any
	Budget       domain.Budget

	City      string
	Latitude  *float64
	Longitude *float64
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	tagsJSON, err := json.Marshal(params.Tags)
	if err != nil {
		return domain.Lead{}, err
	}
	customJSON, err := json.Marshal(params.CustomFields)
	if err != nil {
		return domain.Lead{}, err
	}

	var assignedAt *time.Time
	if params.AssignedTo != nil {
		now := time.Now()
		assignedAt = &now
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO leads (
			first_name, last_name, email, phone, company_name, occupation,
			inquiry_status, inquiry_type, priority, lead_score,
			source_id, service_id, assigned_to, assigned_at,
			tags, custom_fields, budget_amount, budget_currency,
			city, latitude, longitude,
			last_activity_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, now())
		RETURNING`+leadSelectCols,
		params.FirstName, params.LastName, params.Email, params.Phone,
		params.CompanyName, params.Occupation,
		params.InquiryStatus, params.InquiryType, params.Priority, params.LeadScore,
		params.SourceID, params.ServiceID, params.AssignedTo, assignedAt,
		tagsJSON, customJSON, params.Budget.Amount, params.Budget.Currency,
		params.City, params.Latitude, params.Longitude,
	)
	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads WHERE id = $1 AND deleted_at IS NULL
	`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// GetByIDForUpdate loads a lead with a row lock, serializing concurrent
// writers inside the update transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// GetByIDs returns the leads for the given ids in arbitrary order. Callers
// that need a particular order (the search path) re-order the result.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Lead, error) {
	if len(ids) == 0 {
		return []domain.Lead{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads WHERE id = ANY($1) AND deleted_at IS NULL
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

type UpdateLeadParams struct {
	FirstName   *string
	LastName    *string
	Email       *string
	Phone       *string
	CompanyName *string
	Occupation  *string

	InquiryStatus *domain.LeadStatus
	InquiryType   *string
	Priority      *domain.Priority

	SourceID      *uuid.UUID
	SourceIDSet   bool
	ServiceID     *uuid.UUID
	ServiceIDSet  bool
	AssignedTo    *uuid.UUID
	AssignedToSet bool

	Tags    []domain.Tag
	TagsSet bool

	CustomFields    map[string]any
	CustomFieldsSet bool

	Budget    *domain.Budget
	City      *string
	Latitude  *float64
	Longitude *float64
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// Update applies a partial update and returns the new row. The derived
// fields are deliberately absent from the SET list; only
// UpdateDerivedFields may touch them.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (domain.Lead, error) {
	setClauses := []string{}
	args := []any{}
	argIdx := 1

	add := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.FirstName != nil {
		add("first_name", derefString(params.FirstName))
	}
	if params.LastName != nil {
		add("last_name", derefString(params.LastName))
	}
	if params.Email != nil {
		add("email", derefString(params.Email))
	}
	if params.Phone != nil {
		add("phone", derefString(params.Phone))
	}
	if params.CompanyName != nil {
		add("company_name", derefString(params.CompanyName))
	}
	if params.Occupation != nil {
		add("occupation", derefString(params.Occupation))
	}
	if params.InquiryStatus != nil {
		add("inquiry_status", *params.InquiryStatus)
	}
	if params.InquiryType != nil {
		add("inquiry_type", derefString(params.InquiryType))
	}
	if params.Priority != nil {
		add("priority", *params.Priority)
	}
	if params.SourceIDSet {
		add("source_id", params.SourceID)
	}
	if params.ServiceIDSet {
		add("service_id", params.ServiceID)
	}
	if params.AssignedToSet {
		add("assigned_to", params.AssignedTo)
		if params.AssignedTo != nil {
			setClauses = append(setClauses, "assigned_at = now()")
		} else {
			setClauses = append(setClauses, "assigned_at = NULL")
		}
	}
	if params.TagsSet {
		tagsJSON, err := json.Marshal(params.Tags)
		if err != nil {
			return domain.Lead{}, err
		}
		add("tags", tagsJSON)
	}
	if params.CustomFieldsSet {
		customJSON, err := json.Marshal(params.CustomFields)
		if err != nil {
			return domain.Lead{}, err
		}
		add("custom_fields", customJSON)
	}
	if params.Budget != nil {
		add("budget_amount", params.Budget.Amount)
		add("budget_currency", params.Budget.Currency)
	}
	if params.City != nil {
		add("city", derefString(params.City))
	}
	if params.Latitude != nil {
		add("latitude", *params.Latitude)
	}
	if params.Longitude != nil {
		add("longitude", *params.Longitude)
	}

	if len(setClauses) == 0 {
		return r.GetByID(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE leads SET %s
		WHERE id = $%d AND deleted_at IS NULL
		RETURNING`+leadSelectCols,
		strings.Join(setClauses, ", "), argIdx)

	lead, err := scanLead(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// UpdateLeadScore rewrites the computed score without bumping updated_at.
func (r *Repository) UpdateLeadScore(ctx context.Context, id uuid.UUID, score int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE leads SET lead_score = $2 WHERE id = $1 AND deleted_at IS NULL
	`, id, score)
	return err
}

// DerivedFields is the trio owned by the aggregate recomputation reactor.
type DerivedFields struct {
	LastActivityAt         time.Time
	NextFollowUpAt         *time.Time
	PendingActivitiesCount int
}

// UpdateDerivedFields writes the recomputed aggregates back to the lead.
// It is the single write path for these columns and intentionally does not
// bump updated_at: aggregate recomputation is bookkeeping, not a user edit,
// and must not feed back into the audit pipeline's change detection.
// Returns ErrNotFound if the lead vanished (callers treat that as a no-op).
func (r *Repository) UpdateDerivedFields(ctx context.Context, id uuid.UUID, fields DerivedFields) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads
		SET last_activity_at = $2, next_follow_up_at = $3, pending_activities_count = $4
		WHERE id = $1 AND deleted_at IS NULL
	`, id, fields.LastActivityAt, fields.NextFollowUpAt, fields.PendingActivitiesCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) BulkDelete(ctx context.Context, ids []uuid.UUID) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = ANY($1) AND deleted_at IS NULL
	`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type ListParams struct {
	Status      *domain.LeadStatus
	Priority    *domain.Priority
	InquiryType *string
	SourceID    *uuid.UUID
	ServiceID   *uuid.UUID
	AssignedTo  *uuid.UUID
	Unassigned  bool
	Hot         bool

	BudgetMin *float64
	BudgetMax *float64
	ScoreMin  *int
	ScoreMax  *int

	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	UpdatedAfter *time.Time

	Tag *string

	// Geo radius filter, relational path only.
	Latitude  *float64
	Longitude *float64
	RadiusKM  *float64

	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	whereClause, args, argIdx := buildLeadListWhere(params)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM leads WHERE %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderClause := buildLeadOrderClause(params.SortBy, params.SortOrder)

	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT`+leadSelectCols+`
		FROM leads
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderClause, argIdx, argIdx+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	leads, err := collectLeads(rows)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func buildLeadListWhere(params ListParams) (string, []any, int) {
	whereClauses := []string{"deleted_at IS NULL"}
	args := []any{}
	argIdx := 1

	addEquals := func(column string, value any) {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}
	addCompare := func(column, op string, value any) {
		whereClauses = append(whereClauses, fmt.Sprintf("%s %s $%d", column, op, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Status != nil {
		addEquals("inquiry_status", *params.Status)
	}
	if params.Priority != nil {
		addEquals("priority", *params.Priority)
	}
	if params.InquiryType != nil {
		addEquals("inquiry_type", *params.InquiryType)
	}
	if params.SourceID != nil {
		addEquals("source_id", *params.SourceID)
	}
	if params.ServiceID != nil {
		addEquals("service_id", *params.ServiceID)
	}
	if params.AssignedTo != nil {
		addEquals("assigned_to", *params.AssignedTo)
	} else if params.Unassigned {
		whereClauses = append(whereClauses, "assigned_to IS NULL")
	}
	if params.Hot {
		whereClauses = append(whereClauses, fmt.Sprintf("lead_score >= %d", domain.HotLeadScoreThreshold))
	}
	if params.BudgetMin != nil {
		addCompare("budget_amount", ">=", *params.BudgetMin)
	}
	if params.BudgetMax != nil {
		addCompare("budget_amount", "<=", *params.BudgetMax)
	}
	if params.ScoreMin != nil {
		addCompare("lead_score", ">=", *params.ScoreMin)
	}
	if params.ScoreMax != nil {
		addCompare("lead_score", "<=", *params.ScoreMax)
	}
	if params.CreatedFrom != nil {
		addCompare("created_at", ">=", *params.CreatedFrom)
	}
	if params.CreatedTo != nil {
		addCompare("created_at", "<", *params.CreatedTo)
	}
	if params.UpdatedAfter != nil {
		addCompare("updated_at", ">", *params.UpdatedAfter)
	}
	if params.Tag != nil {
		// JSONB containment on the tag's value key.
		whereClauses = append(whereClauses, fmt.Sprintf(`tags @> $%d::jsonb`, argIdx))
		containment, _ := json.Marshal([]map[string]string{{"value": *params.Tag}})
		args = append(args, containment)
		argIdx++
	}
	if params.Latitude != nil && params.Longitude != nil && params.RadiusKM != nil {
		// Haversine distance in kilometers.
		whereClauses = append(whereClauses, fmt.Sprintf(`
			latitude IS NOT NULL AND longitude IS NOT NULL AND
			(6371 * acos(least(1.0,
				cos(radians($%d)) * cos(radians(latitude)) * cos(radians(longitude) - radians($%d)) +
				sin(radians($%d)) * sin(radians(latitude))
			))) <= $%d`, argIdx, argIdx+1, argIdx+2, argIdx+3))
		args = append(args, *params.Latitude, *params.Longitude, *params.Latitude, *params.RadiusKM)
		argIdx += 4
	}

	return strings.Join(whereClauses, " AND "), args, argIdx
}

// buildLeadOrderClause maps a sort request to a safe ORDER BY. Unknown sort
// fields fall back to created_at, unknown directions to DESC. A secondary
// id sort is always appended (unless id already is the primary sort) so
// pagination is stable across pages.
func buildLeadOrderClause(sortBy, sortOrder string) string {
	column := mapLeadSortColumn(sortBy)

	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}

	if column == "id" {
		return fmt.Sprintf("id %s", direction)
	}
	return fmt.Sprintf("%s %s, id DESC", column, direction)
}

func mapLeadSortColumn(sortBy string) string {
	switch sortBy {
	case "id":
		return "id"
	case "first_name":
		return "first_name"
	case "last_name":
		return "last_name"
	case "lead_score":
		return "lead_score"
	case "priority":
		return "priority"
	case "inquiry_status":
		return "inquiry_status"
	case "updated_at":
		return "updated_at"
	case "last_activity_at":
		return "last_activity_at"
	case "next_follow_up_at":
		return "next_follow_up_at"
	case "budget_amount":
		return "budget_amount"
	default:
		return "created_at"
	}
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}
