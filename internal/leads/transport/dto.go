// Package transport defines the wire-level request and response shapes
// for the leads API, plus the mappers between them and the domain types.
package transport

import (
	"encoding/json"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/query"

	"github.com/google/uuid"
)

// Requests

type TagPayload struct {
	Label string `json:"label" validate:"required,max=100"`
	Value string `json:"value" validate:"required,max=100"`
	Color string `json:"color,omitempty" validate:"omitempty,max=20"`
}

type BudgetPayload struct {
	Amount   float64 `json:"amount" validate:"min=0"`
	Currency string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type CreateLeadRequest struct {
	FirstName   string `json:"firstName" validate:"required,min=1,max=100"`
	LastName    string `json:"lastName" validate:"omitempty,max=100"`
	Email       string `json:"email" validate:"omitempty,email,max=255"`
	Phone       string `json:"phone" validate:"omitempty,max=30"`
	CompanyName string `json:"companyName" validate:"omitempty,max=200"`
	Occupation  string `json:"occupation" validate:"omitempty,max=100"`

	InquiryStatus string `json:"inquiryStatus" validate:"omitempty,oneof=new contacted qualified proposal won lost nurturing spam"`
	InquiryType   string `json:"inquiryType" validate:"omitempty,max=100"`
	Priority      string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`

	SourceID   *uuid.UUID `json:"sourceId,omitempty"`
	ServiceID  *uuid.UUID `json:"serviceId,omitempty"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`

	Tags         []TagPayload   `json:"tags,omitempty" validate:"omitempty,max=50,dive"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	Budget       *BudgetPayload `json:"budget,omitempty"`

	City      string   `json:"city" validate:"omitempty,max=100"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
}

type UpdateLeadRequest struct {
	FirstName   *string `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName    *string `json:"lastName,omitempty" validate:"omitempty,max=100"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	CompanyName *string `json:"companyName,omitempty" validate:"omitempty,max=200"`
	Occupation  *string `json:"occupation,omitempty" validate:"omitempty,max=100"`

	InquiryStatus *string `json:"inquiryStatus,omitempty" validate:"omitempty,oneof=new contacted qualified proposal won lost nurturing spam"`
	InquiryType   *string `json:"inquiryType,omitempty" validate:"omitempty,max=100"`
	Priority      *string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`

	SourceID   *uuid.UUID `json:"sourceId,omitempty"`
	SourceSet  bool       `json:"-"`
	ServiceID  *uuid.UUID `json:"serviceId,omitempty"`
	ServiceSet bool       `json:"-"`

	// AssignedTo uses an explicit set flag so "unassign" (null) can be
	// told apart from "leave unchanged".
	AssignedTo    *uuid.UUID `json:"assignedTo,omitempty"`
	AssignedToSet bool       `json:"-"`

	Tags    []TagPayload `json:"tags,omitempty" validate:"omitempty,max=50,dive"`
	TagsSet bool         `json:"-"`

	CustomFields    map[string]any `json:"customFields,omitempty"`
	CustomFieldsSet bool           `json:"-"`

	Budget *BudgetPayload `json:"budget,omitempty"`

	City      *string  `json:"city,omitempty" validate:"omitempty,max=100"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
}

type ListLeadsRequest struct {
	Search string `form:"search" validate:"max=200"`

	Status      string `form:"status" validate:"omitempty,oneof=new contacted qualified proposal won lost nurturing spam"`
	Priority    string `form:"priority" validate:"omitempty,oneof=low medium high urgent"`
	InquiryType string `form:"inquiryType" validate:"omitempty,max=100"`
	Tag         string `form:"tag" validate:"omitempty,max=100"`

	SourceID   string `form:"sourceId" validate:"omitempty,uuid"`
	ServiceID  string `form:"serviceId" validate:"omitempty,uuid"`
	AssignedTo string `form:"assignedTo" validate:"omitempty,uuid"`
	Unassigned bool   `form:"unassigned"`
	Hot        bool   `form:"hot"`

	BudgetMin *float64 `form:"budgetMin" validate:"omitempty,min=0"`
	BudgetMax *float64 `form:"budgetMax" validate:"omitempty,min=0"`
	ScoreMin  *int     `form:"scoreMin" validate:"omitempty,min=0,max=100"`
	ScoreMax  *int     `form:"scoreMax" validate:"omitempty,min=0,max=100"`

	CreatedFrom  string `form:"createdFrom" validate:"omitempty,max=50"`
	CreatedTo    string `form:"createdTo" validate:"omitempty,max=50"`
	UpdatedAfter string `form:"updatedAfter" validate:"omitempty,max=50"`

	Latitude  *float64 `form:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `form:"longitude" validate:"omitempty,min=-180,max=180"`
	RadiusKM  *float64 `form:"radiusKm" validate:"omitempty,min=0,max=20000"`

	SortBy    string `form:"sortBy" validate:"omitempty,max=50"`
	SortOrder string `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PerPage   int    `form:"perPage" validate:"omitempty,min=1,max=100"`

	ForceRefresh bool `form:"forceRefresh"`
	// Bulk marks the read as part of a bulk operation; elevated roles
	// making bulk reads bypass the cache.
	Bulk bool `form:"bulk"`
}

type CreateActivityRequest struct {
	Type        string `json:"type" validate:"required,oneof=call email meeting note message task follow_up"`
	Status      string `json:"status" validate:"omitempty,oneof=pending completed cancelled"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Subject     string `json:"subject" validate:"required,min=1,max=300"`
	Description string `json:"description" validate:"omitempty,max=5000"`

	Metadata map[string]any `json:"metadata,omitempty"`

	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`

	DurationMinutes *int     `json:"durationMinutes,omitempty" validate:"omitempty,min=0"`
	Cost            *float64 `json:"cost,omitempty" validate:"omitempty,min=0"`
	Outcome         string   `json:"outcome" validate:"omitempty,max=1000"`
}

type UpdateActivityRequest struct {
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=pending completed cancelled"`
	Subject     *string `json:"subject,omitempty" validate:"omitempty,min=1,max=300"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Priority    *string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Outcome     *string `json:"outcome,omitempty" validate:"omitempty,max=1000"`

	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
	ScheduledAtSet bool       `json:"-"`
	DueAt          *time.Time `json:"dueAt,omitempty"`
	DueAtSet       bool       `json:"-"`

	DurationMinutes *int     `json:"durationMinutes,omitempty" validate:"omitempty,min=0"`
	Cost            *float64 `json:"cost,omitempty" validate:"omitempty,min=0"`

	LeadID *uuid.UUID `json:"leadId,omitempty"`
}

type ListActivitiesRequest struct {
	Type     string `form:"type" validate:"omitempty,oneof=call email meeting note message task follow_up status_change assignment_change"`
	Status   string `form:"status" validate:"omitempty,oneof=pending completed cancelled overdue"`
	Category string `form:"category" validate:"omitempty,oneof=user system"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PerPage  int    `form:"perPage" validate:"omitempty,min=1,max=100"`
}

type BulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
}

// Responses

type CacheMetaResponse struct {
	ServedFromCache bool   `json:"servedFromCache"`
	CacheKey        string `json:"cacheKey"`
	TTLUsed         string `json:"ttlUsed"`
	BypassReason    string `json:"bypassReason,omitempty"`
}

type LeadResponse struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CompanyName string    `json:"companyName,omitempty"`
	Occupation  string    `json:"occupation,omitempty"`

	InquiryStatus string `json:"inquiryStatus"`
	InquiryType   string `json:"inquiryType,omitempty"`
	Priority      string `json:"priority"`
	LeadScore     int    `json:"leadScore"`
	Hot           bool   `json:"hot"`

	SourceID   *uuid.UUID `json:"sourceId,omitempty"`
	ServiceID  *uuid.UUID `json:"serviceId,omitempty"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`

	Tags         []domain.Tag   `json:"tags"`
	CustomFields map[string]any `json:"customFields,omitempty"`
	Budget       domain.Budget  `json:"budget"`

	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	LastActivityAt         time.Time  `json:"lastActivityAt"`
	NextFollowUpAt         *time.Time `json:"nextFollowUpAt,omitempty"`
	PendingActivitiesCount int        `json:"pendingActivitiesCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LeadDetailResponse carries the payload the cache engine hands back; it
// is already serialized, so it is embedded verbatim.
type LeadDetailResponse struct {
	Data json.RawMessage   `json:"data"`
	Meta CacheMetaResponse `json:"meta"`
}

type LeadListResponse struct {
	Data       []LeadResponse    `json:"data"`
	Pagination query.Pagination  `json:"pagination"`
	Meta       CacheMetaResponse `json:"meta"`
}

type StatsResponse struct {
	Data query.StatsData   `json:"data"`
	Meta CacheMetaResponse `json:"meta"`
}

type ActivityResponse struct {
	ID     uuid.UUID `json:"id"`
	LeadID uuid.UUID `json:"leadId"`
	UserID uuid.UUID `json:"userId"`

	Type     string `json:"type"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Priority string `json:"priority"`

	Subject     string         `json:"subject"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	DurationMinutes *int     `json:"durationMinutes,omitempty"`
	Cost            *float64 `json:"cost,omitempty"`
	Outcome         string   `json:"outcome,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ActivityListResponse struct {
	Data       []ActivityResponse `json:"data"`
	Pagination query.Pagination   `json:"pagination"`
}

type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

type ReindexResponse struct {
	Indexed int `json:"indexed"`
}
