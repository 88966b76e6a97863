package transport

import (
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/query"
	"crm_backend/internal/leads/repository"

	"github.com/google/uuid"
)

func ToLeadResponse(lead domain.Lead) LeadResponse {
	tags := lead.Tags
	if tags == nil {
		tags = []domain.Tag{}
	}
	return LeadResponse{
		ID:          lead.ID,
		FirstName:   lead.FirstName,
		LastName:    lead.LastName,
		FullName:    lead.FullName(),
		Email:       lead.Email,
		Phone:       lead.Phone,
		CompanyName: lead.CompanyName,
		Occupation:  lead.Occupation,

		InquiryStatus: string(lead.InquiryStatus),
		InquiryType:   lead.InquiryType,
		Priority:      string(lead.Priority),
		LeadScore:     lead.LeadScore,
		Hot:           lead.IsHot(),

		SourceID:   lead.SourceID,
		ServiceID:  lead.ServiceID,
		AssignedTo: lead.AssignedTo,
		AssignedAt: lead.AssignedAt,

		Tags:         tags,
		CustomFields: lead.CustomFields,
		Budget:       lead.Budget,

		City:      lead.City,
		Latitude:  lead.Latitude,
		Longitude: lead.Longitude,

		LastActivityAt:         lead.LastActivityAt,
		NextFollowUpAt:         lead.NextFollowUpAt,
		PendingActivitiesCount: lead.PendingActivitiesCount,

		CreatedAt: lead.CreatedAt,
		UpdatedAt: lead.UpdatedAt,
	}
}

func ToLeadResponses(leads []domain.Lead) []LeadResponse {
	out := make([]LeadResponse, len(leads))
	for i, lead := range leads {
		out[i] = ToLeadResponse(lead)
	}
	return out
}

func ToCacheMetaResponse(meta query.CacheMeta) CacheMetaResponse {
	return CacheMetaResponse{
		ServedFromCache: meta.ServedFromCache,
		CacheKey:        meta.CacheKey,
		TTLUsed:         meta.TTLUsed,
		BypassReason:    meta.BypassReason,
	}
}

func ToActivityResponse(activity domain.Activity) ActivityResponse {
	return ActivityResponse{
		ID:     activity.ID,
		LeadID: activity.LeadID,
		UserID: activity.UserID,

		Type:     string(activity.Type),
		Status:   string(activity.Status),
		Category: string(activity.Category),
		Priority: string(activity.Priority),

		Subject:     activity.Subject,
		Description: activity.Description,
		Metadata:    activity.Metadata,

		ScheduledAt: activity.ScheduledAt,
		DueAt:       activity.DueAt,
		CompletedAt: activity.CompletedAt,

		DurationMinutes: activity.DurationMinutes,
		Cost:            activity.Cost,
		Outcome:         activity.Outcome,

		CreatedAt: activity.CreatedAt,
		UpdatedAt: activity.UpdatedAt,
	}
}

func ToActivityResponses(activities []domain.Activity) []ActivityResponse {
	out := make([]ActivityResponse, len(activities))
	for i, activity := range activities {
		out[i] = ToActivityResponse(activity)
	}
	return out
}

func toTags(payload []TagPayload) []domain.Tag {
	tags := make([]domain.Tag, len(payload))
	for i, tag := range payload {
		tags[i] = domain.Tag{Label: tag.Label, Value: tag.Value, Color: tag.Color}
	}
	return tags
}

// ToCreateParams maps the create request to repository parameters.
func (r CreateLeadRequest) ToCreateParams() repository.CreateLeadParams {
	params := repository.CreateLeadParams{
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		Phone:         r.Phone,
		CompanyName:   r.CompanyName,
		Occupation:    r.Occupation,
		InquiryStatus: domain.LeadStatus(r.InquiryStatus),
		InquiryType:   r.InquiryType,
		Priority:      domain.Priority(r.Priority),
		SourceID:      r.SourceID,
		ServiceID:     r.ServiceID,
		AssignedTo:    r.AssignedTo,
		Tags:          toTags(r.Tags),
		CustomFields:  r.CustomFields,
		City:          r.City,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
	}
	if r.Budget != nil {
		params.Budget = domain.Budget{Amount: r.Budget.Amount, Currency: r.Budget.Currency}
	}
	return params
}

// ToUpdateParams maps the update request to repository parameters. The
// *Set flags must already be populated from the raw body (see
// MarkSetFields).
func (r UpdateLeadRequest) ToUpdateParams() repository.UpdateLeadParams {
	params := repository.UpdateLeadParams{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Email:       r.Email,
		Phone:       r.Phone,
		CompanyName: r.CompanyName,
		Occupation:  r.Occupation,
		InquiryType: r.InquiryType,
		City:        r.City,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,

		SourceID:      r.SourceID,
		SourceIDSet:   r.SourceSet,
		ServiceID:     r.ServiceID,
		ServiceIDSet:  r.ServiceSet,
		AssignedTo:    r.AssignedTo,
		AssignedToSet: r.AssignedToSet,

		TagsSet:         r.TagsSet,
		CustomFields:    r.CustomFields,
		CustomFieldsSet: r.CustomFieldsSet,
	}
	if r.InquiryStatus != nil {
		status := domain.LeadStatus(*r.InquiryStatus)
		params.InquiryStatus = &status
	}
	if r.Priority != nil {
		priority := domain.Priority(*r.Priority)
		params.Priority = &priority
	}
	if r.TagsSet {
		params.Tags = toTags(r.Tags)
	}
	if r.Budget != nil {
		params.Budget = &domain.Budget{Amount: r.Budget.Amount, Currency: r.Budget.Currency}
	}
	return params
}

// MarkSetFields records which nullable keys were present in the raw JSON
// body, so null-to-clear semantics survive decoding.
func (r *UpdateLeadRequest) MarkSetFields(body map[string]any) {
	_, r.SourceSet = body["sourceId"]
	_, r.ServiceSet = body["serviceId"]
	_, r.AssignedToSet = body["assignedTo"]
	_, r.TagsSet = body["tags"]
	_, r.CustomFieldsSet = body["customFields"]
}

// ToListRequest maps the query string to an engine request.
func (r ListLeadsRequest) ToListRequest(elevatedBulk bool) query.ListRequest {
	req := query.ListRequest{
		Search:       r.Search,
		Status:       r.Status,
		Priority:     r.Priority,
		InquiryType:  r.InquiryType,
		Tag:          r.Tag,
		Unassigned:   r.Unassigned,
		Hot:          r.Hot,
		BudgetMin:    r.BudgetMin,
		BudgetMax:    r.BudgetMax,
		ScoreMin:     r.ScoreMin,
		ScoreMax:     r.ScoreMax,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		RadiusKM:     r.RadiusKM,
		SortBy:       r.SortBy,
		SortOrder:    r.SortOrder,
		Page:         r.Page,
		PerPage:      r.PerPage,
		ForceRefresh: r.ForceRefresh,
		ElevatedBulk: elevatedBulk,
	}
	if id, err := uuid.Parse(r.SourceID); err == nil && r.SourceID != "" {
		req.SourceID = &id
	}
	if id, err := uuid.Parse(r.ServiceID); err == nil && r.ServiceID != "" {
		req.ServiceID = &id
	}
	if id, err := uuid.Parse(r.AssignedTo); err == nil && r.AssignedTo != "" {
		req.AssignedTo = &id
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedFrom); err == nil {
		req.CreatedFrom = &t
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedTo); err == nil {
		req.CreatedTo = &t
	}
	if t, err := time.Parse(time.RFC3339, r.UpdatedAfter); err == nil {
		req.UpdatedAfter = &t
	}
	return req
}

// ToCreateParams maps an activity create request for the given lead.
func (r CreateActivityRequest) ToCreateParams(leadID uuid.UUID) repository.CreateActivityParams {
	return repository.CreateActivityParams{
		LeadID:          leadID,
		Type:            domain.ActivityType(r.Type),
		Status:          domain.ActivityStatus(r.Status),
		Category:        domain.CategoryUser,
		Priority:        domain.Priority(r.Priority),
		Subject:         r.Subject,
		Description:     r.Description,
		Metadata:        r.Metadata,
		ScheduledAt:     r.ScheduledAt,
		DueAt:           r.DueAt,
		DurationMinutes: r.DurationMinutes,
		Cost:            r.Cost,
		Outcome:         r.Outcome,
	}
}

// ToUpdateParams maps an activity update request.
func (r UpdateActivityRequest) ToUpdateParams() repository.UpdateActivityParams {
	params := repository.UpdateActivityParams{
		Subject:         r.Subject,
		Description:     r.Description,
		Outcome:         r.Outcome,
		ScheduledAt:     r.ScheduledAt,
		ScheduledAtSet:  r.ScheduledAtSet,
		DueAt:           r.DueAt,
		DueAtSet:        r.DueAtSet,
		DurationMinutes: r.DurationMinutes,
		Cost:            r.Cost,
		LeadID:          r.LeadID,
	}
	if r.Status != nil {
		status := domain.ActivityStatus(*r.Status)
		params.Status = &status
	}
	if r.Priority != nil {
		priority := domain.Priority(*r.Priority)
		params.Priority = &priority
	}
	return params
}

// MarkSetFields records which nullable schedule keys were present.
func (r *UpdateActivityRequest) MarkSetFields(body map[string]any) {
	_, r.ScheduledAtSet = body["scheduledAt"]
	_, r.DueAtSet = body["dueAt"]
}
