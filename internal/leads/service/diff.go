package service

import (
	"encoding/json"

	"crm_backend/internal/leads/audit"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// buildChanges computes the field-level diff between a lead's state before
// an update and the requested changes. Only fields the caller actually set
// are diffed, and only real value changes survive: setting a field to its
// current value produces no change and therefore no audit entry.
func buildChanges(old domain.Lead, params repository.UpdateLeadParams) []audit.Change {
	changes := make([]audit.Change, 0, 4)

	addString := func(field, oldValue string, newValue *string) {
		if newValue != nil && *newValue != oldValue {
			changes = append(changes, audit.Change{Field: field, Old: oldValue, New: *newValue})
		}
	}

	addString("first_name", old.FirstName, params.FirstName)
	addString("last_name", old.LastName, params.LastName)
	addString("email", old.Email, params.Email)
	addString("phone", old.Phone, params.Phone)
	addString("company_name", old.CompanyName, params.CompanyName)
	addString("occupation", old.Occupation, params.Occupation)
	addString("inquiry_type", old.InquiryType, params.InquiryType)
	addString("city", old.City, params.City)

	if params.InquiryStatus != nil && *params.InquiryStatus != old.InquiryStatus {
		changes = append(changes, audit.Change{Field: "inquiry_status", Old: old.InquiryStatus, New: *params.InquiryStatus})
	}
	if params.Priority != nil && *params.Priority != old.Priority {
		changes = append(changes, audit.Change{Field: "priority", Old: string(old.Priority), New: string(*params.Priority)})
	}
	if params.SourceIDSet && !uuidPtrEqual(old.SourceID, params.SourceID) {
		changes = append(changes, audit.Change{Field: "source_id", Old: old.SourceID, New: params.SourceID})
	}
	if params.ServiceIDSet && !uuidPtrEqual(old.ServiceID, params.ServiceID) {
		changes = append(changes, audit.Change{Field: "service_id", Old: old.ServiceID, New: params.ServiceID})
	}
	if params.AssignedToSet && !uuidPtrEqual(old.AssignedTo, params.AssignedTo) {
		changes = append(changes, audit.Change{Field: "assigned_to", Old: old.AssignedTo, New: params.AssignedTo})
	}
	if params.TagsSet {
		added, removed := domain.DiffTags(old.Tags, params.Tags)
		if len(added) > 0 || len(removed) > 0 {
			changes = append(changes, audit.Change{Field: "tags", Old: old.Tags, New: params.Tags})
		}
	}
	if params.CustomFieldsSet && !jsonEqual(old.CustomFields, params.CustomFields) {
		changes = append(changes, audit.Change{Field: "custom_fields", Old: "Custom fields", New: "Custom fields updated"})
	}
	if params.Budget != nil && *params.Budget != old.Budget {
		changes = append(changes, audit.Change{Field: "budget", Old: old.Budget, New: *params.Budget})
	}
	if params.Latitude != nil && !floatPtrEqual(old.Latitude, params.Latitude) {
		changes = append(changes, audit.Change{Field: "latitude", Old: old.Latitude, New: params.Latitude})
	}
	if params.Longitude != nil && !floatPtrEqual(old.Longitude, params.Longitude) {
		changes = append(changes, audit.Change{Field: "longitude", Old: old.Longitude, New: params.Longitude})
	}

	return changes
}

// scoreInputsChanged reports whether the diff touched any field the
// scoring heuristic reads.
func scoreInputsChanged(changes []audit.Change) bool {
	for _, change := range changes {
		switch change.Field {
		case "email", "phone", "budget", "occupation":
			return true
		}
	}
	return false
}

func changedFieldNames(changes []audit.Change) []string {
	names := make([]string, len(changes))
	for i, change := range changes {
		names[i] = change.Field
	}
	return names
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func jsonEqual(a, b map[string]any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(rawA) == string(rawB)
}
