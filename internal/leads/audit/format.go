package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// formatValue renders one side of a diff as audit-trail text. Nils read as
// "Not set", booleans as Yes/No, times as a readable stamp, and foreign
// keys as display names where the resolver knows them.
func (g *Generator) formatValue(ctx context.Context, field string, value any) string {
	if value == nil {
		return "Not set"
	}

	switch v := value.(type) {
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case *bool:
		if v == nil {
			return "Not set"
		}
		return g.formatValue(ctx, field, *v)
	case time.Time:
		return v.Format("Jan 2, 2006 15:04")
	case *time.Time:
		if v == nil {
			return "Not set"
		}
		return v.Format("Jan 2, 2006 15:04")
	case uuid.UUID:
		return g.resolveReference(ctx, field, v)
	case *uuid.UUID:
		if v == nil {
			return "Not set"
		}
		return g.resolveReference(ctx, field, *v)
	case string:
		if v == "" {
			return "Not set"
		}
		return v
	case *string:
		if v == nil {
			return "Not set"
		}
		return g.formatValue(ctx, field, *v)
	case domain.LeadStatus:
		return v.Label()
	case domain.Budget:
		if v.Amount == 0 {
			return "Not set"
		}
		if v.Currency == "" {
			return fmt.Sprintf("%.0f", v.Amount)
		}
		return fmt.Sprintf("%.0f %s", v.Amount, v.Currency)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", value)
}

// resolveReference turns a foreign key into a display name, falling back
// to the raw id when the lookup fails.
func (g *Generator) resolveReference(ctx context.Context, field string, id uuid.UUID) string {
	if g.names == nil {
		return id.String()
	}
	var name string
	var err error
	switch field {
	case "assigned_to":
		name, err = g.names.UserName(ctx, id)
	case "source_id":
		name, err = g.names.SourceName(ctx, id)
	case "service_id":
		name, err = g.names.ServiceName(ctx, id)
	default:
		return id.String()
	}
	if err != nil || name == "" {
		return id.String()
	}
	return name
}

// fieldLabel turns a column name into audit-trail prose ("company_name" →
// "Company name").
func fieldLabel(field string) string {
	label := strings.ReplaceAll(field, "_", " ")
	if label == "" {
		return field
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func toLeadStatus(value any) domain.LeadStatus {
	switch v := value.(type) {
	case domain.LeadStatus:
		return v
	case string:
		return domain.LeadStatus(v)
	case *domain.LeadStatus:
		if v != nil {
			return *v
		}
	}
	return ""
}

func toUUIDPtr(value any) *uuid.UUID {
	switch v := value.(type) {
	case *uuid.UUID:
		return v
	case uuid.UUID:
		if v == uuid.Nil {
			return nil
		}
		return &v
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil
		}
		return &parsed
	}
	return nil
}

func uuidPtrString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func tagValues(tags []domain.Tag) string {
	values := make([]string, len(tags))
	for i, tag := range tags {
		values[i] = tag.Value
	}
	return strings.Join(values, ", ")
}

func tagValueList(tags []domain.Tag) []string {
	values := make([]string, len(tags))
	for i, tag := range tags {
		values[i] = tag.Value
	}
	return values
}
