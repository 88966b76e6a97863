package searchindex

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"crm_backend/internal/leads/repository"

	"github.com/google/uuid"
)

const docKeyPrefix = "lead_doc:"

func docKey(id uuid.UUID) string {
	return docKeyPrefix + id.String()
}

// docFields flattens a lead into the hash the index consumes. Relationship
// names are denormalized to plain strings, timestamps to epoch seconds, and
// the derived booleans to 0/1 numerics so they can be range-filtered.
func docFields(item repository.IndexableLead, now time.Time) map[string]any {
	lead := item.Lead

	tagValues := make([]string, len(lead.Tags))
	for i, tag := range lead.Tags {
		tagValues[i] = tag.Value
	}

	overdue := 0
	if lead.NextFollowUpAt != nil && lead.NextFollowUpAt.Before(now) {
		overdue = 1
	}
	hot := 0
	if lead.IsHot() {
		hot = 1
	}
	assignedTo := ""
	if lead.AssignedTo != nil {
		assignedTo = lead.AssignedTo.String()
	}

	// days_in_status counts from updated_at, not from the last
	// status_change activity. Kept that way deliberately; the activity log
	// would be the stricter source.
	daysInStatus := int(now.Sub(lead.UpdatedAt).Hours() / 24)
	if daysInStatus < 0 {
		daysInStatus = 0
	}

	return map[string]any{
		"name":           lead.FullName(),
		"email":          lead.Email,
		"phone":          lead.Phone,
		"company":        lead.CompanyName,
		"occupation":     lead.Occupation,
		"city":           lead.City,
		"source":         item.SourceName,
		"service":        item.ServiceName,
		"status":         string(lead.InquiryStatus),
		"priority":       string(lead.Priority),
		"inquiry_type":   lead.InquiryType,
		"assigned_to":    assignedTo,
		"assignee_name":  item.AssigneeName,
		"assignee_email": item.AssigneeEmail,
		"tags":           strings.Join(tagValues, ","),
		"lead_score":     lead.LeadScore,
		"budget":         lead.Budget.Amount,
		"hot":            hot,
		"overdue":        overdue,
		"days_in_status": daysInStatus,
		"created_at":     lead.CreatedAt.Unix(),
	}
}

// Query is a search request against the mirror.
type Query struct {
	Term string

	Status      string
	Priority    string
	InquiryType string
	Tag         string
	AssignedTo  *uuid.UUID
	Hot         bool
	ScoreMin    *int
	ScoreMax    *int

	Limit  int
	Offset int
}

// buildQueryString translates a Query into RediSearch syntax. Filters the
// index has no field for (geo radius, budget ranges on the relational
// path) are accepted by the caller but simply not expressed here.
func buildQueryString(q Query) string {
	parts := make([]string, 0, 8)

	if term := escapeTerm(q.Term); term != "" {
		parts = append(parts, term)
	}
	if q.Status != "" {
		parts = append(parts, fmt.Sprintf("@status:{%s}", escapeTag(q.Status)))
	}
	if q.Priority != "" {
		parts = append(parts, fmt.Sprintf("@priority:{%s}", escapeTag(q.Priority)))
	}
	if q.InquiryType != "" {
		parts = append(parts, fmt.Sprintf("@inquiry_type:{%s}", escapeTag(q.InquiryType)))
	}
	if q.Tag != "" {
		parts = append(parts, fmt.Sprintf("@tags:{%s}", escapeTag(q.Tag)))
	}
	if q.AssignedTo != nil {
		parts = append(parts, fmt.Sprintf("@assigned_to:{%s}", escapeTag(q.AssignedTo.String())))
	}
	if q.Hot {
		parts = append(parts, "@hot:[1 1]")
	}
	if q.ScoreMin != nil || q.ScoreMax != nil {
		low, high := "-inf", "+inf"
		if q.ScoreMin != nil {
			low = strconv.Itoa(*q.ScoreMin)
		}
		if q.ScoreMax != nil {
			high = strconv.Itoa(*q.ScoreMax)
		}
		parts = append(parts, fmt.Sprintf("@lead_score:[%s %s]", low, high))
	}

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// queryEscaper neutralizes RediSearch operator characters in free text.
var queryEscaper = strings.NewReplacer(
	",", " ", ".", " ", "<", " ", ">", " ", "{", " ", "}", " ",
	"[", " ", "]", " ", "\"", " ", "'", " ", ":", " ", ";", " ",
	"!", " ", "@", " ", "#", " ", "$", " ", "%", " ", "^", " ",
	"&", " ", "*", " ", "(", " ", ")", " ", "-", " ", "+", " ",
	"=", " ", "~", " ", "|", " ", "/", " ", "\\", " ",
)

func escapeTerm(term string) string {
	return strings.Join(strings.Fields(queryEscaper.Replace(term)), " ")
}

// escapeTag escapes the separator-sensitive characters inside a TAG value.
var tagEscaper = strings.NewReplacer(
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>",
	"{", "\\{", "}", "\\}", "[", "\\[", "]", "\\]",
	":", "\\:", ";", "\\;", "-", "\\-", " ", "\\ ",
	"@", "\\@", "|", "\\|",
)

func escapeTag(value string) string {
	return tagEscaper.Replace(value)
}

// rankedDoc is one hit with its relevance score and tie-break fields.
type rankedDoc struct {
	ID        uuid.UUID
	Relevance float64
	LeadScore int
	Hot       bool
}

// orderDocs sorts hits by text relevance, then lead_score descending, then
// the hot flag: among equally relevant matches, better leads surface
// first. The sort is stable so the index's own ordering decides final
// ties.
func orderDocs(docs []rankedDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Relevance != docs[j].Relevance {
			return docs[i].Relevance > docs[j].Relevance
		}
		if docs[i].LeadScore != docs[j].LeadScore {
			return docs[i].LeadScore > docs[j].LeadScore
		}
		return docs[i].Hot && !docs[j].Hot
	})
}
