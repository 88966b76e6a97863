package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskOverdueSweep marks past-due pending activities overdue and brings the
// affected leads' derived fields back in line.
const TaskOverdueSweep = "leads.activities.overdue_sweep"

// TaskSearchReindex rebuilds the lead search index from scratch.
const TaskSearchReindex = "leads.search.reindex"

type SearchReindexPayload struct {
	// RequestedBy records who enqueued the rebuild, for the worker log.
	RequestedBy string `json:"requestedBy,omitempty"`
}

func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil)
}

func NewSearchReindexTask(payload SearchReindexPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSearchReindex, data), nil
}

func ParseSearchReindexPayload(task *asynq.Task) (SearchReindexPayload, error) {
	var payload SearchReindexPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SearchReindexPayload{}, err
	}
	return payload, nil
}
