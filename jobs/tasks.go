package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFXRefresh is the task type for loading ECB reference rates into the rate store.
	TaskFXRefresh = "fx:refresh"
)

// Rate feeds a refresh can read.
const (
	FeedDaily   = "daily"
	FeedHistory = "history"
)

// FXRefreshPayload selects the feed a refresh reads. The history feed backfills the
// last 90 publication days.
type FXRefreshPayload struct {
	Feed string `json:"feed"`
}

// NewFXRefreshTask constructs an Asynq task.
func NewFXRefreshTask(feed string) (*asynq.Task, error) {
	if feed == "" {
		feed = FeedDaily
	}
	data, err := json.Marshal(FXRefreshPayload{Feed: feed})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFXRefresh, data), nil
}
