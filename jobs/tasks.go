package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLoansOverdueScan flags open loans past their due date.
	TaskLoansOverdueScan = "loans:overdue_scan"
	// TaskSessionsPrune drops expired session index members from redis.
	TaskSessionsPrune = "sessions:prune"
)

// OverdueScanPayload carries scheduling metadata for the loan scan.
type OverdueScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOverdueScanTask constructs an Asynq task for the overdue loan scan.
func NewOverdueScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoansOverdueScan, body, asynq.Queue(QueueDefault)), nil
}

// SessionsPrunePayload carries scheduling metadata for the session prune.
type SessionsPrunePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionsPruneTask constructs an Asynq task for the session prune.
func NewSessionsPruneTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SessionsPrunePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPrune, body, asynq.Queue(QueueDefault)), nil
}
