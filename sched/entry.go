package sched

import (
	"time"

	"github.com/sand8080/gantry/workflow"
)

// ScheduleEntry is one registered workflow schedule as kept in the
// daemon state file.
type ScheduleEntry struct {
	WorkflowID string               `json:"workflow_id"`
	Definition *workflow.Definition `json:"definition"`
	Cron       string               `json:"cron"`
	Enabled    bool                 `json:"enabled"`
	NextRun    time.Time            `json:"next_run"`
}

// QueueStatus is the lifecycle of a queued backfill execution.
type QueueStatus string

const (
	QueueStatusQueued    QueueStatus = "queued"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
)

// QueueEntry is one backfill execution in the persistent queue.
type QueueEntry struct {
	WorkflowID    string      `json:"workflow_id"`
	ScheduledDate time.Time   `json:"scheduled_date"`
	Status        QueueStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   time.Time   `json:"completed_at"`
	Error         string      `json:"error,omitempty"`
}

// daemonState is the on-disk layout of the scheduler state file.
type daemonState struct {
	Running   bool                      `json:"running"`
	Workflows map[string]*ScheduleEntry `json:"workflows"`
	UpdatedAt time.Time                 `json:"updated_at"`
}
