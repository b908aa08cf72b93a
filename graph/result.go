package graph

import (
	"time"

	"github.com/sand8080/gantry/task"
)

// RunResult is the aggregate outcome of one graph run.
type RunResult struct {
	RunID          string                  `json:"run_id"`
	GraphID        string                  `json:"graph_id"`
	Status         task.Status             `json:"status"`
	Error          string                  `json:"error,omitempty"`
	StartTime      time.Time               `json:"start_time"`
	EndTime        time.Time               `json:"end_time"`
	Duration       time.Duration           `json:"duration"`
	TasksCompleted int                     `json:"tasks_completed"`
	TasksFailed    int                     `json:"tasks_failed"`
	Tasks          map[string]*task.Result `json:"tasks"`
}

// Success reports whether the run finished without a single unsuccessful
// task.
func (r *RunResult) Success() bool {
	return r.Status == task.StatusSuccess
}

// finalize derives the aggregate status and the counters from the
// per-task results. Completed counts successes, failed counts directly
// failed and timed out tasks. Upstream failures make the whole run failed
// without counting as task failures.
func (r *RunResult) finalize() {
	unsuccessful := 0
	for _, res := range r.Tasks {
		switch res.Status {
		case task.StatusSuccess:
			r.TasksCompleted++
		case task.StatusFailed, task.StatusTimeout:
			r.TasksFailed++
			unsuccessful++
		case task.StatusUpstreamFailed:
			unsuccessful++
		}
	}
	if unsuccessful > 0 {
		r.Status = task.StatusFailed
	} else {
		r.Status = task.StatusSuccess
	}
}
