package task

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a task within a single graph run.
// Transitions are forward-only: pending -> running -> one of the terminal
// states, or pending -> upstream_failed when a dependency did not succeed.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusSkipped        Status = "skipped"
	StatusUpstreamFailed Status = "upstream_failed"
	StatusTimeout        Status = "timeout"
)

// Terminal reports whether no further transition is possible within a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusUpstreamFailed, StatusTimeout:
		return true
	}
	return false
}

// Successful reports whether the status unblocks downstream tasks.
func (s Status) Successful() bool {
	return s == StatusSuccess
}

// Spec describes a task: identity, dependencies and execution policy.
// Retries is the number of additional attempts after a failed first one,
// so a task with Retries=2 is executed at most three times. RetryDelay
// is the pause between attempts and delays only the task it belongs to.
type Spec struct {
	ID         string
	DependsOn  []string
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	SLA        time.Duration
}

// Task is a node of a dependency graph. The spec and handler must not be
// mutated after the task has been added to a graph. Status and Result are
// owned by the executor of the current run.
type Task struct {
	Spec
	Handler Handler

	Status Status
	Result *Result
}

// New returns a pending task with the given spec and handler.
func New(spec Spec, handler Handler) *Task {
	return &Task{Spec: spec, Handler: handler, Status: StatusPending}
}

// Result captures the outcome of one task within one run.
type Result struct {
	TaskID    string        `json:"task_id"`
	Status    Status        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
}

// Execute runs the handler once, enforcing the task timeout, and records
// the outcome on the task. A handler error wrapping
// context.DeadlineExceeded yields a timeout status, any other error or a
// non-zero exit code yields failed. Panics inside the handler are captured
// as a failed result instead of unwinding the run.
func (t *Task) Execute(ctx context.Context) *Result {
	t.Status = StatusRunning
	res := &Result{TaskID: t.ID, StartTime: time.Now(), Attempts: 1}

	code, err := t.invoke(ctx)
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.ExitCode = &code

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusTimeout
		res.Error = err.Error()
	case err != nil:
		res.Status = StatusFailed
		res.Error = err.Error()
	case code != 0:
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("exit code %d", code)
	default:
		res.Status = StatusSuccess
	}

	t.Status = res.Status
	t.Result = res
	return res
}

func (t *Task) invoke(ctx context.Context) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code = -1
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	return t.Handler.Execute(ctx)
}
