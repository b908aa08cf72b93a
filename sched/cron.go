// Package sched runs workflows on cron schedules: a daemon with a
// persistent schedule registry and backfill queue, and a manager that
// wires the daemon to the workflow executor.
package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron computes the fire times of a schedule.
type Cron interface {
	// Next returns the first fire time strictly after t, or the zero
	// time when no such time exists.
	Next(t time.Time) time.Time
}

// InvalidCronError reports a cron expression the parser rejected.
type InvalidCronError struct {
	Expr string
	Err  error
}

func (e *InvalidCronError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expr, e.Err)
}

func (e *InvalidCronError) Unwrap() error {
	return e.Err
}

// ParseCron parses a five field cron expression or an @descriptor such
// as @daily into a schedule.
func ParseCron(expr string) (Cron, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, &InvalidCronError{Expr: expr, Err: err}
	}
	return sched, nil
}
