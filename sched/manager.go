package sched

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sand8080/gantry/config"
	"github.com/sand8080/gantry/runner"
	"github.com/sand8080/gantry/store"
	"github.com/sand8080/gantry/workflow"
)

const (
	historyFileName      = "workflow_executions.json"
	scheduledLogFileName = "scheduled_executions.json"
)

// Status is a point-in-time picture of the scheduler.
type Status struct {
	Running            bool             `json:"running"`
	ScheduledWorkflows int              `json:"scheduled_workflows"`
	PendingExecutions  int              `json:"pending_executions"`
	Workflows          []WorkflowStatus `json:"workflows"`
}

// WorkflowStatus describes one scheduled workflow.
type WorkflowStatus struct {
	WorkflowID string    `json:"workflow_id"`
	Cron       string    `json:"cron"`
	Enabled    bool      `json:"enabled"`
	NextRun    time.Time `json:"next_run"`
}

// Manager is the single entry point for scheduled execution: it wires
// the daemon to the workflow executor, records every scheduled run and
// answers status queries.
type Manager struct {
	daemon   *Daemon
	executor *workflow.Executor
	schedLog *store.ExecutionLog
}

// NewManager builds the scheduling stack over one base directory: task
// commands run through r, every run lands in the workflow history and
// scheduled runs additionally in the scheduled execution log.
func NewManager(cfg *config.Config, r runner.Runner) *Manager {
	history := store.NewExecutionLog(
		filepath.Join(cfg.BaseDir, historyFileName), cfg.HistoryLimit)
	m := &Manager{
		executor: workflow.NewExecutor(r, history, cfg.Workers),
		schedLog: store.NewExecutionLog(
			filepath.Join(cfg.BaseDir, scheduledLogFileName), cfg.ScheduledLogLimit),
	}
	m.daemon = NewDaemon(cfg.BaseDir, cfg.DispatchSlots, m.execute)
	return m
}

// execute is the daemon callback. It looks the definition up, runs it
// and records the outcome in the scheduled execution log. A failed run
// is captured in the record; only infrastructure errors are returned.
func (m *Manager) execute(ctx context.Context, id string, scheduledAt time.Time) error {
	entry, ok := m.daemon.Entry(id)
	if !ok || entry.Definition == nil {
		err := fmt.Errorf("execute %q: %w", id, ErrUnknownWorkflow)
		log.Error(err)
		return err
	}

	res, err := m.executor.Run(ctx, entry.Definition)
	if err != nil {
		return fmt.Errorf("execute %q: %w", id, err)
	}
	rec := store.ExecutionRecord{
		Run:           res,
		WorkflowID:    id,
		ScheduledDate: scheduledAt,
		RecordedAt:    time.Now(),
	}
	if err := m.schedLog.Append(rec); err != nil {
		log.Errorf("workflow %q: scheduled execution not recorded: %v", id, err)
	}
	if !res.Success() {
		log.Warnf("workflow %q: run %s finished %s", id, res.RunID, res.Status)
	}
	return nil
}

// Schedule registers the workflow under its name and makes sure the
// daemon is running. An empty expr falls back to the schedule declared
// in the definition.
func (m *Manager) Schedule(def *workflow.Definition, expr string) error {
	if def == nil || def.Name == "" {
		err := errors.New("workflow definition with a name is required")
		log.Error(err)
		return err
	}
	if expr == "" {
		expr = def.Schedule
	}
	if !m.daemon.Running() {
		m.daemon.Start()
	}
	return m.daemon.Schedule(def.Name, def, expr)
}

// Unschedule removes a workflow schedule.
func (m *Manager) Unschedule(id string) bool {
	return m.daemon.Unschedule(id)
}

// Pause disables firing of a schedule without removing it.
func (m *Manager) Pause(id string) bool {
	return m.daemon.Pause(id)
}

// Resume re-enables a paused schedule.
func (m *Manager) Resume(id string) bool {
	return m.daemon.Resume(id)
}

// TriggerNow runs a scheduled workflow immediately, paused or not.
func (m *Manager) TriggerNow(ctx context.Context, id string) bool {
	return m.daemon.TriggerNow(ctx, id)
}

// Backfill queues one execution per scheduled day of the inclusive
// range and processes the whole queue synchronously before returning.
// It returns the number of entries this call queued.
func (m *Manager) Backfill(ctx context.Context, id string, start, end time.Time) (int, error) {
	queued, err := m.daemon.Backfill(id, start, end)
	if err != nil {
		return 0, err
	}
	if queued > 0 {
		completed := m.daemon.ProcessQueue(ctx, m.execute)
		log.Infof("backfill %q: %d queued, %d completed", id, queued, completed)
	}
	return queued, nil
}

// ProcessQueue runs every queued backfill execution and returns the
// number that completed.
func (m *Manager) ProcessQueue(ctx context.Context) int {
	return m.daemon.ProcessQueue(ctx, m.execute)
}

// Start launches the scheduling daemon.
func (m *Manager) Start() bool {
	return m.daemon.Start()
}

// Stop halts the scheduling daemon.
func (m *Manager) Stop() bool {
	return m.daemon.Stop()
}

// GetStatus assembles the scheduler picture: running flag, queue depth
// and the per workflow schedule state sorted by id.
func (m *Manager) GetStatus() Status {
	entries := m.daemon.ScheduledWorkflows()
	st := Status{
		Running:            m.daemon.Running(),
		ScheduledWorkflows: len(entries),
	}
	for _, q := range m.daemon.Queue() {
		if q.Status == QueueStatusQueued {
			st.PendingExecutions++
		}
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := entries[id]
		st.Workflows = append(st.Workflows, WorkflowStatus{
			WorkflowID: id,
			Cron:       e.Cron,
			Enabled:    e.Enabled,
			NextRun:    e.NextRun,
		})
	}
	return st
}

// Queue returns a copy of the backfill queue.
func (m *Manager) Queue() []QueueEntry {
	return m.daemon.Queue()
}

// ExecutionHistory returns up to n scheduled executions of a workflow,
// most recent first.
func (m *Manager) ExecutionHistory(id string, n int) ([]store.ExecutionRecord, error) {
	return m.schedLog.ForWorkflow(id, n)
}

// WorkflowHistory returns up to n runs of a workflow from the general
// execution history, scheduled or not.
func (m *Manager) WorkflowHistory(id string, n int) ([]store.ExecutionRecord, error) {
	return m.executor.History(id, n)
}
