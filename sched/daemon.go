package sched

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sand8080/gantry/store"
	"github.com/sand8080/gantry/workflow"
)

// Callback executes one workflow on behalf of the daemon. ScheduledAt
// carries the instant the execution was scheduled for and is zero for
// manual triggers.
type Callback func(ctx context.Context, workflowID string, scheduledAt time.Time) error

// MisfireGrace is how late a firing may still be dispatched. Firings
// missed by more than this are dropped with a warning.
const MisfireGrace = time.Minute

// backfillProbe anchors the day match probe slightly before midnight so
// a fire at exactly 00:00 is not lost to the strictly-after semantics
// of Next.
const backfillProbe = time.Minute

const (
	stateFileName = "scheduler_state.json"
	queueFileName = "execution_queue.json"
)

// ErrUnknownWorkflow reports an operation on a workflow id that is not
// scheduled.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Daemon fires workflows on their cron schedules and keeps the whole
// schedule registry and backfill queue on disk, so a restarted process
// continues from the last persisted picture.
type Daemon struct {
	mu      sync.Mutex
	entries map[string]*ScheduleEntry
	crons   map[string]Cron
	queue   []QueueEntry
	running bool
	stopCh  chan struct{}
	wakeCh  chan struct{}
	doneCh  chan struct{}

	callback Callback
	sem      *semaphore.Weighted
	grace    time.Duration
	now      func() time.Time

	stateFile *store.File
	queueFile *store.File
}

// NewDaemon creates a daemon storing its state under baseDir and
// executing workflows through callback. Slots bounds the number of
// concurrently running workflows. Previously persisted schedules and
// queue entries are restored; a restored entry whose cron expression no
// longer parses is disabled.
func NewDaemon(baseDir string, slots int, callback Callback) *Daemon {
	if slots <= 0 {
		slots = 1
	}
	d := &Daemon{
		entries:   make(map[string]*ScheduleEntry),
		crons:     make(map[string]Cron),
		wakeCh:    make(chan struct{}, 1),
		callback:  callback,
		sem:       semaphore.NewWeighted(int64(slots)),
		grace:     MisfireGrace,
		now:       time.Now,
		stateFile: store.NewFile(filepath.Join(baseDir, stateFileName)),
		queueFile: store.NewFile(filepath.Join(baseDir, queueFileName)),
	}
	d.restore()
	return d
}

func (d *Daemon) restore() {
	var st daemonState
	switch err := d.stateFile.Load(&st); {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		log.Errorf("scheduler state not restored: %v", err)
	default:
		for id, e := range st.Workflows {
			c, err := ParseCron(e.Cron)
			if err != nil {
				log.Errorf("workflow %q: restored schedule disabled: %v", id, err)
				e.Enabled = false
			} else {
				d.crons[id] = c
			}
			d.entries[id] = e
		}
	}

	var q []QueueEntry
	switch err := d.queueFile.Load(&q); {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		log.Errorf("execution queue not restored: %v", err)
	default:
		d.queue = q
	}
}

// Start launches the scheduling loop and arms the next run of every
// enabled schedule. It reports false when the daemon is already
// running.
func (d *Daemon) Start() bool {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		log.Warn("scheduler already running")
		return false
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	now := d.now()
	for id, e := range d.entries {
		if c, ok := d.crons[id]; ok && e.Enabled {
			e.NextRun = c.Next(now)
		}
	}
	d.saveStateLocked()
	stop, done := d.stopCh, d.doneCh
	d.mu.Unlock()

	go d.loop(stop, done)
	log.Info("scheduler started")
	return true
}

// Stop halts the scheduling loop and waits for it to park. Executions
// already dispatched keep running to completion. It reports false when
// the daemon is not running.
func (d *Daemon) Stop() bool {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		log.Warn("scheduler is not running")
		return false
	}
	d.running = false
	close(d.stopCh)
	done := d.doneCh
	d.saveStateLocked()
	d.mu.Unlock()

	<-done
	log.Info("scheduler stopped")
	return true
}

// Running reports whether the scheduling loop is active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// loop sleeps until the earliest armed next run, dispatches due
// entries and re-arms. Schedule changes wake it early through wakeCh.
func (d *Daemon) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	const idle = time.Hour

	for {
		d.mu.Lock()
		next := d.nextWakeLocked()
		d.mu.Unlock()

		wait := idle
		if !next.IsZero() {
			if wait = time.Until(next); wait < 0 {
				wait = 0
			}
		}
		timer := time.NewTimer(wait)

		select {
		case <-stop:
			timer.Stop()
			return
		case <-d.wakeCh:
			timer.Stop()
		case <-timer.C:
			d.fireDue(d.now())
		}
	}
}

func (d *Daemon) nextWakeLocked() time.Time {
	var next time.Time
	for id, e := range d.entries {
		if !e.Enabled || e.NextRun.IsZero() {
			continue
		}
		if _, ok := d.crons[id]; !ok {
			continue
		}
		if next.IsZero() || e.NextRun.Before(next) {
			next = e.NextRun
		}
	}
	return next
}

// fireDue dispatches every enabled entry whose next run is due and
// advances it. Entries overdue beyond the misfire grace are skipped.
func (d *Daemon) fireDue(now time.Time) {
	type firing struct {
		id string
		at time.Time
	}
	var due []firing
	advanced := false

	d.mu.Lock()
	for id, e := range d.entries {
		c, ok := d.crons[id]
		if !ok || !e.Enabled || e.NextRun.IsZero() || e.NextRun.After(now) {
			continue
		}
		if now.Sub(e.NextRun) <= d.grace {
			due = append(due, firing{id: id, at: e.NextRun})
		} else {
			log.Warnf("workflow %q: fire at %s missed beyond grace, skipping",
				id, e.NextRun.Format(time.RFC3339))
		}
		e.NextRun = c.Next(now)
		advanced = true
	}
	if advanced {
		d.saveStateLocked()
	}
	d.mu.Unlock()

	for _, f := range due {
		go func(id string, at time.Time) {
			if err := d.dispatch(context.Background(), d.callback, id, at); err != nil {
				log.Errorf("workflow %q: scheduled execution failed: %v", id, err)
			}
		}(f.id, f.at)
	}
}

// dispatch runs a callback under the execution slots semaphore. Every
// execution path of the daemon funnels through here.
func (d *Daemon) dispatch(ctx context.Context, cb Callback, id string, at time.Time) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)
	return cb(ctx, id, at)
}

// Schedule registers a workflow to fire on the cron expression,
// replacing a previous registration with the same id, and persists the
// registry before returning.
func (d *Daemon) Schedule(id string, def *workflow.Definition, expr string) error {
	if id == "" {
		err := errors.New("workflow id is required")
		log.Error(err)
		return err
	}
	c, err := ParseCron(expr)
	if err != nil {
		log.Errorf("workflow %q: %v", id, err)
		return err
	}

	d.mu.Lock()
	if _, ok := d.entries[id]; ok {
		log.Infof("workflow %q: replacing existing schedule", id)
	}
	e := &ScheduleEntry{
		WorkflowID: id,
		Definition: def,
		Cron:       expr,
		Enabled:    true,
		NextRun:    c.Next(d.now()),
	}
	d.entries[id] = e
	d.crons[id] = c
	next := e.NextRun
	d.saveStateLocked()
	d.mu.Unlock()

	d.wake()
	log.Infof("workflow %q scheduled with cron %q, next run %s",
		id, expr, next.Format(time.RFC3339))
	return nil
}

// Unschedule removes a workflow schedule. It reports false when the id
// is not registered.
func (d *Daemon) Unschedule(id string) bool {
	d.mu.Lock()
	if _, ok := d.entries[id]; !ok {
		d.mu.Unlock()
		log.Warnf("workflow %q is not scheduled", id)
		return false
	}
	delete(d.entries, id)
	delete(d.crons, id)
	d.saveStateLocked()
	d.mu.Unlock()

	d.wake()
	log.Infof("workflow %q unscheduled", id)
	return true
}

// Pause disables firing without removing the schedule.
func (d *Daemon) Pause(id string) bool {
	return d.setEnabled(id, false)
}

// Resume re-enables a paused schedule and recomputes its next run.
func (d *Daemon) Resume(id string) bool {
	return d.setEnabled(id, true)
}

func (d *Daemon) setEnabled(id string, enabled bool) bool {
	d.mu.Lock()
	e, ok := d.entries[id]
	if !ok {
		d.mu.Unlock()
		log.Warnf("workflow %q is not scheduled", id)
		return false
	}
	e.Enabled = enabled
	if enabled {
		if c, ok := d.crons[id]; ok {
			e.NextRun = c.Next(d.now())
		}
	}
	d.saveStateLocked()
	d.mu.Unlock()

	d.wake()
	log.Infof("workflow %q enabled=%v", id, enabled)
	return true
}

// TriggerNow executes the workflow immediately through the regular
// dispatch path, whether its schedule is paused or not. It reports
// false for unknown ids and failed executions.
func (d *Daemon) TriggerNow(ctx context.Context, id string) bool {
	d.mu.Lock()
	_, ok := d.entries[id]
	d.mu.Unlock()
	if !ok {
		log.Warnf("workflow %q is not scheduled, nothing to trigger", id)
		return false
	}
	log.Infof("workflow %q triggered manually", id)
	if err := d.dispatch(ctx, d.callback, id, time.Time{}); err != nil {
		log.Errorf("workflow %q: manual execution failed: %v", id, err)
		return false
	}
	return true
}

// Backfill queues one execution per day of the inclusive date range on
// which the workflow's schedule fires and persists the queue. It
// returns the number of entries queued.
func (d *Daemon) Backfill(id string, start, end time.Time) (int, error) {
	d.mu.Lock()
	_, ok := d.entries[id]
	c := d.crons[id]
	d.mu.Unlock()
	if !ok {
		log.Warnf("workflow %q is not scheduled, backfill skipped", id)
		return 0, fmt.Errorf("backfill %q: %w", id, ErrUnknownWorkflow)
	}
	if c == nil {
		err := fmt.Errorf("backfill %q: schedule has no valid cron", id)
		log.Error(err)
		return 0, err
	}

	day := startOfDay(start)
	last := startOfDay(end)
	if last.Before(day) {
		log.Warnf("workflow %q: backfill range %s to %s is empty",
			id, start.Format(time.DateOnly), end.Format(time.DateOnly))
		return 0, nil
	}

	now := d.now()
	var added []QueueEntry
	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !firesOn(c, day) {
			continue
		}
		added = append(added, QueueEntry{
			WorkflowID:    id,
			ScheduledDate: day,
			Status:        QueueStatusQueued,
			CreatedAt:     now,
		})
	}
	if len(added) == 0 {
		log.Infof("workflow %q: no scheduled days between %s and %s",
			id, start.Format(time.DateOnly), end.Format(time.DateOnly))
		return 0, nil
	}

	d.mu.Lock()
	d.queue = append(d.queue, added...)
	d.saveQueueLocked()
	d.mu.Unlock()

	log.Infof("workflow %q: queued %d backfill executions", id, len(added))
	return len(added), nil
}

// firesOn reports whether the schedule fires at some instant of the
// calendar day starting at dayStart.
func firesOn(c Cron, dayStart time.Time) bool {
	next := c.Next(dayStart.Add(-backfillProbe))
	if next.IsZero() {
		return false
	}
	return next.Before(dayStart.AddDate(0, 0, 1))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ProcessQueue runs every queued entry through the callback on the
// caller's goroutine, marks it completed or failed and persists the
// queue once. It returns the number of entries that completed.
func (d *Daemon) ProcessQueue(ctx context.Context, callback Callback) int {
	d.mu.Lock()
	pending := make([]int, 0, len(d.queue))
	for i := range d.queue {
		if d.queue[i].Status == QueueStatusQueued {
			pending = append(pending, i)
		}
	}
	snapshot := make([]QueueEntry, len(pending))
	for n, i := range pending {
		snapshot[n] = d.queue[i]
	}
	d.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}
	log.Infof("processing %d queued executions", len(pending))

	completed := 0
	for n := range snapshot {
		entry := &snapshot[n]
		err := d.dispatch(ctx, callback, entry.WorkflowID, entry.ScheduledDate)
		entry.CompletedAt = d.now()
		if err != nil {
			entry.Status = QueueStatusFailed
			entry.Error = err.Error()
			log.Errorf("workflow %q (%s): queued execution failed: %v",
				entry.WorkflowID, entry.ScheduledDate.Format(time.DateOnly), err)
			continue
		}
		entry.Status = QueueStatusCompleted
		completed++
	}

	d.mu.Lock()
	for n, i := range pending {
		d.queue[i] = snapshot[n]
	}
	d.saveQueueLocked()
	d.mu.Unlock()

	return completed
}

// Entry returns a copy of one schedule entry.
func (d *Daemon) Entry(id string) (ScheduleEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return ScheduleEntry{}, false
	}
	return *e, true
}

// ScheduledWorkflows returns a copy of every schedule entry keyed by
// workflow id.
func (d *Daemon) ScheduledWorkflows() map[string]ScheduleEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]ScheduleEntry, len(d.entries))
	for id, e := range d.entries {
		out[id] = *e
	}
	return out
}

// Queue returns a copy of the backfill queue.
func (d *Daemon) Queue() []QueueEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]QueueEntry, len(d.queue))
	copy(out, d.queue)
	return out
}

func (d *Daemon) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// saveStateLocked persists the schedule registry. Persistence failures
// are logged and scheduling continues on the in-memory state.
func (d *Daemon) saveStateLocked() {
	st := daemonState{
		Running:   d.running,
		Workflows: d.entries,
		UpdatedAt: d.now(),
	}
	if err := d.stateFile.Save(st); err != nil {
		log.Errorf("scheduler state not persisted: %v", err)
	}
}

func (d *Daemon) saveQueueLocked() {
	q := d.queue
	if q == nil {
		q = []QueueEntry{}
	}
	if err := d.queueFile.Save(q); err != nil {
		log.Errorf("execution queue not persisted: %v", err)
	}
}
