package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sand8080/gantry/task"
)

// DefaultWorkers bounds per-layer concurrency when Executor.Workers is
// not set.
const DefaultWorkers = 4

// Executor runs a graph layer by layer. Tasks inside a layer never depend
// on each other and run concurrently on a bounded worker pool; the next
// layer starts only after every task of the previous one reached a
// terminal status.
type Executor struct {
	// Workers caps the number of tasks running at the same time within
	// a layer. Zero or negative means DefaultWorkers.
	Workers int
}

// Run executes the graph and returns the aggregate result. The result is
// also appended to the graph history. A graph that fails validation
// produces a failed result without executing a single task.
func (e *Executor) Run(ctx context.Context, g *Graph) *RunResult {
	res := &RunResult{
		RunID:     uuid.NewString(),
		GraphID:   g.ID,
		StartTime: time.Now(),
		Tasks:     make(map[string]*task.Result),
	}
	log.Infof("run %s: starting graph %q with %d tasks", res.RunID, g.ID, g.Len())

	layers, err := e.prepare(g)
	if err != nil {
		res.Status = task.StatusFailed
		res.Error = err.Error()
		res.EndTime = time.Now()
		res.Duration = res.EndTime.Sub(res.StartTime)
		g.appendHistory(res)
		log.Errorf("run %s: graph %q rejected: %v", res.RunID, g.ID, err)
		return res
	}

	for _, layer := range layers {
		e.runLayer(ctx, g, layer, res)
	}

	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.finalize()
	g.appendHistory(res)
	log.Infof("run %s: graph %q finished %s, %d completed, %d failed",
		res.RunID, g.ID, res.Status, res.TasksCompleted, res.TasksFailed)
	return res
}

func (e *Executor) prepare(g *Graph) ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	layers, err := g.Layers()
	if err != nil {
		return nil, err
	}
	g.reset()
	return layers, nil
}

func (e *Executor) runLayer(ctx context.Context, g *Graph, layer []string, res *RunResult) {
	// Gating first: a task whose dependency did not succeed is finalized
	// without invoking its handler. Dependencies live in earlier layers,
	// so their results are already recorded.
	var runnable []*task.Task
	for _, id := range layer {
		t, _ := g.Task(id)
		if dep, blocked := blockingDependency(res, t); blocked {
			r := upstreamFailed(t, dep)
			res.Tasks[t.ID] = r
			log.Warnf("run %s: task %q not executed, dependency %q did not succeed",
				res.RunID, t.ID, dep)
			continue
		}
		runnable = append(runnable, t)
	}

	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var mu sync.Mutex
	var grp errgroup.Group
	grp.SetLimit(workers)
	for _, t := range runnable {
		t := t // per-iteration copy for the closure, go directive < 1.22
		grp.Go(func() error {
			r := e.runTask(ctx, t, res.RunID)
			mu.Lock()
			res.Tasks[t.ID] = r
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()
}

// runTask executes a task with its retry policy: after a failed attempt
// up to Retries more follow, separated by RetryDelay. The delay blocks
// only this task's worker, never the rest of the layer.
func (e *Executor) runTask(ctx context.Context, t *task.Task, runID string) *task.Result {
	attempts := t.Retries + 1
	var res *task.Result
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Debugf("run %s: task %q attempt %d/%d", runID, t.ID, attempt, attempts)
		res = t.Execute(ctx)
		res.Attempts = attempt
		if res.Status == task.StatusSuccess {
			break
		}
		log.Warnf("run %s: task %q attempt %d/%d ended %s: %s",
			runID, t.ID, attempt, attempts, res.Status, res.Error)
		if attempt < attempts && t.RetryDelay > 0 {
			select {
			case <-time.After(t.RetryDelay):
			case <-ctx.Done():
				return res
			}
		}
	}
	if t.SLA > 0 && res.Duration > t.SLA {
		log.Warnf("run %s: task %q exceeded SLA of %s, took %s",
			runID, t.ID, t.SLA, res.Duration)
	}
	return res
}

// blockingDependency returns the first dependency of t whose result in the
// current run is not a success.
func blockingDependency(res *RunResult, t *task.Task) (string, bool) {
	for _, dep := range t.DependsOn {
		r, ok := res.Tasks[dep]
		if !ok || !r.Status.Successful() {
			return dep, true
		}
	}
	return "", false
}

func upstreamFailed(t *task.Task, dep string) *task.Result {
	now := time.Now()
	r := &task.Result{
		TaskID:    t.ID,
		Status:    task.StatusUpstreamFailed,
		StartTime: now,
		EndTime:   now,
		Error:     fmt.Sprintf("dependency %q did not succeed", dep),
	}
	t.Status = task.StatusUpstreamFailed
	t.Result = r
	return r
}
