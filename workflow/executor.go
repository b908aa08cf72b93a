package workflow

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sand8080/gantry/graph"
	"github.com/sand8080/gantry/runner"
	"github.com/sand8080/gantry/store"
	"github.com/sand8080/gantry/task"
)

// Executor turns workflow definitions into dependency graphs and runs
// them, recording every run in a persistent history.
type Executor struct {
	runner  runner.Runner
	history *store.ExecutionLog
	workers int
}

// NewExecutor creates an executor running task commands through r.
// History may be nil to keep runs unrecorded. Workers bounds per-layer
// task concurrency, zero picks the graph executor default.
func NewExecutor(r runner.Runner, history *store.ExecutionLog, workers int) *Executor {
	return &Executor{runner: r, history: history, workers: workers}
}

// taskHandler binds one task command to the runner executing it.
type taskHandler struct {
	run  runner.Runner
	spec runner.Spec
}

func (h taskHandler) Execute(ctx context.Context) (int, error) {
	return h.run.Run(ctx, h.spec)
}

// Build translates a definition into an executable graph: one graph task
// per document task, handlers bound to the executor's runner, seconds
// widened to durations. The returned graph is validated.
func (e *Executor) Build(def *Definition) (*graph.Graph, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	g := graph.New(def.Name, def.Description)
	for _, td := range def.Tasks {
		spec := task.Spec{
			ID:         td.Name,
			DependsOn:  td.DependsOn,
			Retries:    td.Retries,
			RetryDelay: time.Duration(td.RetryDelay) * time.Second,
			Timeout:    time.Duration(td.Timeout) * time.Second,
			SLA:        time.Duration(td.SLA) * time.Second,
		}
		h := taskHandler{
			run: e.runner,
			spec: runner.Spec{
				Image:   td.Image,
				Command: []string(td.Command),
			},
		}
		if err := g.Add(task.New(spec, h)); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Run builds and executes the workflow, appending the outcome to the
// history. History write failures are logged and never fail the run.
func (e *Executor) Run(ctx context.Context, def *Definition) (*graph.RunResult, error) {
	g, err := e.Build(def)
	if err != nil {
		return nil, err
	}

	res := (&graph.Executor{Workers: e.workers}).Run(ctx, g)
	if e.history != nil {
		rec := store.ExecutionRecord{
			Run:        res,
			WorkflowID: def.Name,
			RecordedAt: time.Now(),
		}
		if err := e.history.Append(rec); err != nil {
			log.Errorf("workflow %q: recording run %s failed: %v", def.Name, res.RunID, err)
		}
	}
	return res, nil
}

// History returns recent runs of a workflow, most recent first, at most
// n of them. N <= 0 means all recorded.
func (e *Executor) History(workflowID string, n int) ([]store.ExecutionRecord, error) {
	if e.history == nil {
		return nil, nil
	}
	return e.history.ForWorkflow(workflowID, n)
}
