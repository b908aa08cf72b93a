// Package graph builds dependency graphs of tasks and executes them
// layer by layer with bounded concurrency.
package graph

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sand8080/gantry/task"
)

// Graph describes a set of tasks connected by depends_on edges. Tasks may
// be added in any order; edges are resolved against the full set during
// Validate.
type Graph struct {
	mu sync.RWMutex

	ID          string
	Description string

	tasks   map[string]*task.Task
	order   []string
	history []*RunResult
}

// New creates an empty graph.
func New(id, description string) *Graph {
	return &Graph{
		ID:          id,
		Description: description,
		tasks:       make(map[string]*task.Task),
	}
}

// Add adds a task to the graph. Tasks it depends on do not have to be
// present yet.
func (g *Graph) Add(t *task.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.tasks[t.ID]; ok {
		err := fmt.Errorf("graph %q: task %q: %w", g.ID, t.ID, ErrDuplicateTask)
		log.Error(err)
		return err
	}
	g.tasks[t.ID] = t
	g.order = append(g.order, t.ID)
	return nil
}

// Task returns the task with the given id.
func (g *Graph) Task(id string) (*task.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks in insertion order.
func (g *Graph) Tasks() []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*task.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Validate checks that every dependency refers to a task in the graph and
// that the edges form no cycle.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		for _, dep := range g.tasks[id].DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				err := &UnknownDependencyError{TaskID: id, DependencyID: dep}
				log.Errorf("graph %q: %v", g.ID, err)
				return err
			}
		}
	}
	if err := g.checkCycles(); err != nil {
		log.Errorf("graph %q: %v", g.ID, err)
		return err
	}
	return nil
}

// Task color for cycles detection.
type taskColor uint8

const (
	white taskColor = iota
	grey
	black
)

func (g *Graph) checkCycles() error {
	colors := make(map[string]taskColor, len(g.tasks))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		colors[id] = grey
		stack = append(stack, id)
		for _, dep := range g.tasks[id].DependsOn {
			switch colors[dep] {
			case grey:
				return cycleFromStack(stack, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
		return nil
	}

	for _, id := range g.order {
		if colors[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleFromStack cuts the cycle out of the DFS stack, from the first
// occurrence of the repeated task to the top, and closes it.
func cycleFromStack(stack []string, repeated string) *CycleError {
	start := 0
	for i, id := range stack {
		if id == repeated {
			start = i
			break
		}
	}
	cycle := append([]string{}, stack[start:]...)
	cycle = append(cycle, repeated)
	return &CycleError{Cycle: cycle}
}

// Layers groups task ids into execution layers with Kahn's algorithm.
// Every task lands in a strictly deeper layer than all of its
// dependencies, so tasks sharing a layer never depend on each other.
// Ids inside a layer keep insertion order. Dependencies pointing outside
// the graph are ignored here, Validate reports them.
func (g *Graph) Layers() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.layers()
}

func (g *Graph) layers() ([][]string, error) {
	indegree := make(map[string]int, len(g.tasks))
	dependents := make(map[string][]string, len(g.tasks))
	pos := make(map[string]int, len(g.order))

	for i, id := range g.order {
		pos[id] = i
		indegree[id] = 0
	}
	for _, id := range g.order {
		for _, dep := range g.tasks[id].DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var current []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			current = append(current, id)
		}
	}

	var layers [][]string
	placed := 0
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool { return pos[current[i]] < pos[current[j]] })
		layers = append(layers, current)
		placed += len(current)

		var next []string
		for _, id := range current {
			for _, child := range dependents[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		current = next
	}

	if placed != len(g.tasks) {
		if err := g.checkCycles(); err != nil {
			return nil, err
		}
		return nil, &CycleError{}
	}
	return layers, nil
}

// History returns recorded run results, most recent first.
func (g *Graph) History() []*RunResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*RunResult, len(g.history))
	for i, r := range g.history {
		out[len(g.history)-1-i] = r
	}
	return out
}

func (g *Graph) appendHistory(r *RunResult) {
	g.mu.Lock()
	g.history = append(g.history, r)
	g.mu.Unlock()
}

// reset returns every task to pending before a new run.
func (g *Graph) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tasks {
		t.Status = task.StatusPending
		t.Result = nil
	}
}
