package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateTask reports an Add of a task id already present in the graph.
var ErrDuplicateTask = errors.New("duplicate task id")

// UnknownDependencyError reports a depends_on edge referring to a task
// that is not part of the graph.
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DependencyID)
}

// CycleError reports a dependency cycle. Cycle holds the task ids along
// the cycle with the entry task repeated at the end.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return "dependency cycle"
	}
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}
