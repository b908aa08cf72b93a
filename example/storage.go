package example

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sand8080/gantry/task"
)

// Archive is an in-memory report sink.
type Archive struct {
	mu      sync.Mutex
	reports map[string]json.RawMessage
}

func NewArchive() *Archive {
	return &Archive{reports: make(map[string]json.RawMessage)}
}

// Put stores a report under a name, overwriting a previous version.
func (a *Archive) Put(name string, data json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports[name] = data
}

// Get returns a stored report.
func (a *Archive) Get(name string) (json.RawMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.reports[name]
	return data, ok
}

// ArchiveTask stores the fetched report in the archive.
func ArchiveTask(s *Session, a *Archive, name string) *task.Task {
	handler := task.HandlerFunc(func(ctx context.Context) (int, error) {
		data := s.Report()
		if len(data) == 0 {
			return 1, errors.New("no report to archive")
		}
		a.Put(name, data)
		return 0, nil
	})
	return task.New(task.Spec{ID: "archive", DependsOn: []string{"fetch"}}, handler)
}
