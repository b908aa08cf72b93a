package store

import (
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/sand8080/gantry/graph"
)

// ExecutionRecord is one persisted workflow run. ScheduledDate is zero
// for runs that were not produced by a schedule or a backfill.
type ExecutionRecord struct {
	Run           *graph.RunResult `json:"run"`
	WorkflowID    string           `json:"workflow_id"`
	ScheduledDate time.Time        `json:"scheduled_date"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

// ExecutionLog is a capped, file backed log of workflow runs. Once the
// cap is reached the oldest records give way, the file never holds more
// than limit entries.
type ExecutionLog struct {
	mu    sync.Mutex
	file  *File
	limit int
}

// NewExecutionLog returns a log at path keeping at most limit records.
// Limit <= 0 disables the cap.
func NewExecutionLog(path string, limit int) *ExecutionLog {
	return &ExecutionLog{file: NewFile(path), limit: limit}
}

// Append adds a record, dropping the oldest ones beyond the cap.
func (l *ExecutionLog) Append(rec ExecutionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadAll()
	if err != nil {
		return err
	}
	records = append(records, rec)
	if l.limit > 0 && len(records) > l.limit {
		records = records[len(records)-l.limit:]
	}
	return l.file.Save(records)
}

// All returns every record in append order.
func (l *ExecutionLog) All() ([]ExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAll()
}

// ForWorkflow returns the records of one workflow, most recent first, at
// most n of them. N <= 0 means all.
func (l *ExecutionLog) ForWorkflow(id string, n int) ([]ExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadAll()
	if err != nil {
		return nil, err
	}
	var out []ExecutionRecord
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].WorkflowID != id {
			continue
		}
		out = append(out, records[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (l *ExecutionLog) loadAll() ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	if err := l.file.Load(&records); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}
