package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/core/service/intake"
	"crm_server/pkg/logger"

	"github.com/goccy/go-json"
)

// TaskFile is a TaskRepository over a JSON array of task records.
type TaskFile struct {
	path string
	mu   sync.Mutex
}

var _ out.TaskRepository = (*TaskFile)(nil)

// NewTaskFile creates a task list backed by path. A missing file is an empty list.
func NewTaskFile(path string) *TaskFile {
	return &TaskFile{path: path}
}

func (f *TaskFile) ListTasks(ctx context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks %s: %w", f.path, err)
	}

	batch, err := intake.DecodeTasks(data)
	if err != nil {
		return nil, fmt.Errorf("decode tasks %s: %w", f.path, err)
	}
	for _, rej := range batch.Rejected {
		logger.WithField("path", f.path).WithError(rej).Warn("[TaskFile] skipping task record")
	}
	return batch.Tasks, nil
}

// SaveTasks patches status and assignee of the matching records and leaves
// every other field, and every rejected record, untouched.
func (f *TaskFile) SaveTasks(ctx context.Context, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tasks %s: %w", f.path, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode tasks %s: %w", f.path, err)
	}

	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for i, raw := range records {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		var id intake.ID
		if err := json.Unmarshal(fields["id"], &id); err != nil {
			continue
		}
		t, ok := byID[string(id)]
		if !ok {
			continue
		}
		fields["status"] = mustQuote(string(t.Status))
		if t.IsAssigned() {
			fields["assigned_to"] = mustQuote(t.AssignedTo)
			fields["assigned_name"] = mustQuote(t.AssignedName)
		}
		patched, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", id, err)
		}
		records[i] = patched
	}

	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return writeAtomic(f.path, encoded)
}
