// Package file keeps the roster and the message archive as JSON files.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"crm_server/core/domain"
	"crm_server/core/service/intake"
	"crm_server/pkg/apperr"
	"crm_server/pkg/logger"

	"github.com/goccy/go-json"
)

// RosterFile is an EmployeeRepository over a JSON array of employee records.
type RosterFile struct {
	path string
	mu   sync.Mutex
}

// NewRosterFile creates a roster backed by path. A missing file is an empty roster.
func NewRosterFile(path string) *RosterFile {
	return &RosterFile{path: path}
}

func (r *RosterFile) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *RosterFile) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	employees, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range employees {
		if employees[i].ID == id {
			return &employees[i], nil
		}
	}
	return nil, apperr.NotFound("employee").WithDetail("id", id)
}

// SaveAllocations patches the allocation fields of the matching records and
// leaves every other field, and every rejected record, untouched.
func (r *RosterFile) SaveAllocations(ctx context.Context, employees []domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.readRecords()
	if err != nil {
		return err
	}

	byID := make(map[string]domain.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
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
		e, ok := byID[string(id)]
		if !ok {
			continue
		}
		fields["allocated_department"] = mustQuote(string(e.AllocatedDepartment))
		if e.AllocationConfidence != nil {
			fields["allocation_confidence"] = json.RawMessage(strconv.Itoa(*e.AllocationConfidence))
		}
		patched, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode employee %s: %w", id, err)
		}
		records[i] = patched
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	return writeAtomic(r.path, data)
}

func (r *RosterFile) load() ([]domain.Employee, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Employee{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", r.path, err)
	}

	batch, err := intake.DecodeEmployees(data)
	if err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", r.path, err)
	}
	for _, rej := range batch.Rejected {
		logger.WithField("path", r.path).WithError(rej).Warn("[RosterFile] skipping employee record")
	}
	return batch.Employees, nil
}

func (r *RosterFile) readRecords() ([]json.RawMessage, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", r.path, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", r.path, err)
	}
	return records, nil
}

func mustQuote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// writeAtomic replaces path so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	return os.Rename(tmp.Name(), path)
}
