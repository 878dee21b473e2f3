package persistence

import (
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"crm_server/core/domain"
	"crm_server/pkg/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestEmployeeRowConversion(t *testing.T) {
	perf, conf, off := 82.5, 71, false
	tests := []domain.Employee{
		{
			ID: "e1", Name: "Alice", Email: "alice@corp.com", RoleTitle: "AE",
			Skills: []string{"negotiation"}, ExperienceYears: 4,
			PerformanceScore: &perf, AllocatedDepartment: domain.DepartmentSales, AllocationConfidence: &conf,
			Available: &off,
		},
		{ID: "e2", Name: "Bob", Skills: []string{}},
	}
	for _, e := range tests {
		row := employeeRowFrom(e)
		if got := row.toDomain(); !reflect.DeepEqual(got, e) {
			t.Errorf("round trip = %+v, want %+v", got, e)
		}
	}

	unallocated := employeeRowFrom(domain.Employee{ID: "e3"})
	if unallocated.AllocatedDepartment.Valid || unallocated.PerformanceScore.Valid || unallocated.Available.Valid || unallocated.Skills == nil {
		t.Errorf("row = %+v, want NULL allocation and performance, empty skills", unallocated)
	}
}

func TestTaskRowConversion(t *testing.T) {
	tests := []struct {
		name string
		task domain.Task
		want domain.TaskStatus
	}{
		{"assigned", domain.Task{ID: "t1", Title: "Call back", Status: domain.TaskStatusAssigned, AssignedTo: "e1", AssignedName: "Alice"}, domain.TaskStatusAssigned},
		{"blank status stored as open", domain.Task{ID: "t2", Title: "Send deck"}, domain.TaskStatusOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := taskRowFrom(tt.task)
			got := row.toDomain()
			if got.Status != tt.want {
				t.Errorf("status = %q, want %q", got.Status, tt.want)
			}
			got.Status = tt.task.Status
			if !reflect.DeepEqual(got, tt.task) {
				t.Errorf("round trip = %+v, want %+v", got, tt.task)
			}
		})
	}
}

func TestMessageRowConversion(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := domain.RawMessage{ExternalID: "m1", Sender: "jane@acme.com", Body: "hi", Timestamp: at, Role: domain.RoleCustomer}
	row := messageRowFrom(m)
	if got := row.toDomain(); !reflect.DeepEqual(got, m) {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{sql.ErrNoRows, apperr.CodeNotFound},
		{&pq.Error{Code: "23505"}, apperr.CodeConflict},
		{&pgconn.PgError{Code: "23505"}, apperr.CodeConflict},
		{errors.New("connection reset"), apperr.CodeDatabaseError},
	}
	for _, tt := range tests {
		if got := translate("employee", tt.err); !apperr.IsCode(got, tt.code) {
			t.Errorf("translate(%v) = %v, want %s", tt.err, got, tt.code)
		}
	}
	if translate("x", nil) != nil {
		t.Error("translate(nil) must be nil")
	}
}
