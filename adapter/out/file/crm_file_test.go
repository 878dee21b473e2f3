package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crm_server/core/domain"
	"crm_server/pkg/apperr"
)

const rosterJSON = `[
  {"id": 1, "name": "Alice", "email": "alice@corp.com", "skills": ["negotiation"], "experience_years": 4, "performance_score": 80, "team": "north"},
  {"id": "e2", "name": "Bob", "skills": ["troubleshooting"], "experience_years": 2, "performance_score": null},
  {"id": "e3", "name": "", "experience_years": 1}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRosterFileListAndGet(t *testing.T) {
	r := NewRosterFile(writeFile(t, "employees.json", rosterJSON))
	ctx := context.Background()

	employees, err := r.ListEmployees(ctx)
	if err != nil {
		t.Fatalf("ListEmployees: %v", err)
	}
	if len(employees) != 2 || employees[0].ID != "1" || employees[1].PerformanceScore != nil {
		t.Errorf("employees = %+v", employees)
	}

	bob, err := r.GetEmployee(ctx, "e2")
	if err != nil || bob.Name != "Bob" {
		t.Errorf("GetEmployee = %+v, %v", bob, err)
	}
	if _, err := r.GetEmployee(ctx, "nope"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("GetEmployee(nope) err = %v", err)
	}
}

func TestRosterFileSaveAllocationsPatchesRecords(t *testing.T) {
	path := writeFile(t, "employees.json", rosterJSON)
	r := NewRosterFile(path)
	ctx := context.Background()

	conf := 66
	if err := r.SaveAllocations(ctx, []domain.Employee{
		{ID: "1", AllocatedDepartment: domain.DepartmentSales, AllocationConfidence: &conf},
	}); err != nil {
		t.Fatalf("SaveAllocations: %v", err)
	}

	alice, err := r.GetEmployee(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if alice.AllocatedDepartment != domain.DepartmentSales || *alice.AllocationConfidence != 66 || alice.Email != "alice@corp.com" {
		t.Errorf("alice = %+v", alice)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"team"`) {
		t.Error("unknown fields were dropped")
	}
	if !strings.Contains(string(data), `"e3"`) {
		t.Error("rejected record was dropped")
	}
}

func TestRosterFileMissingIsEmpty(t *testing.T) {
	r := NewRosterFile(filepath.Join(t.TempDir(), "none.json"))
	employees, err := r.ListEmployees(context.Background())
	if err != nil || len(employees) != 0 {
		t.Errorf("ListEmployees = %v, %v", employees, err)
	}
}

func TestMailArchiveRoundTrip(t *testing.T) {
	a := NewMailArchive(filepath.Join(t.TempDir(), "data", "mails.json"))
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	in := []domain.RawMessage{
		{ExternalID: "m1", Sender: "Jane Doe <jane@acme.com>", Subject: "Demo", Body: "demo please", Timestamp: ts, Role: domain.RoleCustomer},
		{ExternalID: "m2", Sender: "me@corp.com", Body: "sure", Timestamp: ts.Add(time.Hour), Role: domain.RoleInternal, Sentiment: domain.SentimentPositive},
	}
	if err := a.SaveMessages(ctx, in); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := a.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	for i := range in {
		if got[i].ExternalID != in[i].ExternalID || got[i].Sender != in[i].Sender || !got[i].Timestamp.Equal(in[i].Timestamp) ||
			got[i].Role != in[i].Role || got[i].Sentiment != in[i].Sentiment {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], in[i])
		}
	}
}

const tasksJSON = `[
  {"id": 1, "title": "Follow up on demo", "client_email": "jane@acme.com", "priority": "high"},
  {"id": "t2", "title": "Send pricing", "status": "assigned", "assigned_to": "e4", "assigned_name": "Sam"},
  {"id": "t3", "title": ""}
]`

func TestTaskFileListAndSave(t *testing.T) {
	path := writeFile(t, "tasks.json", tasksJSON)
	f := NewTaskFile(path)
	ctx := context.Background()

	tasks, err := f.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "1" || tasks[0].Status != domain.TaskStatusOpen || !tasks[1].IsAssigned() {
		t.Fatalf("tasks = %+v", tasks)
	}

	tasks[0].AssignedTo, tasks[0].AssignedName, tasks[0].Status = "e1", "Priya", domain.TaskStatusAssigned
	if err := f.SaveTasks(ctx, tasks[:1]); err != nil {
		t.Fatalf("SaveTasks: %v", err)
	}

	reloaded, err := f.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded[0] != tasks[0] || reloaded[1] != tasks[1] {
		t.Errorf("reloaded = %+v, want %+v", reloaded, tasks)
	}

	data, _ := os.ReadFile(path)
	for _, want := range []string{`"priority"`, `"t3"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("%s was dropped from the file", want)
		}
	}
}

func TestTaskFileMissingIsEmpty(t *testing.T) {
	f := NewTaskFile(filepath.Join(t.TempDir(), "none.json"))
	ctx := context.Background()

	tasks, err := f.ListTasks(ctx)
	if err != nil || len(tasks) != 0 {
		t.Errorf("ListTasks = %v, %v", tasks, err)
	}
	if err := f.SaveTasks(ctx, []domain.Task{{ID: "t1"}}); err != nil {
		t.Errorf("SaveTasks on missing file: %v", err)
	}
}
