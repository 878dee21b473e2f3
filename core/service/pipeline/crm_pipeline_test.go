package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/pkg/apperr"

	"github.com/goccy/go-json"
)

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	messages []domain.RawMessage
	err      error
	block    chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context) ([]domain.RawMessage, error) {
	if f.block != nil {
		<-f.block
	}
	return f.messages, f.err
}

type memRoster struct {
	mu        sync.Mutex
	employees []domain.Employee
	saves     int
	listErr   error
}

func (m *memRoster) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	res := make([]domain.Employee, len(m.employees))
	for i, e := range m.employees {
		res[i] = e.Clone()
	}
	return res, nil
}

func (m *memRoster) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.employees {
		if e.ID == id {
			c := e.Clone()
			return &c, nil
		}
	}
	return nil, apperr.NotFound("employee")
}

func (m *memRoster) SaveAllocations(ctx context.Context, employees []domain.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	for _, u := range employees {
		for i := range m.employees {
			if m.employees[i].ID == u.ID {
				m.employees[i] = u.Clone()
			}
		}
	}
	return nil
}

type memTasks struct {
	mu      sync.Mutex
	tasks   []domain.Task
	saves   int
	saveErr error
}

func (m *memTasks) ListTasks(ctx context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Task(nil), m.tasks...), nil
}

func (m *memTasks) SaveTasks(ctx context.Context, tasks []domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.tasks = append([]domain.Task(nil), tasks...)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = b
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []out.PipelineEvent
}

func (r *recordingEvents) Publish(ctx context.Context, e *out.PipelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ts []string
	for _, e := range r.events {
		ts = append(ts, e.Type)
	}
	return ts
}

type failingGraph struct{ calls int }

func (f *failingGraph) SyncClientWork(ctx context.Context, runID string, items []domain.ClientWorkItem) error {
	f.calls++
	return errors.New("neo4j unavailable")
}

func ptr[T any](v T) *T { return &v }

func fixtures() (*fakeSource, *memRoster) {
	at := func(m int) time.Time { return fixedNow.Add(time.Duration(m) * time.Minute) }
	src := &fakeSource{messages: []domain.RawMessage{
		{Sender: "Jane Doe <jane@acme.com>", Body: "Can we schedule a demo next week?", Timestamp: at(0), Role: domain.RoleCustomer},
		{Sender: "me@corp.com", Body: "Sure, Tuesday works.", Timestamp: at(5), Role: domain.RoleInternal},
		{Sender: "bob@beta.io", Body: "We have an issue with login", Timestamp: at(9), Role: domain.RoleCustomer},
	}}
	roster := &memRoster{employees: []domain.Employee{
		{ID: "e1", Name: "Alice", Skills: []string{"negotiation", "communication"}, ExperienceYears: 5, PerformanceScore: ptr(80.0)},
		{ID: "e2", Name: "Bob", Skills: []string{"troubleshooting", "technical support"}, ExperienceYears: 6, PerformanceScore: ptr(70.0)},
	}}
	return src, roster
}

func TestRunProducesSnapshot(t *testing.T) {
	src, roster := fixtures()
	cache := &memCache{}
	events := &recordingEvents{}
	graph := &failingGraph{}
	svc := New(Deps{
		Source: src, Employees: roster, Cache: cache, Events: events, Graph: graph,
		Lead: LeadContext{EstimatedValueUSD: 150000, Industry: "Tech"},
		Now:  func() time.Time { return fixedNow },
	})

	if _, err := svc.Snapshot(); !apperr.IsCode(err, apperr.CodeNotReady) {
		t.Fatalf("Snapshot before run err = %v, want NOT_READY", err)
	}

	snap, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st := svc.Status(); st.State != StateReady || st.Runs != 1 || st.RunID != snap.RunID {
		t.Errorf("status = %+v", st)
	}

	if len(snap.Messages) != 3 || snap.Messages[0].WorkSummary != "Product demo" || snap.Messages[2].Department != domain.DepartmentSupport {
		t.Errorf("messages = %+v", snap.Messages)
	}
	if len(snap.ClientWork) != 2 {
		t.Fatalf("client work = %+v", snap.ClientWork)
	}
	if snap.ClientWork[1].AssignedTo != "Bob" || snap.ClientWork[1].Department != domain.DepartmentSupport {
		t.Errorf("bob's ticket = %+v", snap.ClientWork[1])
	}
	if roster.saves != 1 || !roster.employees[0].IsAllocated() {
		t.Errorf("roster not auto-allocated: saves=%d %+v", roster.saves, roster.employees)
	}
	if snap.Distribution.Total() != 2 {
		t.Errorf("distribution = %+v", snap.Distribution)
	}
	if snap.Metrics.CustomerMessages != 2 || snap.Metrics.TeamMessages != 1 {
		t.Errorf("metrics = %+v", snap.Metrics)
	}
	if snap.Lead.Score != 60 || snap.Lead.CloseProbability != 3 {
		t.Errorf("lead = %d/%d, want 60/3", snap.Lead.Score, snap.Lead.CloseProbability)
	}
	if want := "opportunity with " + snap.ClientWork[0].ClientEmail + " "; !strings.Contains(snap.Lead.SummaryText, want) {
		t.Errorf("summary %q does not name the first client", snap.Lead.SummaryText)
	}
	if !snap.Report.GeneratedAt.Equal(fixedNow) {
		t.Errorf("report generated at %v", snap.Report.GeneratedAt)
	}

	if graph.calls != 1 {
		t.Errorf("graph calls = %d, want 1 despite failure", graph.calls)
	}
	if got := events.types(); len(got) != 1 || got[0] != out.EventPipelineCompleted {
		t.Errorf("events = %v", got)
	}

	restored := New(Deps{Source: src, Employees: roster, Cache: cache})
	ok, err := restored.Restore(context.Background())
	if err != nil || !ok {
		t.Fatalf("Restore = %v, %v", ok, err)
	}
	again, _ := restored.Snapshot()
	if again.RunID != snap.RunID || len(again.ClientWork) != 2 {
		t.Errorf("restored snapshot = %+v", again)
	}
}

func TestRunSourceFailure(t *testing.T) {
	src, roster := fixtures()
	src.err = errors.New("gmail: 503")
	events := &recordingEvents{}
	svc := New(Deps{Source: src, Employees: roster, Events: events})

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded, want error")
	}
	st := svc.Status()
	if st.State != StateFailed || st.Failures != 1 || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}
	if got := events.types(); len(got) != 1 || got[0] != out.EventPipelineFailed {
		t.Errorf("events = %v", got)
	}
}

func TestRunRosterFailure(t *testing.T) {
	src, roster := fixtures()
	roster.listErr = errors.New("db down")
	svc := New(Deps{Source: src, Employees: roster})
	if _, err := svc.Run(context.Background()); err == nil || svc.Status().State != StateFailed {
		t.Errorf("err = %v, state = %s", err, svc.Status().State)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	src, roster := fixtures()
	src.block = make(chan struct{})
	svc := New(Deps{Source: src, Employees: roster})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for svc.Status().State != StateFetching {
		select {
		case <-deadline:
			t.Fatal("first run never started fetching")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := svc.Run(context.Background()); !IsRunInProgress(err) {
		t.Errorf("second Run err = %v, want ErrRunInProgress", err)
	}
	close(src.block)
	if err := <-done; err != nil {
		t.Errorf("first Run: %v", err)
	}
}

func TestEmptyInputsReachReady(t *testing.T) {
	svc := New(Deps{Source: &fakeSource{}, Employees: &memRoster{}})
	snap, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(snap.ClientWork) != 0 || len(snap.Distribution) != 0 || snap.Lead.CloseProbability != 60 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestAllocateOneMatchesFullAllocate(t *testing.T) {
	src, roster := fixtures()
	svc := New(Deps{Source: src, Employees: roster})
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	roster.employees[1].Skills = []string{"content", "analytics", "seo"}
	one, err := svc.AllocateOne(context.Background(), "e2")
	if err != nil {
		t.Fatalf("AllocateOne: %v", err)
	}

	all, dist, err := svc.Allocate(context.Background())
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if all[1].AllocatedDepartment != one.AllocatedDepartment || *all[1].AllocationConfidence != *one.AllocationConfidence {
		t.Errorf("AllocateOne = %s/%d, full = %s/%d",
			one.AllocatedDepartment, *one.AllocationConfidence, all[1].AllocatedDepartment, *all[1].AllocationConfidence)
	}
	if dist.Total() != 2 {
		t.Errorf("distribution total = %d", dist.Total())
	}

	snap, _ := svc.Snapshot()
	if snap.Employees[1].AllocatedDepartment != one.AllocatedDepartment {
		t.Errorf("snapshot roster not refreshed: %+v", snap.Employees[1])
	}

	if _, err := svc.AllocateOne(context.Background(), "missing"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("AllocateOne(missing) err = %v", err)
	}
}

func TestLeadInfo(t *testing.T) {
	src, roster := fixtures()
	svc := New(Deps{Source: src, Employees: roster, Lead: LeadContext{Industry: "Retail", ProjectName: "Acme"}})
	if _, err := svc.LeadInfo(); err == nil {
		t.Error("LeadInfo before run should fail")
	}
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	info, err := svc.LeadInfo()
	if err != nil || info.CustomerMessages != 2 || info.UniqueClients != 2 || info.Industry != "Retail" {
		t.Errorf("LeadInfo = %+v, %v", info, err)
	}
}

func TestRunAllocatesTasks(t *testing.T) {
	tests := []struct {
		name       string
		saveErr    error
		wantEvents []string
		wantOwners []string
	}{
		{
			name:       "assigns open tasks",
			wantEvents: []string{out.EventTasksAllocated, out.EventPipelineCompleted},
			wantOwners: []string{"e1", "e2", "e1"},
		},
		{
			name:       "save failure keeps the run ready",
			saveErr:    errors.New("disk full"),
			wantEvents: []string{out.EventPipelineCompleted},
			wantOwners: []string{"", "", ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, roster := fixtures()
			tasks := &memTasks{saveErr: tt.saveErr, tasks: []domain.Task{
				{ID: "t1", Status: domain.TaskStatusOpen},
				{ID: "t2", Status: domain.TaskStatusOpen},
				{ID: "t3", Status: domain.TaskStatusOpen},
			}}
			events := &recordingEvents{}
			svc := New(Deps{Source: src, Employees: roster, Tasks: tasks, Events: events})

			if _, err := svc.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if svc.Status().State != StateReady {
				t.Errorf("state = %s", svc.Status().State)
			}
			got, err := svc.Tasks(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			for i, want := range tt.wantOwners {
				if got[i].AssignedTo != want {
					t.Errorf("task %s owner = %q, want %q", got[i].ID, got[i].AssignedTo, want)
				}
			}
			if types := events.types(); strings.Join(types, ",") != strings.Join(tt.wantEvents, ",") {
				t.Errorf("events = %v, want %v", types, tt.wantEvents)
			}
		})
	}
}

func TestAllocateTasks(t *testing.T) {
	_, roster := fixtures()
	roster.employees[0].Available = ptr(false)
	tasks := &memTasks{tasks: []domain.Task{
		{ID: "t1", Status: domain.TaskStatusAssigned, AssignedTo: "e1", AssignedName: "Alice"},
		{ID: "t2", Status: domain.TaskStatusOpen},
	}}
	svc := New(Deps{Source: &fakeSource{}, Employees: roster, Tasks: tasks})

	got, n, err := svc.AllocateTasks(context.Background())
	if err != nil {
		t.Fatalf("AllocateTasks: %v", err)
	}
	if n != 1 || got[0].AssignedTo != "e1" || got[1].AssignedTo != "e2" || got[1].AssignedName != "Bob" {
		t.Errorf("AllocateTasks = %+v, %d", got, n)
	}

	_, n, err = svc.AllocateTasks(context.Background())
	if err != nil || n != 0 || tasks.saves != 1 {
		t.Errorf("second AllocateTasks = %d, %v; saves = %d", n, err, tasks.saves)
	}

	bare := New(Deps{Source: &fakeSource{}, Employees: roster})
	if _, _, err := bare.AllocateTasks(context.Background()); !apperr.IsCode(err, apperr.CodeNotReady) {
		t.Errorf("AllocateTasks without a task list err = %v", err)
	}
	if _, err := bare.Tasks(context.Background()); !apperr.IsCode(err, apperr.CodeNotReady) {
		t.Errorf("Tasks without a task list err = %v", err)
	}
}
