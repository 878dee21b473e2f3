package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crm_server/adapter/out/messaging"
	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/core/service/pipeline"
	"crm_server/pkg/apperr"
)

type fakePipeline struct {
	mu          sync.Mutex
	runs        int
	allocations int
	allocated   []string
	runErr      error
	blockRun    bool
}

func (f *fakePipeline) Run(ctx context.Context) (*pipeline.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.blockRun {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &pipeline.Snapshot{RunID: "run-1"}, nil
}

func (f *fakePipeline) Allocate(ctx context.Context) ([]domain.Employee, domain.DepartmentDistribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocations++
	return []domain.Employee{{ID: "1"}, {ID: "2"}}, domain.DepartmentDistribution{}, nil
}

func (f *fakePipeline) AllocateOne(ctx context.Context, id string) (*domain.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "missing" {
		return nil, apperr.NotFound("employee")
	}
	f.allocated = append(f.allocated, id)
	return &domain.Employee{ID: id, AllocatedDepartment: domain.Department("Sales")}, nil
}

type fakeProducer struct {
	runs []*out.PipelineRunJob
	err  error
}

func (f *fakeProducer) PublishPipelineRun(ctx context.Context, job *out.PipelineRunJob) error {
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, job)
	return nil
}

func (f *fakeProducer) PublishAllocate(ctx context.Context, job *out.AllocateJob) error {
	return nil
}

func TestHandlerProcess(t *testing.T) {
	boom := errors.New("source down")

	tests := []struct {
		name    string
		stream  string
		data    string
		runErr  error
		wantErr bool
		check   func(t *testing.T, f *fakePipeline)
	}{
		{
			name:   "pipeline run",
			stream: messaging.StreamPipelineRun,
			data:   `{"job_id":"j1","trigger":"api"}`,
			check: func(t *testing.T, f *fakePipeline) {
				if f.runs != 1 {
					t.Errorf("runs = %d, want 1", f.runs)
				}
			},
		},
		{
			name:   "run in progress is acknowledged",
			stream: messaging.StreamPipelineRun,
			data:   `{"job_id":"j2"}`,
			runErr: pipeline.ErrRunInProgress,
		},
		{
			name:    "run failure is retried",
			stream:  messaging.StreamPipelineRun,
			data:    `{"job_id":"j3"}`,
			runErr:  boom,
			wantErr: true,
		},
		{
			name:   "allocate all",
			stream: messaging.StreamAllocate,
			data:   `{"job_id":"j4"}`,
			check: func(t *testing.T, f *fakePipeline) {
				if f.allocations != 1 {
					t.Errorf("allocations = %d, want 1", f.allocations)
				}
			},
		},
		{
			name:   "allocate one",
			stream: messaging.StreamAllocate,
			data:   `{"job_id":"j5","employee_id":"7"}`,
			check: func(t *testing.T, f *fakePipeline) {
				if len(f.allocated) != 1 || f.allocated[0] != "7" {
					t.Errorf("allocated = %v, want [7]", f.allocated)
				}
			},
		},
		{
			name:   "unknown employee is dropped",
			stream: messaging.StreamAllocate,
			data:   `{"job_id":"j6","employee_id":"missing"}`,
		},
		{
			name:   "malformed payload is dropped",
			stream: messaging.StreamAllocate,
			data:   `{not json`,
			check: func(t *testing.T, f *fakePipeline) {
				if f.allocations != 0 || len(f.allocated) != 0 {
					t.Error("malformed job must not allocate")
				}
			},
		},
		{
			name:   "unknown stream is dropped",
			stream: "crm:other",
			data:   `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakePipeline{runErr: tt.runErr}
			h := NewHandler(f)

			err := h.Process(context.Background(), NewJob(tt.stream, []byte(tt.data)))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Process() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func newTestPool(t *testing.T, f *fakePipeline) *Pool {
	t.Helper()
	cfg := DefaultPoolConfig()
	cfg.MetricsInterval = 0
	p := NewPool(NewHandler(f), cfg, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

func TestPoolHandleWaitsForResult(t *testing.T) {
	f := &fakePipeline{}
	p := newTestPool(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Handle(ctx, messaging.StreamAllocate, []byte(`{"employee_id":"3"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.allocated) != 1 {
		t.Fatalf("job did not run before Handle returned")
	}

	f.runErr = errors.New("boom")
	if err := p.Handle(ctx, messaging.StreamPipelineRun, []byte(`{}`)); err == nil {
		t.Fatal("expected the run error to reach the consumer")
	}

	m := p.Metrics()
	if m.JobsProcessed != 1 || m.JobsFailed != 1 {
		t.Errorf("metrics = %+v, want 1 processed and 1 failed", m)
	}
}

func TestPoolHandleConcurrentConsumers(t *testing.T) {
	f := &fakePipeline{}
	cfg := DefaultPoolConfig()
	cfg.Workers = 4
	cfg.MetricsInterval = 0
	p := NewPool(NewHandler(f), cfg, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const consumers, perConsumer = 8, 200
	var wg sync.WaitGroup
	errs := make(chan error, consumers*perConsumer)
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perConsumer; i++ {
				if err := p.Handle(ctx, messaging.StreamAllocate, []byte(`{"employee_id":"e"}`)); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("Handle: %v", err)
	}
	f.mu.Lock()
	got := len(f.allocated)
	f.mu.Unlock()
	if got != consumers*perConsumer {
		t.Errorf("allocated = %d, want %d", got, consumers*perConsumer)
	}
	if m := p.Metrics(); m.JobsProcessed != consumers*perConsumer {
		t.Errorf("processed = %d, want %d", m.JobsProcessed, consumers*perConsumer)
	}
}

func TestPoolJobTimeout(t *testing.T) {
	f := &fakePipeline{blockRun: true}
	cfg := DefaultPoolConfig()
	cfg.MetricsInterval = 0
	cfg.JobTimeoutByKind[messaging.StreamPipelineRun] = 20 * time.Millisecond
	p := NewPool(NewHandler(f), cfg, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := p.Handle(ctx, messaging.StreamPipelineRun, []byte(`{}`))
	if !apperr.IsCode(err, apperr.CodeTimeout) {
		t.Fatalf("Handle = %v, want TIMEOUT", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error must keep the deadline cause")
	}
	if m := p.Metrics(); m.JobsTimedOut != 1 || m.JobsFailed != 1 {
		t.Errorf("metrics = %+v, want 1 timed out", m)
	}
}

func TestPoolHandleAfterStop(t *testing.T) {
	p := NewPool(NewHandler(&fakePipeline{}), nil, zerolog.Nop())
	if err := p.Handle(context.Background(), messaging.StreamAllocate, []byte(`{}`)); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Handle before Start = %v, want ErrPoolStopped", err)
	}
}

func TestPoolTimeoutFor(t *testing.T) {
	p := NewPool(NewHandler(&fakePipeline{}), nil, zerolog.Nop())
	if got := p.timeoutFor(messaging.StreamPipelineRun); got != 5*time.Minute {
		t.Errorf("pipeline timeout = %s", got)
	}
	if got := p.timeoutFor("crm:other"); got != time.Minute {
		t.Errorf("default timeout = %s", got)
	}
}

func TestSchedulerTick(t *testing.T) {
	t.Run("publishes when a producer is set", func(t *testing.T) {
		f := &fakePipeline{}
		prod := &fakeProducer{}
		s := NewScheduler(f, prod, time.Minute)
		s.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

		s.Tick(context.Background())

		if len(prod.runs) != 1 {
			t.Fatalf("published %d jobs, want 1", len(prod.runs))
		}
		if prod.runs[0].Trigger != "schedule" || prod.runs[0].JobID == "" {
			t.Errorf("job = %+v", prod.runs[0])
		}
		if f.runs != 0 {
			t.Error("pipeline must not run in process when a producer is set")
		}
	})

	t.Run("runs in process without a producer", func(t *testing.T) {
		f := &fakePipeline{}
		s := NewScheduler(f, nil, time.Minute)
		s.Tick(context.Background())
		if f.runs != 1 {
			t.Errorf("runs = %d, want 1", f.runs)
		}
	})

	t.Run("disabled interval", func(t *testing.T) {
		s := NewScheduler(&fakePipeline{}, nil, 0)
		s.Start(context.Background())
		s.Stop()
	})
}
