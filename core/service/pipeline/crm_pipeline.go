// Package pipeline owns the fetch, classify and aggregate cycle. The engine
// packages stay pure; this package performs the I/O around them and keeps
// the latest result as an immutable snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/core/service/aggregation"
	"crm_server/core/service/allocation"
	"crm_server/core/service/classification"
	"crm_server/core/service/lexicon"
	"crm_server/core/service/report"
	"crm_server/core/service/scoring"
	"crm_server/core/service/tasking"
	"crm_server/pkg/apperr"
	"crm_server/pkg/logger"

	"github.com/google/uuid"
)

// State of the pipeline.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateClassifying State = "classifying"
	StateAggregating State = "aggregating"
	StateReady       State = "ready"
	StateFailed      State = "failed"
)

// SnapshotCacheKey is the cache key of the latest snapshot.
const SnapshotCacheKey = "pipeline:snapshot"

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = apperr.Conflict("pipeline run already in progress")

// LeadContext is the deal context the lead score is computed against.
type LeadContext struct {
	EstimatedValueUSD float64 `json:"estimated_value_usd"`
	Industry          string  `json:"industry"`
	ProjectName       string  `json:"project_name"`
}

// Snapshot is the result of one successful run. It is never mutated after
// it has been published; updates replace it.
type Snapshot struct {
	RunID        string                        `json:"run_id"`
	Source       string                        `json:"source"`
	CompletedAt  time.Time                     `json:"completed_at"`
	Messages     []domain.Message              `json:"messages"`
	ClientWork   []domain.ClientWorkItem       `json:"client_work"`
	Employees    []domain.Employee             `json:"employees"`
	Distribution domain.DepartmentDistribution `json:"distribution"`
	Metrics      domain.EngagementMetrics      `json:"metrics"`
	Lead         domain.LeadScoreReport        `json:"lead"`
	Report       domain.ReportDocument         `json:"report"`
}

// Status describes the pipeline for the status endpoint.
type Status struct {
	State      State      `json:"state"`
	RunID      string     `json:"run_id,omitempty"`
	Source     string     `json:"source"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Runs       int        `json:"runs"`
	Failures   int        `json:"failures"`
}

// Deps are the collaborators of the service. Source and Employees are
// required; the rest may be nil.
type Deps struct {
	Source    out.MessageSource
	Archive   out.MessageArchive
	Employees out.EmployeeRepository
	Tasks     out.TaskRepository
	Reports   out.ReportRepository
	Graph     out.AssignmentGraph
	Cache     out.Cache
	Events    out.EventPublisher

	Lexicon *lexicon.Lexicon
	Lead    LeadContext
	Now     func() time.Time
}

// Service runs the pipeline and serves its results.
type Service struct {
	deps Deps

	classifier *classification.Classifier
	allocator  *allocation.Allocator
	aggregator *aggregation.Aggregator
	scorer     *scoring.Scorer
	composer   *report.Composer

	runMu    sync.Mutex
	rosterMu sync.Mutex
	taskMu   sync.Mutex

	mu       sync.RWMutex
	status   Status
	snapshot *Snapshot
}

// New creates the service in the Idle state.
func New(deps Deps) *Service {
	if deps.Lexicon == nil {
		deps.Lexicon = lexicon.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		deps:       deps,
		classifier: classification.NewClassifier(deps.Lexicon),
		allocator:  allocation.NewAllocator(deps.Lexicon),
		aggregator: aggregation.NewAggregator(deps.Lexicon.DefaultDepartment),
		scorer:     scoring.NewScorer(),
		composer:   report.NewComposer(),
		status:     Status{State: StateIdle, Source: deps.Source.Name()},
	}
}

// Run executes one full cycle. Only one run is active at a time; a
// concurrent call returns ErrRunInProgress without waiting.
func (s *Service) Run(ctx context.Context) (*Snapshot, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	started := s.deps.Now()
	log := logger.WithContext(ctx).WithField("run_id", runID)

	s.mu.Lock()
	s.status.RunID = runID
	s.status.StartedAt = &started
	s.status.FinishedAt = nil
	s.status.LastError = ""
	s.status.Runs++
	s.mu.Unlock()

	snap, err := s.run(ctx, runID, log)
	if err != nil {
		s.fail(ctx, runID, err)
		log.WithError(err).Error("[Pipeline.Run] failed")
		return nil, err
	}

	s.mu.Lock()
	s.snapshot = snap
	s.status.State = StateReady
	finished := snap.CompletedAt
	s.status.FinishedAt = &finished
	s.mu.Unlock()

	log.WithDuration(s.deps.Now().Sub(started)).
		Info("[Pipeline.Run] ready: %d messages, %d clients, lead score %d",
			len(snap.Messages), len(snap.ClientWork), snap.Lead.Score)

	s.persist(ctx, snap, log)
	return snap, nil
}

func (s *Service) run(ctx context.Context, runID string, log *logger.Logger) (*Snapshot, error) {
	s.setState(StateFetching)
	raw, err := s.deps.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", s.deps.Source.Name(), err)
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.SaveMessages(ctx, raw); err != nil {
			log.WithError(err).Warn("[Pipeline.Run] archiving %d messages failed", len(raw))
		}
	}

	s.setState(StateClassifying)
	messages := s.classifier.ClassifyAll(raw)

	employees, err := s.loadRoster(ctx)
	if err != nil {
		return nil, err
	}

	s.setState(StateAggregating)
	items := s.aggregator.Aggregate(messages, employees)
	metrics := aggregation.Metrics(messages)
	in := domain.LeadScoreInput{
		CustomerCount:     metrics.CustomerMessages,
		TeamCount:         metrics.TeamMessages,
		EstimatedValueUSD: s.deps.Lead.EstimatedValueUSD,
		Industry:          s.deps.Lead.Industry,
	}
	if len(items) > 0 {
		in.PrimaryContact = items[0].ClientEmail
	}
	lead := s.ScoreLead(in)

	now := s.deps.Now().UTC()
	rc := domain.ReportContext{ProjectName: s.deps.Lead.ProjectName, GeneratedAt: now}
	if len(items) > 0 {
		rc.ClientName = items[0].ClientName
		rc.ClientEmail = items[0].ClientEmail
	}

	return &Snapshot{
		RunID:        runID,
		Source:       s.deps.Source.Name(),
		CompletedAt:  now,
		Messages:     messages,
		ClientWork:   items,
		Employees:    employees,
		Distribution: allocation.Distribution(employees),
		Metrics:      metrics,
		Lead:         lead,
		Report:       s.composer.Compose(lead, metrics, rc),
	}, nil
}

// loadRoster reads the roster and allocates it when any employee has no
// department yet.
func (s *Service) loadRoster(ctx context.Context) ([]domain.Employee, error) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	employees, err := s.deps.Employees.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	for _, e := range employees {
		if e.IsAllocated() {
			continue
		}
		allocated, _ := s.allocator.Allocate(employees)
		if err := s.deps.Employees.SaveAllocations(ctx, allocated); err != nil {
			return nil, fmt.Errorf("save allocations: %w", err)
		}
		return allocated, nil
	}
	return employees, nil
}

func (s *Service) persist(ctx context.Context, snap *Snapshot, log *logger.Logger) {
	if s.deps.Graph != nil {
		if err := s.deps.Graph.SyncClientWork(ctx, snap.RunID, snap.ClientWork); err != nil {
			log.WithError(err).Warn("[Pipeline.persist] graph sync failed")
		}
	}
	if s.deps.Reports != nil {
		record := &out.ReportRecord{
			RunID:       snap.RunID,
			GeneratedAt: snap.CompletedAt,
			Lead:        snap.Lead,
			Metrics:     snap.Metrics,
			Document:    snap.Report,
		}
		if err := s.deps.Reports.SaveReport(ctx, record); err != nil {
			log.WithError(err).Warn("[Pipeline.persist] report archive failed")
		}
	}
	s.cacheSnapshot(ctx, snap, log)
	if s.deps.Tasks != nil {
		if _, _, err := s.allocateTasks(ctx, snap.Employees, log); err != nil {
			log.WithError(err).Warn("[Pipeline.persist] task allocation failed")
		}
	}
	s.publish(ctx, &out.PipelineEvent{
		Type:      out.EventPipelineCompleted,
		RunID:     snap.RunID,
		Messages:  len(snap.Messages),
		Clients:   len(snap.ClientWork),
		Employees: len(snap.Employees),
		LeadScore: snap.Lead.Score,
	}, log)
}

func (s *Service) cacheSnapshot(ctx context.Context, snap *Snapshot, log *logger.Logger) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.SetJSON(ctx, SnapshotCacheKey, snap, 0); err != nil {
		log.WithError(err).Warn("[Pipeline.persist] snapshot cache failed")
	}
}

func (s *Service) publish(ctx context.Context, event *out.PipelineEvent, log *logger.Logger) {
	if s.deps.Events == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Source = s.deps.Source.Name()
	event.OccurredAt = s.deps.Now().UTC()
	if err := s.deps.Events.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("[Pipeline.publish] %s event failed", event.Type)
	}
}

func (s *Service) fail(ctx context.Context, runID string, err error) {
	now := s.deps.Now()
	s.mu.Lock()
	s.status.State = StateFailed
	s.status.LastError = err.Error()
	s.status.FinishedAt = &now
	s.status.Failures++
	s.mu.Unlock()

	s.publish(ctx, &out.PipelineEvent{Type: out.EventPipelineFailed, RunID: runID, Error: err.Error()},
		logger.WithField("run_id", runID))
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.status.State = st
	s.mu.Unlock()
}

// Status returns a copy of the current status.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns the latest snapshot, or an apperr NotReady error before
// the first successful run.
func (s *Service) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, apperr.NotReady("pipeline snapshot")
	}
	return s.snapshot, nil
}

// Restore loads the cached snapshot of a previous process, if any.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	if s.deps.Cache == nil {
		return false, nil
	}
	var snap Snapshot
	ok, err := s.deps.Cache.GetJSON(ctx, SnapshotCacheKey, &snap)
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		return false, nil
	}
	s.snapshot = &snap
	s.status.State = StateReady
	s.status.RunID = snap.RunID
	completed := snap.CompletedAt
	s.status.FinishedAt = &completed
	return true, nil
}

// Employees returns the current roster.
func (s *Service) Employees(ctx context.Context) ([]domain.Employee, error) {
	return s.deps.Employees.ListEmployees(ctx)
}

// Distribution summarises the current roster by department.
func (s *Service) Distribution(ctx context.Context) (domain.DepartmentDistribution, error) {
	employees, err := s.deps.Employees.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	return allocation.Distribution(employees), nil
}

// Allocate re-allocates the whole roster and persists the result.
func (s *Service) Allocate(ctx context.Context) ([]domain.Employee, domain.DepartmentDistribution, error) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	employees, err := s.deps.Employees.ListEmployees(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load roster: %w", err)
	}
	allocated, dist := s.allocator.Allocate(employees)
	if err := s.deps.Employees.SaveAllocations(ctx, allocated); err != nil {
		return nil, nil, fmt.Errorf("save allocations: %w", err)
	}

	s.replaceRoster(ctx, func([]domain.Employee) []domain.Employee { return allocated })
	s.publish(ctx, &out.PipelineEvent{Type: out.EventEmployeesAllocated, Employees: len(allocated)},
		logger.WithContext(ctx))
	return allocated, dist, nil
}

// AllocateOne re-allocates a single employee. The result equals what a full
// Allocate would produce for that employee.
func (s *Service) AllocateOne(ctx context.Context, id string) (*domain.Employee, error) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	emp, err := s.deps.Employees.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := s.allocator.AllocateOne(*emp)
	if err := s.deps.Employees.SaveAllocations(ctx, []domain.Employee{updated}); err != nil {
		return nil, fmt.Errorf("save allocation: %w", err)
	}

	s.replaceRoster(ctx, func(current []domain.Employee) []domain.Employee {
		next := make([]domain.Employee, len(current))
		for i, e := range current {
			if e.ID == updated.ID {
				e = updated.Clone()
			}
			next[i] = e
		}
		return next
	})
	s.publish(ctx, &out.PipelineEvent{Type: out.EventEmployeesAllocated, Employees: 1}, logger.WithContext(ctx))
	return &updated, nil
}

// Tasks returns the current task list.
func (s *Service) Tasks(ctx context.Context) ([]domain.Task, error) {
	if s.deps.Tasks == nil {
		return nil, apperr.NotReady("task list")
	}
	return s.deps.Tasks.ListTasks(ctx)
}

// AllocateTasks assigns every open task to the available staff of the
// current roster and persists the result.
func (s *Service) AllocateTasks(ctx context.Context) ([]domain.Task, int, error) {
	if s.deps.Tasks == nil {
		return nil, 0, apperr.NotReady("task list")
	}
	employees, err := s.deps.Employees.ListEmployees(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load roster: %w", err)
	}
	return s.allocateTasks(ctx, employees, logger.WithContext(ctx))
}

func (s *Service) allocateTasks(ctx context.Context, employees []domain.Employee, log *logger.Logger) ([]domain.Task, int, error) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	tasks, err := s.deps.Tasks.ListTasks(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load tasks: %w", err)
	}
	allocated, n := tasking.Allocate(tasks, employees)
	if n == 0 {
		return allocated, 0, nil
	}
	if err := s.deps.Tasks.SaveTasks(ctx, allocated); err != nil {
		return nil, 0, fmt.Errorf("save tasks: %w", err)
	}

	log.Info("[Pipeline.allocateTasks] assigned %d of %d tasks", n, len(allocated))
	s.publish(ctx, &out.PipelineEvent{Type: out.EventTasksAllocated, Employees: len(employees), Tasks: n}, log)
	return allocated, n, nil
}

// Assess explains the department scores behind an employee's allocation.
func (s *Service) Assess(ctx context.Context, id string) (allocation.Assessment, error) {
	emp, err := s.deps.Employees.GetEmployee(ctx, id)
	if err != nil {
		return allocation.Assessment{}, err
	}
	return s.allocator.Assess(*emp), nil
}

// replaceRoster publishes a new snapshot whose roster and distribution are
// derived from the current one. Client work is left as computed by the run.
func (s *Service) replaceRoster(ctx context.Context, update func([]domain.Employee) []domain.Employee) {
	s.mu.Lock()
	if s.snapshot == nil {
		s.mu.Unlock()
		return
	}
	next := *s.snapshot
	next.Employees = update(s.snapshot.Employees)
	next.Distribution = allocation.Distribution(next.Employees)
	s.snapshot = &next
	s.mu.Unlock()

	s.cacheSnapshot(ctx, &next, logger.WithContext(ctx))
}

// Classify classifies ad-hoc messages without touching the snapshot.
func (s *Service) Classify(raws []domain.RawMessage) []domain.Message {
	return s.classifier.ClassifyAll(raws)
}

// ScoreLead scores ad-hoc counts.
func (s *Service) ScoreLead(in domain.LeadScoreInput) domain.LeadScoreReport {
	return s.scorer.Score(in)
}

// LeadInfo is the lead context and message counts of the latest snapshot.
type LeadInfo struct {
	LeadContext
	CustomerMessages int        `json:"customer_messages"`
	TeamMessages     int        `json:"team_messages"`
	UniqueClients    int        `json:"unique_clients"`
	LastContact      *time.Time `json:"last_contact,omitempty"`
	Score            int        `json:"score"`
}

// LeadInfo returns the lead context with the snapshot's counts.
func (s *Service) LeadInfo() (LeadInfo, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return LeadInfo{}, err
	}
	return LeadInfo{
		LeadContext:      s.deps.Lead,
		CustomerMessages: snap.Metrics.CustomerMessages,
		TeamMessages:     snap.Metrics.TeamMessages,
		UniqueClients:    snap.Metrics.UniqueClients,
		LastContact:      snap.Metrics.LastContact,
		Score:            snap.Lead.Score,
	}, nil
}

// IsRunInProgress reports whether err is ErrRunInProgress.
func IsRunInProgress(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}
