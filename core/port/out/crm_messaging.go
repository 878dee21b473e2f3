package out

import (
	"context"
	"time"
)

// Pipeline event types.
const (
	EventPipelineCompleted  = "pipeline.completed"
	EventPipelineFailed     = "pipeline.failed"
	EventEmployeesAllocated = "employees.allocated"
	EventTasksAllocated     = "tasks.allocated"
)

// PipelineEvent is published after runs and roster or task allocations.
type PipelineEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	Messages   int       `json:"messages"`
	Clients    int       `json:"clients"`
	Employees  int       `json:"employees"`
	LeadScore  int       `json:"lead_score"`
	Tasks      int       `json:"tasks,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers pipeline events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *PipelineEvent) error
}

// PipelineRunJob asks the worker to run the pipeline.
type PipelineRunJob struct {
	JobID       string    `json:"job_id"`
	Trigger     string    `json:"trigger"` // api, schedule
	RequestedAt time.Time `json:"requested_at"`
}

// AllocateJob asks the worker to allocate one employee, or the whole roster
// when EmployeeID is empty.
type AllocateJob struct {
	JobID       string    `json:"job_id"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// JobProducer enqueues work for the worker process.
type JobProducer interface {
	PublishPipelineRun(ctx context.Context, job *PipelineRunJob) error
	PublishAllocate(ctx context.Context, job *AllocateJob) error
}
