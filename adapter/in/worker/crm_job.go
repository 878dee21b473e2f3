package worker

import (
	"time"

	"github.com/google/uuid"

	"crm_server/adapter/out/messaging"
)

// Job is one stream entry handed to the pool.
type Job struct {
	ID         string
	Stream     string
	Data       []byte
	EnqueuedAt time.Time

	done chan error
}

// NewJob wraps a stream payload.
func NewJob(stream string, data []byte) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Stream:     stream,
		Data:       data,
		EnqueuedAt: time.Now(),
		done:       make(chan error, 1),
	}
}

// Kind returns a short label for logs.
func (j *Job) Kind() string {
	switch j.Stream {
	case messaging.StreamPipelineRun:
		return "pipeline.run"
	case messaging.StreamAllocate:
		return "employees.allocate"
	default:
		return j.Stream
	}
}
