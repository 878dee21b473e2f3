package worker

import (
	"context"

	"github.com/goccy/go-json"

	"crm_server/adapter/out/messaging"
	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/core/service/pipeline"
	"crm_server/pkg/apperr"
	"crm_server/pkg/logger"
)

// Pipeline is the part of the pipeline service the worker drives.
type Pipeline interface {
	Run(ctx context.Context) (*pipeline.Snapshot, error)
	Allocate(ctx context.Context) ([]domain.Employee, domain.DepartmentDistribution, error)
	AllocateOne(ctx context.Context, id string) (*domain.Employee, error)
}

// Handler routes stream jobs to the pipeline.
type Handler struct {
	pipeline Pipeline
}

func NewHandler(p Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// Process runs one job. A nil return acknowledges the entry; errors leave it
// pending for redelivery. Payloads that can never succeed are dropped.
func (h *Handler) Process(ctx context.Context, job *Job) error {
	logger.Debug("[Handler.Process] %s job %s", job.Kind(), job.ID)

	switch job.Stream {
	case messaging.StreamPipelineRun:
		payload, err := ParsePayload[out.PipelineRunJob](job)
		if err != nil {
			logger.Warn("[Handler.Process] dropping malformed pipeline job: %v", err)
			return nil
		}
		return h.runPipeline(ctx, payload)

	case messaging.StreamAllocate:
		payload, err := ParsePayload[out.AllocateJob](job)
		if err != nil {
			logger.Warn("[Handler.Process] dropping malformed allocate job: %v", err)
			return nil
		}
		return h.allocate(ctx, payload)

	default:
		logger.Warn("[Handler.Process] unknown stream: %s", job.Stream)
		return nil
	}
}

func (h *Handler) runPipeline(ctx context.Context, job *out.PipelineRunJob) error {
	snap, err := h.pipeline.Run(ctx)
	if pipeline.IsRunInProgress(err) {
		// the active run covers this request
		logger.Info("[Handler.runPipeline] job %s skipped: run in progress", job.JobID)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("[Handler.runPipeline] job %s (%s) completed run %s", job.JobID, job.Trigger, snap.RunID)
	return nil
}

func (h *Handler) allocate(ctx context.Context, job *out.AllocateJob) error {
	if job.EmployeeID == "" {
		employees, _, err := h.pipeline.Allocate(ctx)
		if err != nil {
			return err
		}
		logger.Info("[Handler.allocate] job %s allocated %d employees", job.JobID, len(employees))
		return nil
	}

	emp, err := h.pipeline.AllocateOne(ctx, job.EmployeeID)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		logger.Warn("[Handler.allocate] job %s: employee %s not found", job.JobID, job.EmployeeID)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("[Handler.allocate] job %s allocated %s to %s", job.JobID, emp.ID, emp.AllocatedDepartment)
	return nil
}

// ParsePayload decodes a job payload.
func ParsePayload[T any](job *Job) (*T, error) {
	var payload T
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
