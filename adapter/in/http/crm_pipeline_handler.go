package http

import (
	"context"
	"strings"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/core/service/pipeline"
	"crm_server/pkg/apperr"
	"crm_server/pkg/logger"
	"crm_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ReportHistory lists archived lead reports, newest first.
type ReportHistory interface {
	ListReports(ctx context.Context, offset, limit int) ([]*out.ReportRecord, error)
}

// PipelineHandler serves the pipeline snapshot and triggers runs.
type PipelineHandler struct {
	svc     *pipeline.Service
	jobs    out.JobProducer
	history ReportHistory
}

// NewPipelineHandler creates a pipeline handler. jobs and history may be nil.
func NewPipelineHandler(svc *pipeline.Service, jobs out.JobProducer, history ReportHistory) *PipelineHandler {
	return &PipelineHandler{svc: svc, jobs: jobs, history: history}
}

// Register registers pipeline routes.
func (h *PipelineHandler) Register(router fiber.Router, runLimiter fiber.Handler) {
	router.Get("/email-timeline", h.EmailTimeline)
	router.Get("/client-work", h.ClientWork)
	router.Get("/lead-info", h.LeadInfo)
	router.Get("/lead-report", h.LeadReport)
	router.Get("/reports", h.ListReports)

	router.Get("/pipeline/status", h.Status)
	router.Post("/pipeline/run", runLimiter, h.Run)
}

// EmailTimeline returns the classified messages of the latest run.
// Optional filters: role, department.
func (h *PipelineHandler) EmailTimeline(c *fiber.Ctx) error {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return err
	}

	role := domain.Role(strings.ToLower(c.Query("role")))
	if role != "" && !role.Valid() {
		return apperr.InvalidInput("role", "must be one of [customer internal]")
	}
	dept := domain.Department(c.Query("department"))

	filtered := make([]domain.Message, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		if role != "" && m.Role != role {
			continue
		}
		if dept != "" && !strings.EqualFold(string(m.Department), string(dept)) {
			continue
		}
		filtered = append(filtered, m)
	}

	page := response.GetPagination(c, 50, 500)
	start := min(page.Offset, len(filtered))
	end := min(start+page.Limit, len(filtered))

	return response.OKWithMeta(c, filtered[start:end], &response.Meta{
		Total:   len(filtered),
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: end < len(filtered),
	})
}

// ClientWork returns the client work items of the latest run.
func (h *PipelineHandler) ClientWork(c *fiber.Ctx) error {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return err
	}
	return response.OK(c, snap.ClientWork)
}

// LeadInfo returns the lead context with message counts.
func (h *PipelineHandler) LeadInfo(c *fiber.Ctx) error {
	info, err := h.svc.LeadInfo()
	if err != nil {
		return err
	}
	return response.OK(c, info)
}

// LeadReport returns the composed report document with its score.
func (h *PipelineHandler) LeadReport(c *fiber.Ctx) error {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"run_id":   snap.RunID,
		"lead":     snap.Lead,
		"metrics":  snap.Metrics,
		"document": snap.Report,
	})
}

// ListReports returns archived reports.
func (h *PipelineHandler) ListReports(c *fiber.Ctx) error {
	if h.history == nil {
		return apperr.NotReady("report archive")
	}
	page := response.GetPagination(c, 20, 100)
	records, err := h.history.ListReports(c.UserContext(), page.Offset, page.Limit)
	if err != nil {
		return apperr.DatabaseError("list reports", err)
	}
	return response.OKWithMeta(c, records, &response.Meta{
		Total:   len(records),
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: len(records) == page.Limit,
	})
}

// Status returns the pipeline state.
func (h *PipelineHandler) Status(c *fiber.Ctx) error {
	return response.OK(c, h.svc.Status())
}

// Run executes the pipeline synchronously, or enqueues it with ?async=true.
func (h *PipelineHandler) Run(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if c.QueryBool("async", false) {
		if h.jobs == nil {
			return apperr.NotReady("job queue")
		}
		job := &out.PipelineRunJob{JobID: uuid.NewString(), Trigger: "api", RequestedAt: time.Now().UTC()}
		if err := h.jobs.PublishPipelineRun(ctx, job); err != nil {
			return apperr.ExternalError("job queue", err)
		}
		logger.WithContext(ctx).Info("[PipelineHandler.Run] queued job %s", job.JobID)
		return response.Accepted(c, job)
	}

	snap, err := h.svc.Run(ctx)
	if err != nil {
		if apperr.IsAppError(err) {
			return err
		}
		return apperr.ExternalError("pipeline", err)
	}
	return response.OK(c, fiber.Map{
		"run_id":       snap.RunID,
		"completed_at": snap.CompletedAt,
		"messages":     len(snap.Messages),
		"clients":      len(snap.ClientWork),
		"employees":    len(snap.Employees),
		"lead_score":   snap.Lead.Score,
	})
}
