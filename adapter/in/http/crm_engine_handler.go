package http

import (
	"time"

	"crm_server/core/domain"
	"crm_server/core/service/intake"
	"crm_server/core/service/pipeline"
	"crm_server/core/service/report"
	"crm_server/pkg/apperr"
	"crm_server/pkg/response"
	"crm_server/pkg/validator"

	"github.com/gofiber/fiber/v2"
)

// LeadScoreRequest is the body of POST /lead-score.
type LeadScoreRequest struct {
	CustomerCount     int     `json:"customer_count" validate:"gte=0"`
	TeamCount         int     `json:"team_count" validate:"gte=0"`
	EstimatedValueUSD float64 `json:"estimated_value_usd" validate:"gte=0"`
	Industry          string  `json:"industry" validate:"max=100"`
	ProjectName       string  `json:"project_name" validate:"max=200"`
	ClientName        string  `json:"client_name"`
	ClientEmail       string  `json:"client_email" validate:"omitempty,email"`
}

// EngineHandler exposes the pure engine operations on ad-hoc input.
// Nothing it computes is persisted.
type EngineHandler struct {
	svc      *pipeline.Service
	intake   *intake.Validator
	validate *validator.Validator
	composer *report.Composer
}

// NewEngineHandler creates an engine handler.
func NewEngineHandler(svc *pipeline.Service) *EngineHandler {
	return &EngineHandler{
		svc:      svc,
		intake:   intake.MustNewValidator(),
		validate: validator.New(),
		composer: report.NewComposer(),
	}
}

// Register registers engine routes.
func (h *EngineHandler) Register(router fiber.Router) {
	router.Post("/classify", h.Classify)
	router.Post("/lead-score", h.LeadScore)
}

// Classify classifies a JSON array of message records. Invalid records are
// reported individually and do not fail the request.
func (h *EngineHandler) Classify(c *fiber.Ctx) error {
	batch, err := h.intake.DecodeMessages(c.Body())
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"messages": h.svc.Classify(batch.Messages),
		"rejected": rejectedOrEmpty(batch.Rejected),
	})
}

// LeadScore scores ad-hoc counts and composes the matching report.
func (h *EngineHandler) LeadScore(c *fiber.Ctx) error {
	var req LeadScoreRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithError(err)
	}
	if err := h.validate.Struct(req); err != nil {
		if fe, ok := validator.FirstError(err); ok {
			return apperr.InvalidInput(fe.Field, fe.Reason)
		}
		return apperr.ValidationFailed(err.Error())
	}

	lead := h.svc.ScoreLead(domain.LeadScoreInput{
		CustomerCount:     req.CustomerCount,
		TeamCount:         req.TeamCount,
		EstimatedValueUSD: req.EstimatedValueUSD,
		Industry:          req.Industry,
		PrimaryContact:    req.ClientEmail,
	})
	metrics := domain.EngagementMetrics{
		CustomerMessages: req.CustomerCount,
		TeamMessages:     req.TeamCount,
		TotalMessages:    req.CustomerCount + req.TeamCount,
	}
	doc := h.composer.Compose(lead, metrics, domain.ReportContext{
		ProjectName: req.ProjectName,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		GeneratedAt: time.Now().UTC(),
	})
	return response.OK(c, fiber.Map{
		"lead":     lead,
		"document": doc,
	})
}

func rejectedOrEmpty(rejected []*apperr.AppError) []*apperr.AppError {
	if rejected == nil {
		return []*apperr.AppError{}
	}
	return rejected
}
