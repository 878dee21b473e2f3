package http

import (
	"crm_server/core/service/pipeline"
	"crm_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// TaskHandler serves the follow-up task list.
type TaskHandler struct {
	svc *pipeline.Service
}

func NewTaskHandler(svc *pipeline.Service) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// Register registers task routes.
func (h *TaskHandler) Register(router fiber.Router, allocateLimiter fiber.Handler) {
	tasks := router.Group("/tasks")
	tasks.Get("/", h.List)
	tasks.Post("/allocate", allocateLimiter, h.Allocate)
}

// List returns every task. Supports ?fields= selection.
func (h *TaskHandler) List(c *fiber.Ctx) error {
	tasks, err := h.svc.Tasks(c.UserContext())
	if err != nil {
		return asAppError("list tasks", err)
	}
	return response.OK(c, response.SelectFields(c, tasks))
}

// Allocate assigns open tasks to available staff.
func (h *TaskHandler) Allocate(c *fiber.Ctx) error {
	tasks, assigned, err := h.svc.AllocateTasks(c.UserContext())
	if err != nil {
		return asAppError("allocate tasks", err)
	}
	return response.OK(c, fiber.Map{
		"tasks":    tasks,
		"assigned": assigned,
	})
}
