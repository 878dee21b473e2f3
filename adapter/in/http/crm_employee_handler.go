package http

import (
	"context"
	"time"

	"crm_server/core/port/out"
	"crm_server/core/service/pipeline"
	"crm_server/pkg/apperr"
	"crm_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ClientLookup finds the clients assigned to an employee.
type ClientLookup interface {
	ClientsOf(ctx context.Context, employeeID string) ([]string, error)
}

// EmployeeHandler serves the roster and department allocation.
type EmployeeHandler struct {
	svc     *pipeline.Service
	jobs    out.JobProducer
	clients ClientLookup
}

// NewEmployeeHandler creates an employee handler. jobs and clients may be nil.
func NewEmployeeHandler(svc *pipeline.Service, jobs out.JobProducer, clients ClientLookup) *EmployeeHandler {
	return &EmployeeHandler{svc: svc, jobs: jobs, clients: clients}
}

// Register registers employee routes.
func (h *EmployeeHandler) Register(router fiber.Router, allocateLimiter fiber.Handler) {
	router.Get("/department-distribution", h.Distribution)

	employees := router.Group("/employees")
	employees.Get("/", h.List)
	employees.Post("/allocate", allocateLimiter, h.AllocateAll)
	employees.Get("/:id/assessment", h.Assessment)
	employees.Get("/:id/clients", h.Clients)
	employees.Post("/:id/allocate", h.AllocateOne)
}

// List returns the roster. Supports ?fields= selection.
func (h *EmployeeHandler) List(c *fiber.Ctx) error {
	employees, err := h.svc.Employees(c.UserContext())
	if err != nil {
		return asAppError("list employees", err)
	}
	return response.OK(c, response.SelectFields(c, employees))
}

// Distribution returns per-department counts and averages.
func (h *EmployeeHandler) Distribution(c *fiber.Ctx) error {
	dist, err := h.svc.Distribution(c.UserContext())
	if err != nil {
		return asAppError("department distribution", err)
	}
	return response.OK(c, dist)
}

// AllocateAll re-allocates the whole roster, or enqueues it with ?async=true.
func (h *EmployeeHandler) AllocateAll(c *fiber.Ctx) error {
	if c.QueryBool("async", false) {
		return h.enqueue(c, "")
	}

	employees, dist, err := h.svc.Allocate(c.UserContext())
	if err != nil {
		return asAppError("allocate employees", err)
	}
	return response.OK(c, fiber.Map{
		"employees":    employees,
		"distribution": dist,
	})
}

// AllocateOne re-allocates a single employee.
func (h *EmployeeHandler) AllocateOne(c *fiber.Ctx) error {
	id := c.Params("id")
	if c.QueryBool("async", false) {
		return h.enqueue(c, id)
	}

	emp, err := h.svc.AllocateOne(c.UserContext(), id)
	if err != nil {
		return asAppError("allocate employee", err)
	}
	return response.OK(c, emp)
}

// Assessment explains an employee's per-department scores.
func (h *EmployeeHandler) Assessment(c *fiber.Ctx) error {
	a, err := h.svc.Assess(c.UserContext(), c.Params("id"))
	if err != nil {
		return asAppError("assess employee", err)
	}
	return response.OK(c, a)
}

// Clients lists the clients currently assigned to an employee.
func (h *EmployeeHandler) Clients(c *fiber.Ctx) error {
	if h.clients == nil {
		return apperr.NotReady("assignment graph")
	}
	clients, err := h.clients.ClientsOf(c.UserContext(), c.Params("id"))
	if err != nil {
		return apperr.ExternalError("assignment graph", err)
	}
	return response.OK(c, clients)
}

func (h *EmployeeHandler) enqueue(c *fiber.Ctx, employeeID string) error {
	if h.jobs == nil {
		return apperr.NotReady("job queue")
	}
	job := &out.AllocateJob{JobID: uuid.NewString(), EmployeeID: employeeID, RequestedAt: time.Now().UTC()}
	if err := h.jobs.PublishAllocate(c.UserContext(), job); err != nil {
		return apperr.ExternalError("job queue", err)
	}
	return response.Accepted(c, job)
}

// asAppError keeps typed errors and wraps the rest as storage failures.
func asAppError(operation string, err error) error {
	if apperr.IsAppError(err) {
		return err
	}
	return apperr.DatabaseError(operation, err)
}
