package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthChecker is an optional backend probed by /ready.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db     *pgxpool.Pool
	redis  *redis.Client
	extras map[string]HealthChecker
}

func NewHealthHandler(db *pgxpool.Pool, redis *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, extras: map[string]HealthChecker{}}
}

// AddCheck registers another backend for /ready.
func (h *HealthHandler) AddCheck(name string, checker HealthChecker) {
	h.extras[name] = checker
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			return
		}
		checks[name] = "healthy"
	}

	if h.db != nil {
		record("postgres", h.db.Ping(ctx))
	} else {
		checks["postgres"] = "not configured"
	}

	if h.redis != nil {
		record("redis", h.redis.Ping(ctx).Err())
	} else {
		checks["redis"] = "not configured"
	}

	for name, checker := range h.extras {
		record(name, checker.Ping(ctx))
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
