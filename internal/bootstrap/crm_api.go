package bootstrap

import (
	"context"
	"strings"
	"time"

	"crm_server/adapter/in/http"
	"crm_server/config"
	"crm_server/infra/middleware"
	"crm_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const (
	maxBodyBytes = 4 * 1024 * 1024

	// Pipeline runs and roster-wide allocations are the expensive routes.
	runLimit        = 6
	allocateLimit   = 12
	rateLimitWindow = time.Minute
)

// pingFunc adapts a backend probe to http.HealthChecker.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewAPI builds the fiber app over deps.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadTimeout:           cfg.RequestTimeout,
		WriteTimeout:          cfg.RequestTimeout,

		// go-json for every request and response body
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          maxBodyBytes,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// AllowCredentials is off: the API carries no cookies or auth headers.
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining",
		MaxAge:        86400,
	}))

	health := http.NewHealthHandler(deps.DB, deps.Redis)
	if deps.MongoDB != nil {
		health.AddCheck("mongodb", pingFunc(func(ctx context.Context) error {
			return deps.MongoDB.Ping(ctx, nil)
		}))
	}
	if deps.Neo4j != nil {
		health.AddCheck("neo4j", pingFunc(deps.Neo4j.VerifyConnectivity))
	}
	health.Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.RequireJSON())
	api.Use(middleware.MaxBodySize(maxBodyBytes))

	var history http.ReportHistory
	if deps.Reports != nil {
		history = deps.Reports
	}
	var clients http.ClientLookup
	if deps.Graph != nil {
		clients = deps.Graph
	}

	runLimiter := middleware.NewRateLimiter(runLimit, rateLimitWindow)
	allocateLimiter := middleware.NewRateLimiter(allocateLimit, rateLimitWindow)

	http.NewPipelineHandler(deps.Pipeline, deps.jobProducer(), history).Register(api, runLimiter.Handler())
	http.NewEmployeeHandler(deps.Pipeline, deps.jobProducer(), clients).Register(api, allocateLimiter.Handler())
	http.NewEngineHandler(deps.Pipeline).Register(api)
	http.NewTaskHandler(deps.Pipeline).Register(api, allocateLimiter.Handler())

	logger.Info("API server initialized")
	return app
}
