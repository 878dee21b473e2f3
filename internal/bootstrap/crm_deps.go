package bootstrap

import (
	"context"
	"fmt"

	"crm_server/adapter/out/file"
	"crm_server/adapter/out/graph"
	"crm_server/adapter/out/messaging"
	"crm_server/adapter/out/mongodb"
	"crm_server/adapter/out/persistence"
	"crm_server/adapter/out/provider/gmail"
	"crm_server/adapter/out/sentiment"
	"crm_server/config"
	"crm_server/core/port/out"
	"crm_server/core/service/lexicon"
	"crm_server/core/service/pipeline"
	"crm_server/infra/database"
	"crm_server/pkg/cache"
	"crm_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies is the wired object graph shared by the API and the worker.
// Optional backends are nil when unconfigured or unreachable.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	Lexicon   *lexicon.Lexicon
	Employees out.EmployeeRepository
	Tasks     out.TaskRepository
	Source    out.MessageSource
	Archive   out.MessageArchive

	Reports     *mongodb.ReportAdapter
	Graph       *graph.AssignmentAdapter
	Kafka       *messaging.KafkaPublisher
	JobProducer *messaging.RedisProducer

	Pipeline *pipeline.Service
}

// NewDependencies connects the configured backends and builds the pipeline.
// Postgres is required once configured; the other side stores degrade to a
// warning when they cannot be reached.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	lex, err := lexicon.Load(cfg.LexiconFile)
	if err != nil {
		return fail(err)
	}
	deps.Lexicon = lex

	// Postgres
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := database.Migrate(cfg.DatabaseURL); err != nil {
				return fail(fmt.Errorf("migrate: %w", err))
			}
			logger.Info("Database migrations applied")
		}

		db, err := database.NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		deps.DB = db
		deps.SQLDB = database.NewSQLX(db)
		cleanups = append(cleanups, func() {
			deps.SQLDB.Close()
			db.Close()
		})
		logger.Info("PostgreSQL connected")
	}

	// Redis
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL, nil)
		if err != nil {
			logger.Warn("Redis connection failed: %v", err)
		} else {
			deps.Redis = client
			deps.JobProducer = messaging.NewRedisProducer(client)
			cleanups = append(cleanups, func() { client.Close() })
			logger.Info("Redis connected")
		}
	}

	// MongoDB
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = client
			cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })

			reports := mongodb.NewReportAdapter(client.Database(cfg.MongoDBName), cfg.ReportRetention)
			if err := reports.EnsureIndexes(ctx); err != nil {
				logger.Warn("MongoDB index setup failed: %v", err)
			}
			deps.Reports = reports
			logger.Info("MongoDB connected (database: %s)", cfg.MongoDBName)
		}
	}

	// Neo4j
	if cfg.Neo4jURL != "" {
		driver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("Neo4j connection failed: %v", err)
		} else {
			deps.Neo4j = driver
			cleanups = append(cleanups, func() { _ = driver.Close(context.Background()) })

			assignments := graph.NewAssignmentAdapter(driver, cfg.Neo4jDatabase)
			if err := assignments.EnsureIndexes(ctx); err != nil {
				logger.Warn("Neo4j constraint setup failed: %v", err)
			}
			deps.Graph = assignments
			logger.Info("Neo4j connected")
		}
	}

	// Kafka
	if len(cfg.KafkaBrokers) > 0 {
		deps.Kafka = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		cleanups = append(cleanups, func() { _ = deps.Kafka.Close() })
		logger.Info("Kafka publisher configured (topic: %s)", cfg.KafkaTopic)
	}

	if err := deps.wireRoster(ctx); err != nil {
		return fail(err)
	}
	if err := deps.wireTasks(ctx); err != nil {
		return fail(err)
	}
	if err := deps.wireSource(ctx); err != nil {
		return fail(err)
	}

	deps.Pipeline = pipeline.New(deps.pipelineDeps())
	if restored, err := deps.Pipeline.Restore(ctx); err != nil {
		logger.Warn("Snapshot restore failed: %v", err)
	} else if restored {
		logger.Info("Restored the last pipeline snapshot from cache")
	}

	return deps, cleanup, nil
}

// wireRoster picks the employee repository. With Postgres an empty table is
// seeded from the roster file.
func (d *Dependencies) wireRoster(ctx context.Context) error {
	roster := file.NewRosterFile(d.Config.RosterFile)
	if d.SQLDB == nil {
		d.Employees = roster
		logger.Info("Roster: %s", d.Config.RosterFile)
		return nil
	}

	repo := persistence.NewEmployeeRepository(d.SQLDB)
	d.Employees = repo

	count, err := repo.CountEmployees(ctx)
	if err != nil {
		return fmt.Errorf("count employees: %w", err)
	}
	if count > 0 {
		return nil
	}
	seed, err := roster.ListEmployees(ctx)
	if err != nil {
		logger.Warn("Roster seed skipped: %v", err)
		return nil
	}
	if len(seed) == 0 {
		return nil
	}
	if err := repo.UpsertEmployees(ctx, seed); err != nil {
		return fmt.Errorf("seed employees: %w", err)
	}
	logger.Info("Seeded %d employees from %s", len(seed), d.Config.RosterFile)
	return nil
}

// wireTasks picks the task repository the same way wireRoster does.
func (d *Dependencies) wireTasks(ctx context.Context) error {
	tasks := file.NewTaskFile(d.Config.TasksFile)
	if d.SQLDB == nil {
		d.Tasks = tasks
		logger.Info("Tasks: %s", d.Config.TasksFile)
		return nil
	}

	repo := persistence.NewTaskRepository(d.SQLDB)
	d.Tasks = repo

	count, err := repo.CountTasks(ctx)
	if err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	if count > 0 {
		return nil
	}
	seed, err := tasks.ListTasks(ctx)
	if err != nil {
		logger.Warn("Task seed skipped: %v", err)
		return nil
	}
	if len(seed) == 0 {
		return nil
	}
	if err := repo.UpsertTasks(ctx, seed); err != nil {
		return fmt.Errorf("seed tasks: %w", err)
	}
	logger.Info("Seeded %d tasks from %s", len(seed), d.Config.TasksFile)
	return nil
}

// wireSource picks the message source and the archive the fetched messages
// are written to. The source is wrapped so untagged messages get a sentiment.
func (d *Dependencies) wireSource(ctx context.Context) error {
	var (
		source  out.MessageSource
		archive out.MessageArchive
	)

	switch d.Config.MessageSource {
	case config.SourcePostgres:
		if d.SQLDB == nil {
			return fmt.Errorf("message source postgres needs a database connection")
		}
		source = persistence.NewMessageRepository(d.SQLDB)

	case config.SourceGmail:
		src, err := gmail.NewSource(ctx, gmail.Config{
			ClientID:     d.Config.GoogleClientID,
			ClientSecret: d.Config.GoogleClientSecret,
			RefreshToken: d.Config.GmailRefreshToken,
			Mailbox:      d.Config.GmailMailbox,
			Query:        d.Config.GmailQuery,
			MaxMessages:  d.Config.GmailMaxMessages,
		})
		if err != nil {
			return fmt.Errorf("gmail source: %w", err)
		}
		source = src
		if d.SQLDB != nil {
			archive = persistence.NewMessageRepository(d.SQLDB)
		} else {
			archive = file.NewMailArchive(d.Config.MailArchiveFile)
		}

	default:
		source = file.NewMailArchive(d.Config.MailArchiveFile)
		if d.SQLDB != nil {
			archive = persistence.NewMessageRepository(d.SQLDB)
		}
	}

	var tagger out.SentimentTagger = sentiment.NewKeywordTagger(d.Lexicon)
	if d.Config.OpenAIAPIKey != "" {
		tagger = &sentiment.Fallback{
			Primary: sentiment.NewOpenAITagger(sentiment.OpenAIConfig{
				APIKey:  d.Config.OpenAIAPIKey,
				Model:   d.Config.LLMModel,
				BaseURL: d.Config.OpenAIBaseURL,
			}),
			Secondary: tagger,
		}
		logger.Info("Sentiment tagging: OpenAI (%s) with keyword fallback", d.Config.LLMModel)
	}

	d.Source = sentiment.NewTaggingSource(source, tagger)
	d.Archive = archive
	logger.Info("Message source: %s", source.Name())
	return nil
}

// pipelineDeps assigns only the backends that exist, so absent stores stay
// nil interfaces.
func (d *Dependencies) pipelineDeps() pipeline.Deps {
	pd := pipeline.Deps{
		Source:    d.Source,
		Archive:   d.Archive,
		Employees: d.Employees,
		Tasks:     d.Tasks,
		Lexicon:   d.Lexicon,
		Lead: pipeline.LeadContext{
			EstimatedValueUSD: d.Config.LeadEstimatedValue,
			Industry:          d.Config.LeadIndustry,
			ProjectName:       d.Config.LeadProjectName,
		},
	}
	if d.Reports != nil {
		pd.Reports = d.Reports
	}
	if d.Graph != nil {
		pd.Graph = d.Graph
	}

	var publishers messaging.Fanout
	if d.Redis != nil {
		pd.Cache = cache.NewRedisCache(d.Redis, "crm:")
		publishers = append(publishers, messaging.NewStreamPublisher(d.Redis))
	}
	if d.Kafka != nil {
		publishers = append(publishers, d.Kafka)
	}
	if len(publishers) > 0 {
		pd.Events = publishers
	}
	return pd
}

// jobProducer returns the producer as an interface, nil without Redis.
func (d *Dependencies) jobProducer() out.JobProducer {
	if d.JobProducer == nil {
		return nil
	}
	return d.JobProducer
}
