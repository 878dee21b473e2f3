package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crm_server/pkg/apperr"
)

// Message sources selectable with MESSAGE_SOURCE.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceGmail    = "gmail"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Engine inputs
	LexiconFile     string
	RosterFile      string
	TasksFile       string
	MailArchiveFile string
	MessageSource   string

	// Lead context
	LeadEstimatedValue float64
	LeadIndustry       string
	LeadProjectName    string

	// Database
	DatabaseURL     string
	MigrateOnStart  bool
	MongoDBURL      string
	MongoDBName     string
	ReportRetention time.Duration
	RedisURL        string

	// Neo4j
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMModel      string

	// Gmail
	GoogleClientID     string
	GoogleClientSecret string
	GmailRefreshToken  string
	GmailMailbox       string
	GmailQuery         string
	GmailMaxMessages   int

	// Worker
	WorkerID        string
	WorkerCount     int
	WorkerQueue     int
	SyncInterval    time.Duration
	ConsumerGroup   string
	ConsumerBlock   time.Duration
	ConsumerRetries int

	// HTTP
	RequestTimeout time.Duration
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		LexiconFile:     getEnv("LEXICON_FILE", ""),
		RosterFile:      getEnv("ROSTER_FILE", "data/employees.json"),
		TasksFile:       getEnv("TASKS_FILE", "data/tasks.json"),
		MailArchiveFile: getEnv("MAIL_ARCHIVE_FILE", "data/mails.json"),
		MessageSource:   strings.ToLower(getEnv("MESSAGE_SOURCE", SourceFile)),

		LeadEstimatedValue: getEnvFloat("LEAD_ESTIMATED_VALUE", 0),
		LeadIndustry:       getEnv("LEAD_INDUSTRY", ""),
		LeadProjectName:    getEnv("LEAD_PROJECT_NAME", ""),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MigrateOnStart:  getEnvBool("MIGRATE_ON_START", true),
		MongoDBURL:      getEnv("MONGODB_URL", ""),
		MongoDBName:     getEnv("MONGODB_DATABASE", "crm"),
		ReportRetention: time.Duration(getEnvInt("REPORT_RETENTION_DAYS", 90)) * 24 * time.Hour,
		RedisURL:        getEnv("REDIS_URL", ""),

		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),

		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "crm.pipeline.events"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GmailRefreshToken:  getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailMailbox:       getEnv("GMAIL_MAILBOX", ""),
		GmailQuery:         getEnv("GMAIL_QUERY", "newer_than:30d"),
		GmailMaxMessages:   getEnvInt("GMAIL_MAX_MESSAGES", 200),

		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerCount:     getEnvInt("WORKER_COUNT", 2),
		WorkerQueue:     getEnvInt("WORKER_QUEUE_SIZE", 100),
		SyncInterval:    time.Duration(getEnvInt("SYNC_INTERVAL_SEC", 0)) * time.Second,
		ConsumerGroup:   getEnv("CONSUMER_GROUP", "crm-workers"),
		ConsumerBlock:   time.Duration(getEnvInt("CONSUMER_BLOCK_MS", 5000)) * time.Millisecond,
		ConsumerRetries: getEnvInt("CONSUMER_MAX_RETRIES", 3),

		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 60)) * time.Second,
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.MessageSource {
	case SourceFile:
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return apperr.ConfigError("MESSAGE_SOURCE=postgres requires DATABASE_URL")
		}
	case SourceGmail:
		if c.GmailRefreshToken == "" || c.GoogleClientID == "" {
			return apperr.ConfigError("MESSAGE_SOURCE=gmail requires GOOGLE_CLIENT_ID and GMAIL_REFRESH_TOKEN")
		}
	default:
		return apperr.ConfigError(fmt.Sprintf("unknown MESSAGE_SOURCE %q (want file, postgres or gmail)", c.MessageSource))
	}
	if c.LeadEstimatedValue < 0 {
		return apperr.ConfigError("LEAD_ESTIMATED_VALUE must not be negative")
	}
	if c.WorkerCount < 1 {
		return apperr.ConfigError("WORKER_COUNT must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
