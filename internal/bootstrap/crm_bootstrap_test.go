package bootstrap

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"crm_server/config"
)

const testMails = `[
  {"id": 1, "email": "ana@client.com", "subject": "Demo", "body": "Could we schedule a meeting next week?", "timestamp": "2024-04-02T10:00:00Z", "role": "customer"},
  {"id": 2, "email": "rep@ourco.com", "subject": "Re: Demo", "body": "Sure, Tuesday.", "timestamp": "2024-04-02T11:00:00Z", "role": "internal"}
]`

const testTasks = `[
  {"id": "t1", "title": "Send the demo agenda", "client_email": "ana@client.com"}
]`

const testRoster = `[
  {"id": "e1", "name": "Sam", "skills": ["negotiation", "sales"], "experience_years": 4, "performance_score": 80}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}
	return &config.Config{
		Port:            "0",
		Environment:     "test",
		LogLevel:        "error",
		RosterFile:      write("employees.json", testRoster),
		TasksFile:       write("tasks.json", testTasks),
		MailArchiveFile: write("mails.json", testMails),
		MessageSource:   config.SourceFile,
		WorkerID:        "test",
		WorkerCount:     2,
		ConsumerGroup:   "crm-test",
		ConsumerBlock:   50 * time.Millisecond,
		RequestTimeout:  10 * time.Second,
	}
}

func TestNewDependenciesFileOnly(t *testing.T) {
	cfg := testConfig(t)

	deps, cleanup, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()

	if deps.Source.Name() != "file" {
		t.Errorf("source = %q, want file", deps.Source.Name())
	}
	if deps.Archive != nil {
		t.Error("file source must not archive into itself")
	}
	if deps.jobProducer() != nil {
		t.Error("job producer must be a nil interface without Redis")
	}

	pd := deps.pipelineDeps()
	if pd.Cache != nil || pd.Events != nil || pd.Reports != nil || pd.Graph != nil {
		t.Errorf("absent backends must stay nil: %+v", pd)
	}

	snap, err := deps.Pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(snap.Messages) != 2 || len(snap.ClientWork) != 1 {
		t.Errorf("messages = %d, clients = %d, want 2 and 1", len(snap.Messages), len(snap.ClientWork))
	}
}

func TestNewDependenciesWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()

	deps, cleanup, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()

	if deps.Redis == nil || deps.jobProducer() == nil {
		t.Fatal("redis client and job producer should be wired")
	}
	pd := deps.pipelineDeps()
	if pd.Cache == nil || pd.Events == nil {
		t.Error("cache and event publisher should be wired with Redis")
	}

	w := NewWorker(cfg, deps)
	if len(w.consumers) != cfg.WorkerCount {
		t.Errorf("consumers = %d, want %d", len(w.consumers), cfg.WorkerCount)
	}
}

func TestNewDependenciesBadLexicon(t *testing.T) {
	cfg := testConfig(t)
	cfg.LexiconFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, _, err := NewDependencies(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for a missing lexicon file")
	}
}

func TestNewAPIRoutes(t *testing.T) {
	cfg := testConfig(t)
	deps, cleanup, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()

	app := NewAPI(cfg, deps)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", 200},
		{"GET", "/ready", 200},
		{"GET", "/api/v1/pipeline/status", 200},
		{"GET", "/api/v1/client-work", 503},
		{"POST", "/api/v1/pipeline/run", 200},
		{"GET", "/api/v1/client-work", 200},
		{"GET", "/api/v1/reports", 503},
		{"GET", "/api/v1/tasks", 200},
		{"POST", "/api/v1/tasks/allocate", 200},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil), -1)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
		}
	}
}
