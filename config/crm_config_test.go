package config

import (
	"strings"
	"testing"
	"time"

	"crm_server/pkg/apperr"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MESSAGE_SOURCE", "")
	t.Setenv("SYNC_INTERVAL_SEC", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MessageSource != SourceFile || cfg.Port != "8080" || cfg.RosterFile != "data/employees.json" || cfg.TasksFile != "data/tasks.json" {
		t.Errorf("defaults = %s/%s/%s", cfg.MessageSource, cfg.Port, cfg.RosterFile)
	}
	if cfg.SyncInterval != 0 || cfg.ReportRetention != 90*24*time.Hour {
		t.Errorf("durations = %v/%v", cfg.SyncInterval, cfg.ReportRetention)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MESSAGE_SOURCE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LEAD_ESTIMATED_VALUE", "150000")
	t.Setenv("SYNC_INTERVAL_SEC", "300")
	t.Setenv("WORKER_COUNT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MessageSource != SourcePostgres {
		t.Errorf("MessageSource = %q", cfg.MessageSource)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.LeadEstimatedValue != 150000 || cfg.SyncInterval != 5*time.Minute || cfg.WorkerCount != 2 {
		t.Errorf("values = %v/%v/%d", cfg.LeadEstimatedValue, cfg.SyncInterval, cfg.WorkerCount)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"file source", Config{MessageSource: SourceFile, WorkerCount: 1}, ""},
		{"postgres without url", Config{MessageSource: SourcePostgres, WorkerCount: 1}, "DATABASE_URL"},
		{"gmail without token", Config{MessageSource: SourceGmail, WorkerCount: 1}, "GMAIL_REFRESH_TOKEN"},
		{"unknown source", Config{MessageSource: "imap", WorkerCount: 1}, "unknown MESSAGE_SOURCE"},
		{"negative value", Config{MessageSource: SourceFile, WorkerCount: 1, LeadEstimatedValue: -1}, "LEAD_ESTIMATED_VALUE"},
		{"no workers", Config{MessageSource: SourceFile}, "WORKER_COUNT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
			if !apperr.IsCode(err, apperr.CodeConfigError) {
				t.Errorf("Validate = %v, want CONFIG_ERROR", err)
			}
		})
	}
}
