package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestLoggerWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.WithContext(ctx).
		WithField("run_id", "run-9").
		WithField("messages", 3).
		WithError(errors.New("boom")).
		WithDuration(1500*time.Microsecond).
		Error("run %s failed", "run-9")

	var e Entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf.String())
	}
	if e.Level != "ERROR" || e.Message != "run run-9 failed" || e.Service != "crm-server" {
		t.Errorf("entry = %+v", e)
	}
	if e.RequestID != "req-1" || e.RunID != "run-9" || e.Error != "boom" || e.Duration != 1.5 {
		t.Errorf("special fields = %+v", e)
	}
	if e.Fields["messages"] != float64(3) {
		t.Errorf("fields = %v", e.Fields)
	}
	if e.File == "" {
		t.Error("error entries carry caller file")
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWithFieldDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})
	_ = base.WithField("k", "v")
	base.Info("plain")
	if strings.Contains(buf.String(), `"k"`) {
		t.Errorf("derived field leaked into parent: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": LevelDebug, "WARNING": LevelWarn, " error ": LevelError, "nope": LevelInfo}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
