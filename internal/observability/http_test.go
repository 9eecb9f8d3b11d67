package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/config"
)

func TestMetricsHandlerExposesDomainMetrics(t *testing.T) {
	ObserveQuestion("sql", "answered")
	IncrementSQLRejected()
	ObserveSQL(10*time.Millisecond, errors.New("bad sql"))
	ObserveLLMCall("chat", time.Second, nil)
	ObserveSampledTable("aulas", 5, nil)
	SetSamplerReady()

	m := NewMetricsServer(":0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{
		"askdb_questions_total",
		"askdb_sql_rejected_total",
		"askdb_sql_errors_total",
		"askdb_llm_call_duration_seconds",
		"askdb_sampled_rows_total",
		"askdb_sampler_ready 1",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics body missing %q", name)
		}
	}
}

func TestHealthz(t *testing.T) {
	m := NewMetricsServer(":0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("TraceIDFromContext(empty) = %q", got)
	}
}

func TestNewTraceIDIsUnique(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	if a == "" || a == b {
		t.Fatalf("NewTraceID() = %q, %q", a, b)
	}
}

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	var buf strings.Builder
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "askdb-sql"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	logger := NewLogger(cfg, &buf)
	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line logged at info level: %s", out)
	}
	if !strings.Contains(out, `"service":"askdb-sql"`) || !strings.Contains(out, `"profile":"test"`) {
		t.Fatalf("log output = %s", out)
	}
}
