package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/cli"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/modelhub"
	"github.com/askdb/askdb/internal/schema"
)

func testConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	env["ASKDB_PROFILE"] = "test"
	cfg, err := config.Load("askdb-test", func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestLoadDatabaseInMemoryDuckDB(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"ASKDB_DB_DRIVER": "duckdb",
		"ASKDB_DB_NAME":   "memory",
	})
	db, err := LoadDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}
	if db.Dialect.Name != database.DuckDB.Name {
		t.Fatalf("Dialect = %q", db.Dialect.Name)
	}
	if db.Schema == nil || db.Open == nil {
		t.Fatalf("LoadDatabase() = %+v", db)
	}
}

func TestLoadDatabaseDuckDBFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "school.duckdb")
	db, err := database.Open(context.Background(), database.Config{Driver: "duckdb", DSN: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := db.ExecContext(context.Background(), "CREATE TABLE aulas_praticas (id INTEGER, professor VARCHAR)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	_ = db.Close()

	cfg := testConfig(t, map[string]string{
		"ASKDB_DB_DRIVER": "duckdb",
		"ASKDB_DB_DSN":    path,
	})
	loaded, err := LoadDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}
	got := loaded.PromptSchema("aulas_praticas")
	if !strings.Contains(got, `"professor" VARCHAR`) {
		t.Fatalf("PromptSchema() = %q", got)
	}
}

func TestPromptSchema(t *testing.T) {
	db := Database{Schema: schema.New(database.MySQL, []schema.Table{
		{Name: "a", Columns: []schema.Column{{Name: "x", Type: "INT"}}},
		{Name: "b", Columns: []schema.Column{{Name: "y", Type: "INT"}}},
	})}
	if got := db.PromptSchema("a"); got != "CREATE TABLE `a` (\n  `x` INT\n);" {
		t.Fatalf("PromptSchema(a) = %q", got)
	}
	if got := db.PromptSchema(""); !strings.Contains(got, "CREATE TABLE `b`") {
		t.Fatalf("PromptSchema(\"\") = %q", got)
	}
}

func TestStartModelWaitsForExternalServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, map[string]string{"ASKDB_LLM_BASE_URL": srv.URL})
	var status bytes.Buffer
	model, err := StartModel(context.Background(), cfg, nil, nil, &status)
	if err != nil {
		t.Fatalf("StartModel() error = %v", err)
	}
	defer model.Close()
	if _, ok := model.LLM.(*llm.Client); !ok {
		t.Fatalf("LLM = %T, want *llm.Client", model.LLM)
	}
	if !strings.Contains(status.String(), "Model loaded") {
		t.Fatalf("status = %q", status.String())
	}
}

func TestStartModelTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t, map[string]string{
		"ASKDB_LLM_BASE_URL":          srv.URL,
		"ASKDB_MODEL_STARTUP_TIMEOUT": "50ms",
	})
	start := time.Now()
	if _, err := StartModel(context.Background(), cfg, nil, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected startup timeout")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("StartModel() ignored the startup timeout")
	}
}

func TestStartModelFailsWhenWeightsAreMissing(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"ASKDB_MODEL_RUNTIME":   "kronk",
		"ASKDB_MODEL_SOURCE":    "none",
		"ASKDB_MODEL_CACHE_DIR": t.TempDir(),
	})
	var status bytes.Buffer
	model, err := StartModel(context.Background(), cfg, nil, nil, &status)
	if !errors.Is(err, modelhub.ErrModelMissing) {
		t.Fatalf("StartModel() = %v, %v, want ErrModelMissing", model, err)
	}
	if strings.Contains(status.String(), "Loading model") {
		t.Fatalf("model load attempted without weights: %q", status.String())
	}
}

func TestStartModelRejectsUnknownSource(t *testing.T) {
	cfg := testConfig(t, map[string]string{"ASKDB_MODEL_RUNTIME": "kronk"})
	cfg.Model.Source = "ftp"
	if _, err := StartModel(context.Background(), cfg, nil, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown model source")
	}
}

func TestObjectStoreOnlyWhenNeeded(t *testing.T) {
	cfg := testConfig(t, map[string]string{})
	store, err := ObjectStore(context.Background(), cfg)
	if err != nil || store != nil {
		t.Fatalf("ObjectStore() = %v, %v", store, err)
	}
}

func TestRendererDefaultsToPlain(t *testing.T) {
	cfg := testConfig(t, map[string]string{})
	if _, ok := Renderer(cfg, nil).(cli.PlainRenderer); !ok {
		t.Fatal("expected plain renderer")
	}
}

func TestStartMetricsDisabledIsNoop(t *testing.T) {
	cfg := testConfig(t, map[string]string{})
	stop := StartMetrics(context.Background(), cfg, nil)
	stop()
}
