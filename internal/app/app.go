// Package app holds the startup steps shared by the askdb binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/askdb/askdb/internal/cli"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/modelhub"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/storage"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

func DatabaseConfig(cfg config.Config) database.Config {
	return database.Config{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		Host:           cfg.Database.Host,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Name:           cfg.Database.Name,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}
}

// Database is the connection factory, dialect and schema read at startup.
type Database struct {
	Open    database.Opener
	Dialect database.Dialect
	Schema  *schema.Schema
}

// LoadDatabase reads the schema over a short-lived connection. Errors wrap
// database.ErrConnection when the server is unreachable.
func LoadDatabase(ctx context.Context, cfg config.Config) (Database, error) {
	dialect, err := database.DialectFor(cfg.Database.Driver)
	if err != nil {
		return Database{}, err
	}
	open := database.NewOpener(DatabaseConfig(cfg))
	db, err := open(ctx)
	if err != nil {
		return Database{}, err
	}
	defer func() { _ = db.Close() }()

	s, err := schema.Load(ctx, db, dialect, cfg.Database.Name)
	if err != nil {
		return Database{}, err
	}
	return Database{Open: open, Dialect: dialect, Schema: s}, nil
}

// PromptSchema renders the table the prompts focus on, or every table when
// none is configured.
func (d Database) PromptSchema(table string) string {
	if table == "" {
		return d.Schema.RenderAll()
	}
	return d.Schema.Render(table)
}

// ObjectStore returns the configured S3-compatible store, or nil when neither
// the model source nor the snapshot export needs one.
func ObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if cfg.Model.Source != config.ModelSourceS3 && cfg.Sampler.ExportKey == "" {
		return nil, nil
	}
	storeCfg := s3store.ConfigFrom(cfg.Model.ObjectStore)
	storeCfg.CreateBucket = cfg.Model.Source != config.ModelSourceS3
	store, err := s3store.New(ctx, storeCfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// LLM is what the agents need from a loaded model.
type LLM interface {
	llm.Chatter
	llm.Generator
}

// Model is a ready model, either loaded in process or reached over HTTP.
type Model struct {
	LLM   LLM
	local *llm.Local
}

func (m *Model) Close() {
	if m == nil || m.local == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = m.local.Close(ctx)
}

// StartModel makes the model usable. The kronk runtime resolves the weights
// and loads them in process; the external runtime waits until the server at
// the LLM base URL reports healthy.
func StartModel(ctx context.Context, cfg config.Config, store storage.ObjectStore, logger *slog.Logger, status io.Writer) (*Model, error) {
	if cfg.Model.Runtime == config.ModelRuntimeExternal {
		return startExternal(ctx, cfg, status)
	}

	hub, err := modelhub.New(modelhub.Config{
		Source:     cfg.Model.Source,
		Repo:       cfg.Model.Repo,
		Filename:   cfg.Model.Filename,
		CacheDir:   cfg.Model.CacheDir,
		HubBaseURL: cfg.Model.HubBaseURL,
	}, store, logger)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(status, "📥 Checking model '%s'...\n", cfg.Model.Filename)
	files, err := hub.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("download model: %w", err)
	}

	_, _ = fmt.Fprintf(status, "🧠 Loading model '%s'...\n", cfg.Model.Filename)
	local, err := llm.LoadLocal(ctx, llm.LocalConfig{ModelFiles: files}, logger)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintln(status, "✅ Model loaded.")
	return &Model{LLM: local, local: local}, nil
}

func startExternal(ctx context.Context, cfg config.Config, status io.Writer) (*Model, error) {
	client, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}

	timeout := cfg.Model.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, _ = fmt.Fprintf(status, "⏳ Waiting for model server at %s...\n", cfg.LLM.BaseURL)
	if err := client.WaitHealthy(waitCtx, time.Second); err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintln(status, "✅ Model loaded.")
	return &Model{LLM: client}, nil
}

// StartMetrics serves /metrics when an address is configured. The returned
// function stops the server.
func StartMetrics(ctx context.Context, cfg config.Config, logger *slog.Logger) func() {
	if cfg.Observability.MetricsAddr == "" {
		return func() {}
	}
	server := observability.NewMetricsServer(cfg.Observability.MetricsAddr, logger)
	server.Start()
	return func() { server.Shutdown(ctx) }
}

// NewReader opens the interactive line reader. The returned function releases
// the terminal.
func NewReader(cfg config.Config, stdout, stderr io.Writer) (cli.LineReader, func(), error) {
	reader, err := cli.NewReadlineReader(cfg.CLI.HistoryFile, stdout, stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize line reader: %w", err)
	}
	return reader, func() { _ = reader.Close() }, nil
}

func Renderer(cfg config.Config, logger *slog.Logger) cli.Renderer {
	if !cfg.CLI.RenderMarkdown {
		return cli.PlainRenderer{}
	}
	renderer, err := cli.NewMarkdownRenderer(0)
	if err != nil {
		logger.Warn("markdown rendering disabled", slog.Any("error", err))
		return cli.PlainRenderer{}
	}
	return renderer
}
