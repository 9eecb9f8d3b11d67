package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/app"
	"github.com/askdb/askdb/internal/cli"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/sampler"
	"github.com/askdb/askdb/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadFromEnv("askdb-sample")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		return 1
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("🚀 Starting sample agent...")
	db, err := app.LoadDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to read database schema", slog.Any("error", err))
		return 1
	}

	store, err := app.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		return 1
	}

	// Sampling races model loading and outlives any single wait.
	s, err := sampler.New(db.Open, db.Dialect, sampler.Config{
		Tables:       db.Schema.Tables(),
		RowsPerTable: cfg.Sampler.RowsPerTable,
		Workers:      cfg.Sampler.Workers,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize sampler", slog.Any("error", err))
		return 1
	}
	s.Start(context.Background())
	go exportWhenReady(s, cfg, store, logger)

	model, err := app.StartModel(ctx, cfg, store, logger, os.Stdout)
	if err != nil {
		logger.Error("failed to start model", slog.Any("error", err))
		return 1
	}
	defer model.Close()

	stopMetrics := app.StartMetrics(context.Background(), cfg, logger)
	defer stopMetrics()

	sampleAgent, err := agent.NewSampleAgent(agent.SampleAgentConfig{
		Source:      s,
		Generator:   model.LLM,
		WaitTimeout: cfg.Sampler.WaitTimeout,
		Temperature: cfg.LLM.AnswerTemperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Status:      os.Stdout,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize agent", slog.Any("error", err))
		return 1
	}

	reader, closeReader, err := app.NewReader(cfg, os.Stdout, os.Stderr)
	if err != nil {
		logger.Error("failed to open terminal", slog.Any("error", err))
		return 1
	}
	defer closeReader()

	return cli.Run(ctx, reader, sampleAgent, cli.Options{
		Prompt:        cfg.CLI.Question,
		AssistantName: cfg.CLI.AssistantName,
		Renderer:      app.Renderer(cfg, logger),
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Logger:        logger,
	})
}

func exportWhenReady(s *sampler.Sampler, cfg config.Config, store storage.ObjectStore, logger *slog.Logger) {
	target := sampler.ExportTarget{Path: cfg.Sampler.ExportPath, Store: store, Key: cfg.Sampler.ExportKey}
	if !target.Enabled() {
		return
	}
	<-s.Ready()
	snapshot, _ := s.Wait(context.Background(), 0)
	if err := sampler.Export(context.Background(), snapshot, target); err != nil {
		logger.Error("failed to export sample snapshot", slog.Any("error", err))
		return
	}
	logger.Info("sample snapshot exported",
		slog.String("path", target.Path),
		slog.String("key", target.Key),
	)
}
