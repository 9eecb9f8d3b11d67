package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/answer"
	"github.com/askdb/askdb/internal/app"
	"github.com/askdb/askdb/internal/cli"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadFromEnv("askdb-sql")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		return 1
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("🚀 Starting SQL agent...")
	db, err := app.LoadDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to read database schema", slog.Any("error", err))
		return 1
	}
	logger.Info("schema loaded", slog.Int("tables", len(db.Schema.Tables())))

	store, err := app.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		return 1
	}
	model, err := app.StartModel(ctx, cfg, store, logger, os.Stdout)
	if err != nil {
		logger.Error("failed to start model", slog.Any("error", err))
		return 1
	}
	defer model.Close()

	stopMetrics := app.StartMetrics(context.Background(), cfg, logger)
	defer stopMetrics()

	synth, err := nl2sql.NewSynthesizer(model.LLM, nl2sql.Config{
		Dialect:     db.Dialect,
		Table:       cfg.Prompt.Table,
		Temperature: cfg.LLM.SQLTemperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize sql synthesizer", slog.Any("error", err))
		return 1
	}
	executor, err := query.NewExecutor(db.Open, logger)
	if err != nil {
		logger.Error("failed to initialize query executor", slog.Any("error", err))
		return 1
	}
	explainer, err := answer.NewExplainer(model.LLM, answer.Config{
		Temperature: cfg.LLM.AnswerTemperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		logger.Error("failed to initialize answer synthesizer", slog.Any("error", err))
		return 1
	}
	sqlAgent, err := agent.NewSQLAgent(agent.SQLAgentConfig{
		SchemaText:  db.PromptSchema(cfg.Prompt.Table),
		Synthesizer: synth,
		Executor:    executor,
		Explainer:   explainer,
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

	return cli.Run(ctx, reader, sqlAgent, cli.Options{
		Prompt:        cfg.CLI.Question,
		AssistantName: cfg.CLI.AssistantName,
		Renderer:      app.Renderer(cfg, logger),
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Logger:        logger,
	})
}
