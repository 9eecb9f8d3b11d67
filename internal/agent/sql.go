package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

type sqlSynthesizer interface {
	Synthesize(ctx context.Context, question, schemaText string) (string, error)
}

type sqlExecutor interface {
	Execute(ctx context.Context, sqlText string) (query.Result, error)
}

type resultExplainer interface {
	Explain(ctx context.Context, question, sqlText string, result query.Result) (string, error)
}

// SQLAgent generates a statement, runs it and explains the result.
type SQLAgent struct {
	schemaText string
	synth      sqlSynthesizer
	exec       sqlExecutor
	explain    resultExplainer
	status     io.Writer
	logger     *slog.Logger
}

type SQLAgentConfig struct {
	// SchemaText is the rendered schema handed to the synthesizer each turn.
	SchemaText  string
	Synthesizer sqlSynthesizer
	Executor    sqlExecutor
	Explainer   resultExplainer
	Status      io.Writer
	Logger      *slog.Logger
}

func NewSQLAgent(cfg SQLAgentConfig) (*SQLAgent, error) {
	if cfg.Synthesizer == nil || cfg.Executor == nil || cfg.Explainer == nil {
		return nil, fmt.Errorf("synthesizer, executor and explainer are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLAgent{
		schemaText: cfg.SchemaText,
		synth:      cfg.Synthesizer,
		exec:       cfg.Executor,
		explain:    cfg.Explainer,
		status:     cfg.Status,
		logger:     logger,
	}, nil
}

// Respond returns the apology text, not an error, when the statement cannot be
// run. Model failures are returned as errors.
func (a *SQLAgent) Respond(ctx context.Context, question string) (string, error) {
	ctx, logger := withTrace(ctx, a.logger)
	logger.Info("question received", slog.String("question", question))

	status(a.status, "⚙️  Step 1: generating SQL query...")
	sqlText, err := a.synth.Synthesize(ctx, question, a.schemaText)
	if err != nil {
		observability.ObserveQuestion("sql", "model_error")
		return "", err
	}
	status(a.status, "🔍 Generated SQL: %s", sqlText)

	result, err := a.exec.Execute(ctx, sqlText)
	if err != nil {
		observability.ObserveQuestion("sql", "query_error")
		logger.Warn("query not executed", slog.Any("error", err))
		return ApologyPrefix + err.Error(), nil
	}
	status(a.status, "📊 Database result:\n%s", result.TSV())

	status(a.status, "⚙️  Step 2: generating answer...")
	answer, err := a.explain.Explain(ctx, question, sqlText, result)
	if err != nil {
		observability.ObserveQuestion("sql", "model_error")
		return "", err
	}
	observability.ObserveQuestion("sql", "answered")
	return answer, nil
}
