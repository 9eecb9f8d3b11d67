// Package nl2sql turns a natural-language question into a single SQL
// statement using a chat model primed with the database schema.
package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
)

const DefaultMaxTokens = 500

// StopSequences end generation at a SQL comment or the end of the statement.
var StopSequences = []string{"--", ";"}

type Config struct {
	Dialect     database.Dialect
	Table       string
	Temperature float64
	MaxTokens   int
}

type Synthesizer struct {
	chat   llm.Chatter
	cfg    Config
	logger *slog.Logger
}

func NewSynthesizer(chat llm.Chatter, cfg Config, logger *slog.Logger) (*Synthesizer, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Dialect.Name == "" {
		cfg.Dialect = database.MySQL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synthesizer{chat: chat, cfg: cfg, logger: logger}, nil
}

// Synthesize asks the model for one statement answering question against
// schemaText and returns it cleaned. The statement is neither validated nor
// retried.
func (s *Synthesizer) Synthesize(ctx context.Context, question, schemaText string) (string, error) {
	messages := BuildMessages(s.cfg.Dialect, s.cfg.Table, question, schemaText)
	raw, err := s.chat.Chat(ctx, messages, llm.Params{
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Stop:        StopSequences,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize sql: %w", err)
	}
	sqlText := CleanSQL(raw)
	s.logger.Debug("synthesized sql",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("raw", raw),
		slog.String("sql", sqlText),
	)
	return sqlText, nil
}

func BuildMessages(dialect database.Dialect, table, question, schemaText string) []llm.Message {
	var system strings.Builder
	fmt.Fprintf(&system, "You are an expert %s assistant. ", dialect.Name)
	system.WriteString("Given the schema below, write a single SQL query that answers the user's question.\n")
	system.WriteString("Rules:\n")
	system.WriteString("- Return ONLY the SQL query. No explanation, no markdown.\n")
	fmt.Fprintf(&system, "- %s\n", dialect.YearHint)
	system.WriteString("- Use only the tables and columns listed in the schema.\n\n")
	if strings.TrimSpace(table) != "" {
		fmt.Fprintf(&system, "Schema of table %s:\n", table)
	} else {
		system.WriteString("Schema:\n")
	}
	system.WriteString(schemaText)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system.String()},
		{Role: llm.RoleUser, Content: fmt.Sprintf("-- User Question: %s\n-- SQL Query:", strings.TrimSpace(question))},
	}
}

// CleanSQL removes markdown fences and surrounding whitespace and appends a
// semicolon when the statement does not already end with one. Empty input
// stays empty.
func CleanSQL(value string) string {
	cleaned := strings.ReplaceAll(value, "```sql", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}
	if strings.HasSuffix(cleaned, ";") {
		return cleaned
	}
	return cleaned + ";"
}
