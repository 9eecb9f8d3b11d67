// Package answer explains a query result to the user in natural language.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
)

const DefaultTemperature = 0.2

type Config struct {
	Temperature float64
	MaxTokens   int
}

type Explainer struct {
	chat llm.Chatter
	cfg  Config
}

func NewExplainer(chat llm.Chatter, cfg Config) (*Explainer, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = nl2sql.DefaultMaxTokens
	}
	return &Explainer{chat: chat, cfg: cfg}, nil
}

func (e *Explainer) Explain(ctx context.Context, question, sqlText string, result query.Result) (string, error) {
	reply, err := e.chat.Chat(ctx, BuildMessages(question, sqlText, result), llm.Params{
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Stop:        nl2sql.StopSequences,
	})
	if err != nil {
		return "", fmt.Errorf("explain result: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// FormatResult renders the header and rows block embedded in the prompt.
func FormatResult(result query.Result) string {
	return fmt.Sprintf("Header: %s\nResults:\n%s", result.HeaderTSV(), result.RowsTSV())
}

func BuildMessages(question, sqlText string, result query.Result) []llm.Message {
	system := fmt.Sprintf(
		"You are a helpful assistant that explains database query results.\n"+
			"The user asked: %q\n"+
			"The SQL query that was run:\n%s\n\n"+
			"The query returned:\n%s\n\n"+
			"Answer the user's question clearly and concisely using only these results.",
		strings.TrimSpace(question),
		strings.TrimSpace(sqlText),
		FormatResult(result),
	)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: "Explain the results in natural language."},
	}
}
