// Package agent wires schema, models and database into one question/answer
// turn for each of the two chat variants.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/askdb/askdb/internal/observability"
)

const (
	ApologyPrefix = "Sorry, I could not run the query. The error was: "
	StillLoading  = "The data is still loading. Please try again in a few seconds."
)

// Responder answers one user question.
type Responder interface {
	Respond(ctx context.Context, question string) (string, error)
}

func status(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

func withTrace(ctx context.Context, logger *slog.Logger) (context.Context, *slog.Logger) {
	traceID := observability.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = observability.NewTraceID()
		ctx = observability.ContextWithTraceID(ctx, traceID)
	}
	return ctx, logger.With(slog.String("trace_id", traceID))
}
