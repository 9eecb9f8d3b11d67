package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
)

type Executor struct {
	open   database.Opener
	logger *slog.Logger
}

func NewExecutor(open database.Opener, logger *slog.Logger) (*Executor, error) {
	if open == nil {
		return nil, fmt.Errorf("database opener is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{open: open, logger: logger}, nil
}

// IsReadOnly reports whether sqlText passes the allow-list: after trimming it
// must start with SELECT, compared case-insensitively. Leading comments and
// stacked statements are not inspected.
func IsReadOnly(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	return len(trimmed) >= len("SELECT") && strings.EqualFold(trimmed[:len("SELECT")], "SELECT")
}

// Execute runs sqlText on a fresh connection that is closed before returning.
// Statements rejected by the allow-list never reach the database.
func (e *Executor) Execute(ctx context.Context, sqlText string) (Result, error) {
	traceID := observability.TraceIDFromContext(ctx)
	if !IsReadOnly(sqlText) {
		observability.IncrementSQLRejected()
		e.logger.Warn("rejected non-select statement",
			slog.String("trace_id", traceID),
			slog.String("sql", sqlText),
		)
		return Result{}, ErrReadOnly
	}

	start := time.Now()
	result, err := e.execute(ctx, sqlText)
	elapsed := time.Since(start)
	observability.ObserveSQL(elapsed, err)
	if err != nil {
		e.logger.Error("query failed",
			slog.String("trace_id", traceID),
			slog.String("sql", sqlText),
			slog.Any("error", err),
		)
		return Result{}, err
	}
	result.Duration = elapsed
	e.logger.Info("query executed",
		slog.String("trace_id", traceID),
		slog.Int("rows", len(result.Rows)),
		slog.Duration("duration", elapsed),
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, sqlText string) (Result, error) {
	db, err := e.open(ctx)
	if err != nil {
		return Result{}, &ExecutionError{SQL: sqlText, Err: err}
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, &ExecutionError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, &ExecutionError{SQL: sqlText, Err: fmt.Errorf("query columns: %w", err)}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, &ExecutionError{SQL: sqlText, Err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, &ExecutionError{SQL: sqlText, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return Result{Columns: columns, Rows: resultRows}, nil
}

// NormalizeValues converts driver byte slices to strings.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
