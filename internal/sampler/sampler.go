// Package sampler fetches a few random rows from every known table in the
// background and publishes them once as an immutable snapshot.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
)

const (
	DefaultRowsPerTable = 5
	DefaultWorkers      = 5
)

type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Record is one sampled row keyed by column name.
type Record map[string]any

// Snapshot maps every known table to its sampled rows. A table whose fetch
// failed maps to an empty slice.
type Snapshot map[string][]Record

type Config struct {
	Tables       []string
	RowsPerTable int
	Workers      int
}

type Sampler struct {
	open    database.Opener
	dialect database.Dialect
	cfg     Config
	logger  *slog.Logger

	once     sync.Once
	state    atomic.Int32
	ready    chan struct{}
	snapshot Snapshot
}

func New(open database.Opener, dialect database.Dialect, cfg Config, logger *slog.Logger) (*Sampler, error) {
	if open == nil {
		return nil, fmt.Errorf("database opener is required")
	}
	if cfg.RowsPerTable <= 0 {
		cfg.RowsPerTable = DefaultRowsPerTable
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tables := append([]string(nil), cfg.Tables...)
	cfg.Tables = tables
	return &Sampler{
		open:    open,
		dialect: dialect,
		cfg:     cfg,
		logger:  logger,
		ready:   make(chan struct{}),
	}, nil
}

// Start launches the background fetch. Calls after the first are no-ops.
func (s *Sampler) Start(ctx context.Context) {
	s.once.Do(func() {
		s.state.Store(int32(StateRunning))
		go s.run(ctx)
	})
}

func (s *Sampler) State() State {
	return State(s.state.Load())
}

// Ready returns a channel closed once the snapshot is published.
func (s *Sampler) Ready() <-chan struct{} {
	return s.ready
}

// Wait blocks up to timeout for the snapshot. With a non-positive timeout it
// only reports the current state. Returning false never stops the background
// fetch.
func (s *Sampler) Wait(ctx context.Context, timeout time.Duration) (Snapshot, bool) {
	select {
	case <-s.ready:
		return s.snapshot, true
	default:
	}
	if timeout <= 0 {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ready:
		return s.snapshot, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (s *Sampler) run(ctx context.Context) {
	start := time.Now()
	s.logger.Info("sampling tables",
		slog.Int("tables", len(s.cfg.Tables)),
		slog.Int("rows_per_table", s.cfg.RowsPerTable),
		slog.Int("workers", s.cfg.Workers),
	)

	results := make([][]Record, len(s.cfg.Tables))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, table := range s.cfg.Tables {
		g.Go(func() error {
			results[i] = s.sampleTable(ctx, table)
			return nil
		})
	}
	_ = g.Wait()

	snapshot := make(Snapshot, len(s.cfg.Tables))
	for i, table := range s.cfg.Tables {
		snapshot[table] = results[i]
	}
	s.snapshot = snapshot
	s.state.Store(int32(StateReady))
	close(s.ready)

	observability.SetSamplerReady()
	s.logger.Info("sample snapshot ready",
		slog.Int("tables", len(snapshot)),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *Sampler) sampleTable(ctx context.Context, table string) []Record {
	records, err := s.fetch(ctx, table)
	observability.ObserveSampledTable(table, len(records), err)
	if err != nil {
		s.logger.Error("sample table failed", slog.String("table", table), slog.Any("error", err))
		return []Record{}
	}
	s.logger.Info("sampled table", slog.String("table", table), slog.Int("rows", len(records)))
	return records
}

func (s *Sampler) fetch(ctx context.Context, table string) ([]Record, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryxContext(ctx, s.dialect.SampleQuery(table, s.cfg.RowsPerTable))
	if err != nil {
		return nil, fmt.Errorf("query sample of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0, s.cfg.RowsPerTable)
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan sample of %q: %w", table, err)
		}
		for column, value := range row {
			if raw, ok := value.([]byte); ok {
				row[column] = string(raw)
			}
		}
		records = append(records, Record(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample of %q: %w", table, err)
	}
	return records, nil
}
