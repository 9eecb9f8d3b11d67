package sampler

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/askdb/askdb/internal/database"
)

// tableOpener hands out one sqlmock connection per table, keyed by the order
// in which tables are listed.
type tableOpener struct {
	mu    sync.Mutex
	conns []*sqlx.DB
	next  int
}

func (o *tableOpener) open(context.Context) (*sqlx.DB, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.next >= len(o.conns) {
		return nil, database.ErrConnection
	}
	db := o.conns[o.next]
	o.next++
	return db, nil
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func TestSamplerFailedTableIsEmptyOthersSucceed(t *testing.T) {
	dbX, mockX := newMock(t)
	mockX.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `X` ORDER BY RAND() LIMIT 5")).
		WillReturnError(errors.New("table X is locked"))
	dbY, mockY := newMock(t)
	mockY.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `Y` ORDER BY RAND() LIMIT 5")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nome"}).
			AddRow(int64(1), []byte("Ana")).
			AddRow(int64(2), []byte("Rui")))

	// One worker fetches tables in listed order, so connections line up.
	opener := &tableOpener{conns: []*sqlx.DB{dbX, dbY}}
	s, err := New(opener.open, database.MySQL, Config{Tables: []string{"X", "Y"}, Workers: 1}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.State() != StateNotStarted {
		t.Fatalf("State() = %v", s.State())
	}

	s.Start(context.Background())
	snapshot, ok := s.Wait(context.Background(), 5*time.Second)
	if !ok {
		t.Fatal("Wait() timed out")
	}
	if s.State() != StateReady {
		t.Fatalf("State() = %v", s.State())
	}

	x, present := snapshot["X"]
	if !present || len(x) != 0 {
		t.Fatalf("snapshot[X] = %v, present=%v", x, present)
	}
	y := snapshot["Y"]
	if len(y) != 2 || y[0]["nome"] != "Ana" || y[1]["id"] != int64(2) {
		t.Fatalf("snapshot[Y] = %#v", y)
	}
	for _, mock := range []sqlmock.Sqlmock{mockX, mockY} {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("sql expectations: %v", err)
		}
	}
}

func TestSamplerConnectionFailureYieldsEmptyTable(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `A` ORDER BY RAND() LIMIT 3")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	opener := &tableOpener{conns: []*sqlx.DB{db}}
	s, _ := New(opener.open, database.MySQL, Config{Tables: []string{"A", "B"}, RowsPerTable: 3, Workers: 1}, nil)
	s.Start(context.Background())

	snapshot, ok := s.Wait(context.Background(), 5*time.Second)
	if !ok {
		t.Fatal("Wait() timed out")
	}
	if len(snapshot["A"]) != 1 || len(snapshot["B"]) != 0 {
		t.Fatalf("snapshot = %#v", snapshot)
	}
	if _, present := snapshot["B"]; !present {
		t.Fatal("failed table missing from snapshot")
	}
}

func TestWaitZeroTimeoutDoesNotStopSampling(t *testing.T) {
	release := make(chan struct{})
	var opened sync.WaitGroup
	opened.Add(1)

	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `slow` ORDER BY RAND() LIMIT 5")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	opener := func(context.Context) (*sqlx.DB, error) {
		opened.Done()
		<-release
		return db, nil
	}
	s, _ := New(opener, database.MySQL, Config{Tables: []string{"slow"}}, nil)
	s.Start(context.Background())
	opened.Wait()

	if _, ok := s.Wait(context.Background(), 0); ok {
		t.Fatal("Wait(0) reported ready before sampling finished")
	}
	if s.State() != StateRunning {
		t.Fatalf("State() = %v, want running", s.State())
	}

	close(release)
	snapshot, ok := s.Wait(context.Background(), 5*time.Second)
	if !ok {
		t.Fatal("background sampling did not complete after a zero-timeout wait")
	}
	if len(snapshot["slow"]) != 1 {
		t.Fatalf("snapshot = %#v", snapshot)
	}
}

func TestWaitTimesOutWhileRunning(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	s, _ := New(func(context.Context) (*sqlx.DB, error) {
		<-block
		return nil, database.ErrConnection
	}, database.MySQL, Config{Tables: []string{"t"}}, nil)
	s.Start(context.Background())

	start := time.Now()
	if _, ok := s.Wait(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("Wait() reported ready")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Wait() returned before the timeout")
	}
}

func TestStartRunsOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s, _ := New(func(context.Context) (*sqlx.DB, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, database.ErrConnection
	}, database.MySQL, Config{Tables: []string{"t"}}, nil)

	for range 3 {
		s.Start(context.Background())
	}
	if _, ok := s.Wait(context.Background(), 5*time.Second); !ok {
		t.Fatal("Wait() timed out")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("opener called %d times, want 1", calls)
	}
}

func TestNoTablesBecomesReadyWithEmptySnapshot(t *testing.T) {
	s, _ := New(func(context.Context) (*sqlx.DB, error) { return nil, database.ErrConnection }, database.MySQL, Config{}, nil)
	s.Start(context.Background())
	snapshot, ok := s.Wait(context.Background(), time.Second)
	if !ok || len(snapshot) != 0 {
		t.Fatalf("Wait() = %v, %v", snapshot, ok)
	}
}
