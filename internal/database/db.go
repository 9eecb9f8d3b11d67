package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb/v2"
)

// ErrConnection marks failures to reach the database at all, as opposed to
// failures of a statement on a live connection.
var ErrConnection = errors.New("database connection failed")

type Config struct {
	Driver         string
	DSN            string
	Host           string
	User           string
	Password       string
	Name           string
	ConnectTimeout time.Duration
}

// Opener returns a fresh connection. Callers own the returned handle and must
// close it.
type Opener func(ctx context.Context) (*sqlx.DB, error)

func NewOpener(cfg Config) Opener {
	return func(ctx context.Context) (*sqlx.DB, error) {
		return Open(ctx, cfg)
	}
}

func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	dsn, err := cfg.dataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnection, cfg.Driver, err)
	}
	// One connection per handle; handles are short-lived and never shared
	// across goroutines.
	db.SetMaxOpenConns(1)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s database %q: %v", ErrConnection, cfg.Driver, cfg.Name, err)
	}

	return sqlx.NewDb(db, cfg.Driver), nil
}

func (cfg Config) dataSourceName() (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	switch cfg.Driver {
	case "mysql":
		if cfg.Host == "" {
			return "", fmt.Errorf("database host is required")
		}
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = cfg.Host
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Name
		mc.Timeout = cfg.ConnectTimeout
		return mc.FormatDSN(), nil
	case "pgx":
		if cfg.Host == "" {
			return "", fmt.Errorf("database host is required")
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   cfg.Host,
			Path:   "/" + cfg.Name,
		}
		q := url.Values{}
		if cfg.ConnectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	case "duckdb":
		// In-memory database, private to this connection.
		return "", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
