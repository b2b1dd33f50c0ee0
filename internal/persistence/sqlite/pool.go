// Package sqlite is a single-node interval store on an embedded SQLite
// database. Uniqueness of the running interval is enforced by the schema.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const defaultPoolSize = 4

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file. It is created when missing.
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

type pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

func openPool(cfg Config) (*pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = defaultPoolSize
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
	}
	logger.Info("sqlite pool opened", "path", cfg.Path, "pool_size", size)
	return &pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) { p.inner.Put(conn) }

func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlite: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}

// schema mirrors the Postgres layout. Times are unix nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS activities (
    id          INTEGER PRIMARY KEY,
    user_id     INTEGER NOT NULL DEFAULT 0,
    name        TEXT    NOT NULL,
    color       TEXT    NOT NULL DEFAULT '#2196F3',
    icon        TEXT    NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS activities_user_idx ON activities (user_id);

CREATE TABLE IF NOT EXISTS timesheets (
    id              TEXT    PRIMARY KEY,
    user_id         INTEGER NOT NULL,
    activity_id     INTEGER NOT NULL REFERENCES activities (id),
    start_time      INTEGER NOT NULL,
    end_time        INTEGER,
    running_marker  INTEGER GENERATED ALWAYS AS (CASE WHEN end_time IS NULL THEN 1 END) STORED,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    CHECK (end_time IS NULL OR end_time > start_time)
);

CREATE UNIQUE INDEX IF NOT EXISTS timesheets_one_running_per_user ON timesheets (user_id, running_marker);
CREATE INDEX IF NOT EXISTS timesheets_user_start_idx ON timesheets (user_id, start_time DESC, id DESC);
`
