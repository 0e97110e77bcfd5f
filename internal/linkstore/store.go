// Package linkstore persists manual links, run history and the audit log in SQLite.
//
// The store implements reconciler.LinkSource and reconciler.RunRecorder, so an
// Orchestrator built with it picks up saved links and records each finished run
// without knowing about the database.
package linkstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds link database configuration
type Config struct {
	// Path of the SQLite file. ":memory:" keeps the database in memory.
	Path            string        `json:"path" mapstructure:"path"`
	BusyTimeout     time.Duration `json:"busy_timeout" mapstructure:"busy_timeout"`
	MaxOpenConns    int           `json:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// DefaultConfig returns the default link database configuration
func DefaultConfig() *Config {
	return &Config{
		Path:            "gst-reconciler.db",
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database.path", c.Path, nil)
	}
	if c.BusyTimeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "database.busy_timeout", c.BusyTimeout, nil)
	}
	if c.MaxOpenConns <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "database.max_open_conns", c.MaxOpenConns, nil)
	}
	return nil
}

func (c *Config) dsn() string {
	if c.Path == ":memory:" {
		// a shared cache keeps one database across pooled connections
		return fmt.Sprintf("file::memory:?cache=shared&_busy_timeout=%d&_foreign_keys=on", c.BusyTimeout.Milliseconds())
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", c.Path, c.BusyTimeout.Milliseconds())
}

const schema = `
CREATE TABLE IF NOT EXISTS manual_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	scope      TEXT NOT NULL,
	books_id   TEXT NOT NULL,
	portal_id  TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (scope, books_id, portal_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	scope        TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	tolerance    TEXT NOT NULL,
	links        INTEGER NOT NULL DEFAULT 0,
	summary      TEXT NOT NULL,
	gstin        TEXT NOT NULL DEFAULT '',
	company_name TEXT NOT NULL DEFAULT '',
	fy           TEXT NOT NULL DEFAULT '',
	period       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT,
	timestamp   TEXT NOT NULL,
	action_type TEXT NOT NULL,
	details     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_manual_links_scope ON manual_links (scope);
CREATE INDEX IF NOT EXISTS idx_runs_scope_timestamp ON runs (scope, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_run ON audit_log (run_id);
`

// Store is the SQLite link store
type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// Open opens the database at config.Path and creates the tables that are missing.
// A nil config selects DefaultConfig.
func Open(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("linkstore").WithField("path", config.Path)

	if config.Path != ":memory:" {
		if dir := filepath.Dir(config.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.StorageError(errors.CodeDatabaseOpen, "open", err).
					WithContext("path", config.Path)
			}
		}
	}

	db, err := sql.Open("sqlite3", config.dsn())
	if err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseOpen, "open", err).WithContext("path", config.Path)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeDatabaseOpen, "open", err).WithContext("path", config.Path)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeDatabaseOpen, "migrate", err).WithContext("path", config.Path)
	}

	log.Info("Link database ready")

	return &Store{
		db:     db,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	s.logger.Debug("Closing link database")
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.StorageError(errors.CodeDatabaseQuery, "ping", err)
	}
	return nil
}

// withTx runs fn inside a transaction and commits when it returns nil
func (s *Store) withTx(ctx context.Context, operation string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeDatabaseQuery, operation, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).WithField("operation", operation).Error("Failed to rollback transaction")
		}
		if _, ok := errors.AsReconcilerError(err); ok {
			return err
		}
		return errors.StorageError(errors.CodeDatabaseQuery, operation, err)
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeDatabaseQuery, operation, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
