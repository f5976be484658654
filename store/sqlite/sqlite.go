/*
Package sqlite provides a SQLite-backed implementation of depreciation.TxStore.

PURPOSE:
  Persists assets, serial units, templates, schedules, postings,
  adjustments, activities and company settings. The same patterns apply to
  PostgreSQL with minor SQL dialect differences.

STORAGE LAYOUT:
  Each entity is stored as a JSON document (data_json) next to the scalar
  columns the engine filters or sorts on. Schedules keep their rows inside
  the document; next_due caches the date of the first unposted row so the
  sweep query never decodes schedules that have nothing due.

CONSTRAINTS ENFORCED BY THE DATABASE:
  - idx_schedules_one_active: at most one Active schedule per
    (asset, serial no, finance book) -> ErrActiveScheduleExists
  - idx_postings_submitted_key: a posting idempotency key is unique among
    Submitted postings -> ErrDuplicatePosting. Cancelling a posting
    releases its key, so the row can be posted again.
  - postings are never deleted; there is no DELETE on the postings table

KEY TABLES:
  assets, serial_units      depreciable parents
  templates                 depreciation templates by name
  schedules                 schedule documents incl. rows
  postings                  depreciation ledger entries
  repairs, revaluations     adjustments
  activities                asset audit trail (append-only)
  companies, categories,
  accounts                  settings read by the accounts resolver
  sweep_runs                history of scheduled posting sweeps

CONCURRENCY:
  WithTx serializes writers through a mutex and runs fn against the
  *sql.Tx; every read inside fn goes through the same transaction.
  ":memory:" databases are limited to one connection, since each
  connection would otherwise see its own empty database.

WAL MODE:
  File databases are opened with WAL and a busy timeout:
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/assets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := depreciation.NewEngine(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - depreciation/store.go: Interface definitions
  - depreciation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/asset-engine/depreciation"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements depreciation.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// queries implements depreciation.Store on top of a querier. Store uses it
// with the database handle, WithTx with the open transaction.
type queries struct {
	q   querier
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an open database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		queries: queries{q: db, now: time.Now},
		db:      db,
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assets_status
		ON assets(status);

	CREATE TABLE IF NOT EXISTS serial_units (
		serial_no TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_serial_units_asset
		ON serial_units(asset_id);

	CREATE TABLE IF NOT EXISTS templates (
		name TEXT PRIMARY KEY,
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- seq keeps creation order; saving a schedule again keeps its seq
	CREATE TABLE IF NOT EXISTS schedules (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		asset_id TEXT NOT NULL,
		serial_no TEXT NOT NULL DEFAULT '',
		finance_book TEXT NOT NULL,
		status TEXT NOT NULL,
		next_due TEXT,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_parent
		ON schedules(asset_id, serial_no);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_one_active
		ON schedules(asset_id, serial_no, finance_book)
		WHERE status = 'Active';

	-- Hot path of the posting sweep
	CREATE INDEX IF NOT EXISTS idx_schedules_due
		ON schedules(status, next_due);

	-- Postings (append-only ledger; status and schedule link may change)
	CREATE TABLE IF NOT EXISTS postings (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		row_id TEXT NOT NULL,
		finance_book TEXT NOT NULL,
		posting_date TEXT NOT NULL,
		status TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_postings_schedule
		ON postings(schedule_id, posting_date);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_postings_submitted_key
		ON postings(idempotency_key)
		WHERE status = 'Submitted';

	CREATE TABLE IF NOT EXISTS repairs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		asset_id TEXT NOT NULL,
		serial_no TEXT NOT NULL DEFAULT '',
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_repairs_parent
		ON repairs(asset_id, serial_no);

	CREATE TABLE IF NOT EXISTS revaluations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		asset_id TEXT NOT NULL,
		serial_no TEXT NOT NULL DEFAULT '',
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_revaluations_parent
		ON revaluations(asset_id, serial_no);

	CREATE TABLE IF NOT EXISTS activities (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_asset
		ON activities(asset_id);

	CREATE TABLE IF NOT EXISTS companies (
		name TEXT PRIMARY KEY,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		name TEXT PRIMARY KEY,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		name TEXT PRIMARY KEY,
		company TEXT NOT NULL DEFAULT '',
		data_json TEXT NOT NULL
	);

	-- Sweep runs (scheduled posting history)
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		run_date TEXT NOT NULL,
		status TEXT NOT NULL,
		schedules INTEGER DEFAULT 0,
		postings INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_date
		ON sweep_runs(run_date);
`

// =============================================================================
// TRANSACTIONAL STORE (depreciation.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(depreciation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx, now: s.now}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset deletes all data. For demos and tests only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"assets", "serial_units", "templates", "schedules", "postings", "repairs",
		"revaluations", "activities", "companies", "categories", "accounts", "sweep_runs",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

var (
	_ depreciation.TxStore = (*Store)(nil)
	_ depreciation.Store   = (*queries)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (q *queries) timestamp() string {
	return q.now().UTC().Format(timeLayout)
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return string(b), nil
}

func decode(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}

// getDocument loads one data_json column into v.
func (q *queries) getDocument(ctx context.Context, kind, id, query string, v any) error {
	var data string
	err := q.q.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s %q: %w", kind, id, err)
	}
	return decode(data, v)
}

// listDocuments runs query and decodes every data_json row with fn.
func (q *queries) listDocuments(ctx context.Context, query string, fn func(data string) error, args ...any) error {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan: %w", err)
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return rows.Err()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, depreciation.ErrNotFound)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
