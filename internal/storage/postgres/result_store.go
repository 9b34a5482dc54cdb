// Package postgres mirrors verification results and run lifecycles into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkcheck/internal/table"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "link_results"

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStatus mirrors the runs table status column.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunCancelled RunStatus = "cancelled"
	RunError     RunStatus = "error"
)

// ResultStore writes resolved rows and run bookkeeping into Postgres.
type ResultStore struct {
	pool  execCloser
	table string
	now   func() time.Time
}

// New creates a Postgres-backed ResultStore using the provided config.
func New(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	tbl, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultStore{pool: pool, table: tbl, now: time.Now}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string, now func() time.Time) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &ResultStore{pool: pool, table: tbl, now: now}, nil
}

func tableName(name string) (string, error) {
	if name == "" {
		name = defaultTable
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

// Name identifies the mirror in logs.
func (s *ResultStore) Name() string {
	return "postgres://" + s.table
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the result and run tables when missing.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	rows := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	row_index INTEGER NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	status_detail TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, row_index)
)`, s.table)
	if _, err := s.pool.Exec(ctx, rows); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_runs (
	run_id TEXT PRIMARY KEY,
	input_path TEXT NOT NULL,
	input_sha256 TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	valid INTEGER NOT NULL DEFAULT 0,
	invalid INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, runs); err != nil {
		return fmt.Errorf("create %s_runs: %w", s.table, err)
	}
	return nil
}

// MirrorRows upserts every resolved row of t under runID. Unresolved rows are
// skipped so a later run can fill them in.
func (s *ResultStore) MirrorRows(ctx context.Context, runID string, t *table.Table) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, row_index, url, status, status_detail, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (run_id, row_index) DO UPDATE
SET url = EXCLUDED.url,
	status = EXCLUDED.status,
	status_detail = EXCLUDED.status_detail,
	recorded_at = EXCLUDED.recorded_at`, s.table)

	at := s.now().UTC()
	for i, row := range t.Rows {
		if !row.Status.Resolved() {
			continue
		}
		if _, err := s.pool.Exec(ctx, query, runID, i, t.URL(i), string(row.Status), row.Detail, at); err != nil {
			return fmt.Errorf("upsert row %d: %w", i, err)
		}
	}
	return nil
}

// StartRun records a run as running. Restarting an existing run id resets its
// status without touching the original start time.
func (s *ResultStore) StartRun(ctx context.Context, runID, inputPath, inputSHA string) error {
	query := fmt.Sprintf(`
INSERT INTO %s_runs (run_id, input_path, input_sha256, started_at, status)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (run_id) DO UPDATE
SET status = EXCLUDED.status, finished_at = NULL, error_message = NULL`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, inputPath, inputSHA, s.now().UTC(), RunRunning); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun marks a run finished with its final counts.
func (s *ResultStore) FinishRun(
	ctx context.Context,
	runID string,
	status RunStatus,
	summary table.Summary,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s_runs
SET finished_at = $1, status = $2, total = $3, valid = $4, invalid = $5, error_message = $6
WHERE run_id = $7`, s.table)
	_, err := s.pool.Exec(
		ctx,
		query,
		s.now().UTC(),
		status,
		summary.Total,
		summary.Valid,
		summary.Invalid,
		errMsg,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
