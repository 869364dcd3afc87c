package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// Repository stores runs, execution log rows and traces in a DuckDB file.
// An empty path opens an in-memory database.
type Repository struct {
	db *sql.DB
}

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Ensure Repository implements the persistence ports
var (
	_ ports.RunRepository = (*Repository)(nil)
	_ ports.ExecutionLog  = (*Repository)(nil)
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         VARCHAR PRIMARY KEY,
		goal       VARCHAR,
		status     VARCHAR,
		steps      INTEGER,
		report     VARCHAR,
		started_at TIMESTAMP,
		ended_at   TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS execution_log (
		run_id    VARCHAR,
		step      INTEGER,
		action    VARCHAR,
		result    VARCHAR,
		success   BOOLEAN,
		logged_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS traces (
		id           VARCHAR PRIMARY KEY,
		run_id       VARCHAR,
		name         VARCHAR,
		status       VARCHAR,
		root_span_id VARCHAR,
		start_time   TIMESTAMP,
		end_time     TIMESTAMP,
		duration_ms  BIGINT,
		span_count   INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS spans (
		id          VARCHAR PRIMARY KEY,
		trace_id    VARCHAR,
		parent_id   VARCHAR,
		step        INTEGER,
		name        VARCHAR,
		kind        VARCHAR,
		status      VARCHAR,
		input       VARCHAR,
		output      VARCHAR,
		error       VARCHAR,
		attributes  VARCHAR,
		start_time  TIMESTAMP,
		end_time    TIMESTAMP,
		duration_ms BIGINT
	)`,
	`ALTER TABLE spans ADD COLUMN IF NOT EXISTS step INTEGER`,
}

func (r *Repository) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveRun upserts a run summary.
func (r *Repository) SaveRun(ctx context.Context, run domain.RunSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, goal, status, steps, report, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status   = excluded.status,
			steps    = excluded.steps,
			report   = excluded.report,
			ended_at = excluded.ended_at`,
		string(run.ID), validText(run.Goal), string(run.Status), run.Steps, validText(run.Report),
		run.StartedAt, run.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (r *Repository) GetRun(ctx context.Context, id domain.RunID) (domain.RunSummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, goal, status, steps, report, started_at, ended_at
		FROM runs WHERE id = ?`, string(id))

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunSummary{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, goal, status, steps, report, started_at, ended_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []domain.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.RunSummary, error) {
	var run domain.RunSummary
	var id, status string
	err := row.Scan(&id, &run.Goal, &status, &run.Steps, &run.Report, &run.StartedAt, &run.EndedAt)
	if err != nil {
		return domain.RunSummary{}, err
	}
	run.ID = domain.RunID(id)
	run.Status = domain.RunStatus(status)
	return run, nil
}

// Append writes one execution log row.
func (r *Repository) Append(ctx context.Context, rec domain.ExecutionLogRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO execution_log (run_id, step, action, result, success, logged_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Step, validText(rec.Action), validText(rec.Result), rec.Success, ts,
	)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

// ListExecutionLog returns the rows of one run in step order.
func (r *Repository) ListExecutionLog(ctx context.Context, runID domain.RunID) ([]domain.ExecutionLogRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, step, action, result, success, logged_at
		FROM execution_log WHERE run_id = ?
		ORDER BY logged_at ASC, step ASC`, string(runID))
	if err != nil {
		return nil, fmt.Errorf("list execution log: %w", err)
	}
	defer rows.Close()

	out := []domain.ExecutionLogRecord{}
	for rows.Next() {
		var rec domain.ExecutionLogRecord
		if err := rows.Scan(&rec.RunID, &rec.Step, &rec.Action, &rec.Result, &rec.Success, &rec.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
