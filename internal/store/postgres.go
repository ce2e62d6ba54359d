package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/mindfields/api/schemas"
	"go.uber.org/zap"
)

// DBPool is the subset of pgxpool.Pool the store needs, so tests can use pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS training_runs (
            id          UUID PRIMARY KEY,
            started_at  TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL,
            executable  TEXT NOT NULL,
            args        TEXT[] NOT NULL,
            exit_code   INTEGER NOT NULL,
            output      TEXT NOT NULL,
            log_path    TEXT NOT NULL DEFAULT '',
            error       TEXT NOT NULL DEFAULT ''
        );
        CREATE INDEX IF NOT EXISTS training_runs_started_at_idx ON training_runs (started_at DESC);
    `
	sqlInsertRun = `
        INSERT INTO training_runs (id, started_at, finished_at, executable, args, exit_code, output, log_path, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at,
            exit_code = EXCLUDED.exit_code,
            error = EXCLUDED.error;
    `
	sqlSelectRuns = `
        SELECT id, started_at, finished_at, executable, args, exit_code, output, log_path, error
        FROM training_runs
    `
)

// Postgres stores runs in the training_runs table.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres creates a store and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("store")}, nil
}

// EnsureSchema creates the training_runs table when it does not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateRuns); err != nil {
		return fmt.Errorf("failed to create training_runs table: %w", err)
	}
	return nil
}

// Record upserts a run; re-recording the same id updates its outcome.
func (s *Postgres) Record(ctx context.Context, run *schemas.TrainingRun) error {
	args := run.Args
	if args == nil {
		args = []string{}
	}
	_, err := s.pool.Exec(ctx, sqlInsertRun,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Executable,
		args,
		run.ExitCode,
		run.Output,
		run.LogPath,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record training run %s: %w", run.ID, err)
	}
	s.log.Debug("Recorded training run", zap.Stringer("run_id", run.ID), zap.Int("exit_code", run.ExitCode))
	return nil
}

// List returns runs ordered by start time, newest first.
func (s *Postgres) List(ctx context.Context, limit int) ([]schemas.TrainingRun, error) {
	query := sqlSelectRuns + " ORDER BY started_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training runs: %w", err)
	}
	return runs, nil
}

// Get returns a single run.
func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (*schemas.TrainingRun, error) {
	row := s.pool.QueryRow(ctx, sqlSelectRuns+" WHERE id = $1", id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

func scanRun(row pgx.Row) (*schemas.TrainingRun, error) {
	var run schemas.TrainingRun
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Executable,
		&run.Args,
		&run.ExitCode,
		&run.Output,
		&run.LogPath,
		&run.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan training run: %w", err)
	}
	return &run, nil
}
