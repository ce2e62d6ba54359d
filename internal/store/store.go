// Package store keeps the history of training runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/mindfields/api/schemas"
	"github.com/xkilldash9x/mindfields/internal/config"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned by Get when no run has the requested id.
var ErrRunNotFound = errors.New("training run not found")

// HistoryFile is the name of the file backend's history under runs.dir.
const HistoryFile = "runs.jsonl"

// RunStore persists training runs.
type RunStore interface {
	Record(ctx context.Context, run *schemas.TrainingRun) error
	// List returns at most limit runs, newest first. A limit <= 0 returns all runs.
	List(ctx context.Context, limit int) ([]schemas.TrainingRun, error)
	Get(ctx context.Context, id uuid.UUID) (*schemas.TrainingRun, error)
	Close()
}

// Open selects the PostgreSQL backend when a database URL is configured and
// the file backend under runs.dir otherwise.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (RunStore, error) {
	if cfg.Database.URL == "" {
		logger.Debug("Using file-backed run history", zap.String("dir", cfg.Runs.Dir))
		return NewFile(filepath.Join(cfg.Runs.Dir, HistoryFile), logger), nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
