// internal/store/store.go

// Package store records trajectories to PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateSchema = `
        CREATE TABLE IF NOT EXISTS trajectories (
            id TEXT PRIMARY KEY,
            start_url TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            steps INTEGER NOT NULL DEFAULT 0,
            done BOOLEAN NOT NULL DEFAULT FALSE,
            truncated BOOLEAN NOT NULL DEFAULT FALSE
        );
        CREATE TABLE IF NOT EXISTS trajectory_steps (
            trajectory_id TEXT NOT NULL REFERENCES trajectories (id) ON DELETE CASCADE,
            step_index INTEGER NOT NULL,
            url TEXT NOT NULL,
            processed_text TEXT NOT NULL,
            response TEXT NOT NULL,
            function_calls JSONB NOT NULL,
            status TEXT NOT NULL,
            done BOOLEAN NOT NULL,
            truncated BOOLEAN NOT NULL,
            error TEXT NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (trajectory_id, step_index)
        );
    `
	sqlInsertTrajectory = `
        INSERT INTO trajectories (id, start_url, started_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING;
    `
	sqlInsertStep = `
        INSERT INTO trajectory_steps (trajectory_id, step_index, url, processed_text, response, function_calls, status, done, truncated, error, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (trajectory_id, step_index) DO UPDATE SET
            url = EXCLUDED.url,
            processed_text = EXCLUDED.processed_text,
            response = EXCLUDED.response,
            function_calls = EXCLUDED.function_calls,
            status = EXCLUDED.status,
            done = EXCLUDED.done,
            truncated = EXCLUDED.truncated,
            error = EXCLUDED.error,
            recorded_at = EXCLUDED.recorded_at;
    `
	sqlUpdateTrajectory = `
        UPDATE trajectories
        SET steps = GREATEST(steps, $2 + 1), done = done OR $3, truncated = truncated OR $4
        WHERE id = $1;
    `
	sqlSelectSteps = `
        SELECT step_index, url, processed_text, response, function_calls, status, done, truncated, error, recorded_at
        FROM trajectory_steps
        WHERE trajectory_id = $1
        ORDER BY step_index ASC;
    `
)

// Store persists trajectories through a pgx pool.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StartTrajectory registers a new trajectory. Registering the same id twice is a no-op.
func (s *Store) StartTrajectory(ctx context.Context, t *schemas.Trajectory) error {
	if _, err := s.pool.Exec(ctx, sqlInsertTrajectory, t.ID, t.StartURL, t.StartedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert trajectory %s: %w", t.ID, err)
	}
	return nil
}

// RecordStep stores one step and updates the trajectory summary in a single transaction.
func (s *Store) RecordStep(ctx context.Context, step *schemas.TrajectoryStep) error {
	calls := step.FunctionCalls
	if calls == nil {
		calls = []schemas.FunctionCall{}
	}
	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(calls)
	if err != nil {
		return fmt.Errorf("failed to encode function calls: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertStep,
		step.TrajectoryID, step.Index, step.URL, step.ProcessedText, step.Response,
		json.RawMessage(encoded), string(step.Status), step.Done, step.Truncated, step.Error,
		step.RecordedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert step %d of trajectory %s: %w", step.Index, step.TrajectoryID, err)
	}

	tag, err := tx.Exec(ctx, sqlUpdateTrajectory, step.TrajectoryID, step.Index, step.Done, step.Truncated)
	if err != nil {
		return fmt.Errorf("failed to update trajectory %s: %w", step.TrajectoryID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("trajectory %s is not registered", step.TrajectoryID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Steps returns the recorded steps of a trajectory in order.
func (s *Store) Steps(ctx context.Context, trajectoryID string) ([]schemas.TrajectoryStep, error) {
	rows, err := s.pool.Query(ctx, sqlSelectSteps, trajectoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []schemas.TrajectoryStep
	for rows.Next() {
		step := schemas.TrajectoryStep{TrajectoryID: trajectoryID}
		var calls []byte
		var status string
		if err := rows.Scan(
			&step.Index, &step.URL, &step.ProcessedText, &step.Response, &calls,
			&status, &step.Done, &step.Truncated, &step.Error, &step.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(calls, &step.FunctionCalls); err != nil {
			return nil, fmt.Errorf("failed to decode function calls of step %d: %w", step.Index, err)
		}
		step.Status = schemas.Status(status)
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return steps, nil
}
