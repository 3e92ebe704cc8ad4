package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schedai/internal/models"
)

// Schema creates the tasks table used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id      TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	start_time   TIMESTAMPTZ NOT NULL,
	end_time     TIMESTAMPTZ NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS tasks_user_start_idx ON tasks (user_id, start_time);
`

const taskColumns = `id::text, user_id, title, description, start_time, end_time, category, location, is_completed, created_at`

// PostgresStore keeps tasks in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dbURL and verifies the connection.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("tasks: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tasks: failed to reach database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Ping checks database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate creates the tasks table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("tasks: migrate: %w", err)
	}
	return nil
}

// ListTasks returns the user's tasks ordered by start time.
func (s *PostgresStore) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY start_time ASC`, userID)
}

// PendingTasks returns the user's incomplete tasks ordered by start time.
func (s *PostgresStore) PendingTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND NOT is_completed ORDER BY start_time ASC`, userID)
}

// CreateTask inserts a task.
func (s *PostgresStore) CreateTask(ctx context.Context, data models.CreateTaskData) (models.Task, error) {
	if err := validateCreate(data); err != nil {
		return models.Task{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (user_id, title, description, start_time, end_time, category, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+taskColumns,
		data.UserID, data.Title, data.Description, data.StartTime, data.EndTime, data.Category, data.Location,
	)
	task, err := scanTask(row)
	if err != nil {
		return models.Task{}, fmt.Errorf("tasks: insert: %w", err)
	}
	return task, nil
}

// SetCompleted marks a task complete or pending.
func (s *PostgresStore) SetCompleted(ctx context.Context, id string, completed bool) (models.Task, error) {
	row := s.pool.QueryRow(ctx, `UPDATE tasks SET is_completed = $2 WHERE id::text = $1 RETURNING `+taskColumns, id, completed)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("tasks: update: %w", err)
	}
	return task, nil
}

// UpdateTask applies a partial edit to a task within one transaction.
func (s *PostgresStore) UpdateTask(ctx context.Context, id string, data models.UpdateTaskData) (models.Task, error) {
	var updated models.Task
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id::text = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("tasks: select: %w", err)
		}
		task := data.Apply(current)
		if err := validateTask(task); err != nil {
			return err
		}
		updated, err = scanTask(tx.QueryRow(ctx, `
			UPDATE tasks
			SET title = $2, description = $3, start_time = $4, end_time = $5,
				category = $6, location = $7, is_completed = $8
			WHERE id::text = $1
			RETURNING `+taskColumns,
			id, task.Title, task.Description, task.StartTime, task.EndTime, task.Category, task.Location, task.IsCompleted,
		))
		if err != nil {
			return fmt.Errorf("tasks: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return updated, nil
}

// DeleteTask removes a task.
func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("tasks: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks: query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("tasks: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tasks: rows: %w", err)
	}
	return out, nil
}

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.StartTime, &t.EndTime, &t.Category, &t.Location, &t.IsCompleted, &t.CreatedAt)
	return t, err
}
