package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/model"
	"github.com/sakif/todo-api/internal/repository"
)

// compile-time check that *TaskDB implements repository.TaskRepository
var _ repository.TaskRepository = (*TaskDB)(nil)

// TaskDB is the owner-scoped task store backed by the tasks table.
//
// OWNERSHIP RULE:
// Every statement below has "user_id = ?" in its WHERE clause. A task
// that exists but belongs to another user is therefore invisible: the
// query finds no row and the caller gets the same NotFound as for an ID
// that never existed. Nothing here trusts a user ID from a request body;
// ownerID always comes from the authorized URL path.
type TaskDB struct {
	db *DB
}

// Tasks returns the task repository over this pool.
func (db *DB) Tasks() *TaskDB {
	return &TaskDB{db: db}
}

const taskColumns = `id, user_id, title, completed, created_at, updated_at`

// Create inserts a new task. ID and timestamps are generated here and
// Completed always starts false.
func (s *TaskDB) Create(ctx context.Context, task *model.Task) error {
	ts := now()
	task.ID = xid.New().String()
	task.Completed = false
	task.CreatedAt = ts
	task.UpdatedAt = ts

	_, err := s.db.conn.ExecContext(ctx,
		s.db.dialect.rebind(`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		task.ID,
		task.UserID,
		task.Title,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating task: %w", err)
	}
	return nil
}

// ListByOwner returns all of the owner's tasks, newest first. The id
// tiebreak keeps the order stable for tasks created in the same instant
// (xids sort by creation time).
func (s *TaskDB) ListByOwner(ctx context.Context, ownerID string) ([]model.Task, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		s.db.dialect.rebind(`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing tasks: %w", err)
	}
	// CRITICAL: rows holds a pooled connection until closed.
	defer rows.Close()

	// Non-nil so an empty list encodes as [] rather than null.
	tasks := make([]model.Task, 0)
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating tasks: %w", err)
	}
	return tasks, nil
}

// GetByID returns the task only if ownerID owns it.
func (s *TaskDB) GetByID(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	return s.get(ctx, s.db.conn, ownerID, taskID)
}

// Update applies a partial update. Nil fields keep their value; any
// supplied field refreshes updated_at. An empty patch is a read.
//
// The read and the write share one transaction so the returned task is
// exactly what was stored.
func (s *TaskDB) Update(ctx context.Context, ownerID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	var task *model.Task
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		t, err := s.get(ctx, tx, ownerID, taskID)
		if err != nil {
			return err
		}
		if patch.Empty() {
			task = t
			return nil
		}

		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Completed != nil {
			t.Completed = *patch.Completed
		}
		t.UpdatedAt = nextTimestamp(t.UpdatedAt)

		if _, err := tx.ExecContext(ctx,
			s.db.dialect.rebind(`UPDATE tasks SET title = ?, completed = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?`),
			t.Title, t.Completed, t.UpdatedAt, taskID, ownerID,
		); err != nil {
			return fmt.Errorf("sqlstore: updating task %s: %w", taskID, err)
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ToggleCompletion flips completed and moves updated_at strictly forward.
//
// "completed = NOT completed" lets the database do the flip, so two
// concurrent toggles each flip once instead of both writing the same
// value read earlier.
func (s *TaskDB) ToggleCompletion(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	var task *model.Task
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		before, err := s.get(ctx, tx, ownerID, taskID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			s.db.dialect.rebind(`UPDATE tasks SET completed = NOT completed, updated_at = ?
			 WHERE id = ? AND user_id = ?`),
			nextTimestamp(before.UpdatedAt), taskID, ownerID,
		); err != nil {
			return fmt.Errorf("sqlstore: toggling task %s: %w", taskID, err)
		}

		task, err = s.get(ctx, tx, ownerID, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes the task if ownerID owns it and reports whether a row
// went away.
func (s *TaskDB) Delete(ctx context.Context, ownerID, taskID string) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx,
		s.db.dialect.rebind(`DELETE FROM tasks WHERE id = ? AND user_id = ?`),
		taskID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: deleting task %s: %w", taskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking delete result: %w", err)
	}
	return n > 0, nil
}

func (s *TaskDB) get(ctx context.Context, q queryRower, ownerID, taskID string) (*model.Task, error) {
	var t model.Task
	err := q.QueryRowContext(ctx,
		s.db.dialect.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`),
		taskID, ownerID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", taskID)
		}
		return nil, fmt.Errorf("sqlstore: getting task %s: %w", taskID, err)
	}
	return &t, nil
}
