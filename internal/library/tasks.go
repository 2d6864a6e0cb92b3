package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/murmurapp/murmur/internal/bus"
	"github.com/murmurapp/murmur/internal/storage"
)

type TaskStatus string

const (
	TaskStatusOpen    TaskStatus = "open"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusDropped TaskStatus = "dropped"
)

// Task is one captured to-do record.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

const taskColumns = `id, title, status, due_at, completed_at, created_at, updated_at`

func scanTask(scanFn func(dest ...any) error) (Task, error) {
	var t Task
	var due, completed sql.NullTime
	if err := scanFn(&t.ID, &t.Title, &t.Status, &due, &completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	if due.Valid {
		d := due.Time
		t.DueAt = &d
	}
	if completed.Valid {
		c := completed.Time
		t.CompletedAt = &c
	}
	return t, nil
}

// CreateTask records a new open task.
func (l *Library) CreateTask(ctx context.Context, title string, dueAt *time.Time) (string, error) {
	if title == "" {
		return "", fmt.Errorf("task title is required")
	}
	id := uuid.NewString()
	var due sql.NullTime
	if dueAt != nil {
		due = sql.NullTime{Time: *dueAt, Valid: true}
	}
	_, err := l.store.Run(ctx, `
		INSERT INTO tasks (id, title, status, due_at)
		VALUES (?, ?, ?, ?);
	`, id, title, TaskStatusOpen, due)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	l.publish(bus.TopicTaskCreated, bus.EntityEvent{ID: id})
	return id, nil
}

// GetTask looks up one task by id.
func (l *Library) GetTask(ctx context.Context, id string) (Task, bool, error) {
	return storage.QueryOne(ctx, l.store,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?;`,
		func(row *sql.Row) (Task, error) { return scanTask(row.Scan) },
		id)
}

// ListTasks returns tasks with the given status, oldest due first.
func (l *Library) ListTasks(ctx context.Context, status TaskStatus, limit int) ([]Task, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return storage.QueryAll(ctx, l.store, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = ?
		ORDER BY due_at IS NULL, due_at ASC, created_at ASC
		LIMIT ?;
	`, func(rows *sql.Rows) (Task, error) { return scanTask(rows.Scan) },
		status, limit)
}

// CompleteTask marks an open task done. It reports false when the task does
// not exist or is not open.
func (l *Library) CompleteTask(ctx context.Context, id string) (bool, error) {
	res, err := l.store.Run(ctx, `
		UPDATE tasks
		SET status = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?;
	`, TaskStatusDone, id, TaskStatusOpen)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	l.publish(bus.TopicTaskCompleted, bus.EntityEvent{ID: id})
	return true, nil
}

// DropTask marks an open task dropped without completing it.
func (l *Library) DropTask(ctx context.Context, id string) (bool, error) {
	res, err := l.store.Run(ctx, `
		UPDATE tasks
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?;
	`, TaskStatusDropped, id, TaskStatusOpen)
	if err != nil {
		return false, fmt.Errorf("drop task: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// DeleteTask removes a task. Linked notes survive with their task reference
// cleared by the schema's ON DELETE SET NULL.
func (l *Library) DeleteTask(ctx context.Context, id string) error {
	if _, err := l.store.Run(ctx, `DELETE FROM tasks WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
