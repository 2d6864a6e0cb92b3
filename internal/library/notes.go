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

// Note is one text note, optionally linked to a task.
type Note struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

const noteColumns = `id, COALESCE(task_id, ''), title, body, archived_at, created_at, updated_at`

func scanNote(scanFn func(dest ...any) error) (Note, error) {
	var n Note
	var archived sql.NullTime
	if err := scanFn(&n.ID, &n.TaskID, &n.Title, &n.Body, &archived, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return Note{}, err
	}
	if archived.Valid {
		a := archived.Time
		n.ArchivedAt = &a
	}
	return n, nil
}

// CreateNote records a standalone note.
func (l *Library) CreateNote(ctx context.Context, title, body string) (string, error) {
	id := uuid.NewString()
	_, err := l.store.Run(ctx, `
		INSERT INTO notes (id, title, body)
		VALUES (?, ?, ?);
	`, id, title, body)
	if err != nil {
		return "", fmt.Errorf("insert note: %w", err)
	}
	l.publish(bus.TopicNoteCreated, bus.EntityEvent{ID: id})
	return id, nil
}

// CaptureTask creates a task and a note linked to it as one atomic unit.
// Either both rows exist afterwards or neither does.
func (l *Library) CaptureTask(ctx context.Context, title, body string, dueAt *time.Time) (taskID, noteID string, err error) {
	if title == "" {
		return "", "", fmt.Errorf("task title is required")
	}
	taskID = uuid.NewString()
	noteID = uuid.NewString()
	var due sql.NullTime
	if dueAt != nil {
		due = sql.NullTime{Time: *dueAt, Valid: true}
	}
	err = l.store.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, title, status, due_at)
			VALUES (?, ?, ?, ?);
		`, taskID, title, TaskStatusOpen, due); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes (id, task_id, title, body)
			VALUES (?, ?, ?, ?);
		`, noteID, taskID, title, body); err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	l.publish(bus.TopicTaskCreated, bus.EntityEvent{ID: taskID})
	l.publish(bus.TopicNoteCreated, bus.EntityEvent{ID: noteID})
	return taskID, noteID, nil
}

// GetNote looks up one note by id.
func (l *Library) GetNote(ctx context.Context, id string) (Note, bool, error) {
	return storage.QueryOne(ctx, l.store,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?;`,
		func(row *sql.Row) (Note, error) { return scanNote(row.Scan) },
		id)
}

// ListNotes returns unarchived notes, newest first.
func (l *Library) ListNotes(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return storage.QueryAll(ctx, l.store, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE archived_at IS NULL
		ORDER BY created_at DESC
		LIMIT ?;
	`, func(rows *sql.Rows) (Note, error) { return scanNote(rows.Scan) },
		limit)
}

// UpdateNoteBody replaces a note's body. The FTS triggers keep the search
// index in sync.
func (l *Library) UpdateNoteBody(ctx context.Context, id, body string) (bool, error) {
	res, err := l.store.Run(ctx, `
		UPDATE notes
		SET body = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?;
	`, body, id)
	if err != nil {
		return false, fmt.Errorf("update note body: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// AttachNoteToTask links an existing note to an existing task.
func (l *Library) AttachNoteToTask(ctx context.Context, noteID, taskID string) error {
	res, err := l.store.Run(ctx, `
		UPDATE notes
		SET task_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?;
	`, taskID, noteID)
	if err != nil {
		return fmt.Errorf("attach note to task: %w", err)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("note %s not found", noteID)
	}
	return nil
}

// ArchiveNote hides a note from listings and search. Archived notes are
// hard-deleted later by the retention sweep.
func (l *Library) ArchiveNote(ctx context.Context, id string) (bool, error) {
	res, err := l.store.Run(ctx, `
		UPDATE notes
		SET archived_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND archived_at IS NULL;
	`, id)
	if err != nil {
		return false, fmt.Errorf("archive note: %w", err)
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	l.publish(bus.TopicNoteArchived, bus.EntityEvent{ID: id})
	return true, nil
}

// PurgeArchivedNotes hard-deletes notes archived before the cutoff and
// returns how many were removed.
func (l *Library) PurgeArchivedNotes(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := l.store.Run(ctx, `
		DELETE FROM notes
		WHERE archived_at IS NOT NULL AND archived_at < ?;
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge archived notes: %w", err)
	}
	return int(res.RowsAffected), nil
}
