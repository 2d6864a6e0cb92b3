package library

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/murmurapp/murmur/internal/storage"
)

// Tag is a label applied to notes.
type Tag struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	NoteCount int    `json:"note_count"`
}

// TagNote applies a tag to a note, creating the tag on first use. The tag
// insert and the join-row insert are one atomic unit.
func (l *Library) TagNote(ctx context.Context, noteID, name string) error {
	if name == "" {
		return fmt.Errorf("tag name is required")
	}
	err := l.store.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tags (name) VALUES (?)
			ON CONFLICT(name) DO NOTHING;
		`, name); err != nil {
			return fmt.Errorf("ensure tag: %w", err)
		}
		var tagID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM tags WHERE name = ?;`, name,
		).Scan(&tagID); err != nil {
			return fmt.Errorf("read tag id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO note_tags (note_id, tag_id) VALUES (?, ?)
			ON CONFLICT(note_id, tag_id) DO NOTHING;
		`, noteID, tagID); err != nil {
			return fmt.Errorf("tag note: %w", err)
		}
		return nil
	})
	if err != nil && storage.IsConstraintViolation(err) {
		// The FK on note_tags fires for unknown notes.
		return fmt.Errorf("note %s not found: %w", noteID, err)
	}
	return err
}

// UntagNote removes a tag from a note. Unused tags stay in the tags table.
func (l *Library) UntagNote(ctx context.Context, noteID, name string) error {
	_, err := l.store.Run(ctx, `
		DELETE FROM note_tags
		WHERE note_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ?);
	`, noteID, name)
	if err != nil {
		return fmt.Errorf("untag note: %w", err)
	}
	return nil
}

// NoteTags returns the tag names on a note, alphabetically.
func (l *Library) NoteTags(ctx context.Context, noteID string) ([]string, error) {
	return storage.QueryAll(ctx, l.store, `
		SELECT t.name
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id = ?
		ORDER BY t.name ASC;
	`, func(rows *sql.Rows) (string, error) {
		var name string
		return name, rows.Scan(&name)
	}, noteID)
}

// ListTags returns all tags with their note counts, most used first.
func (l *Library) ListTags(ctx context.Context) ([]Tag, error) {
	return storage.QueryAll(ctx, l.store, `
		SELECT t.id, t.name, COUNT(nt.note_id)
		FROM tags t
		LEFT JOIN note_tags nt ON nt.tag_id = t.id
		GROUP BY t.id, t.name
		ORDER BY COUNT(nt.note_id) DESC, t.name ASC;
	`, func(rows *sql.Rows) (Tag, error) {
		var t Tag
		return t, rows.Scan(&t.ID, &t.Name, &t.NoteCount)
	})
}
