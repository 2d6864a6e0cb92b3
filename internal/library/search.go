package library

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/murmurapp/murmur/internal/storage"
)

// SearchResult is one note matched by a full-text query.
type SearchResult struct {
	NoteID  string  `json:"note_id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// SearchNotes runs an FTS5 MATCH query over note titles and bodies,
// best matches first. Archived notes are excluded. Ranking beyond bm25 is
// left to callers.
func (l *Library) SearchNotes(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	results, err := storage.QueryAll(ctx, l.store, `
		SELECT n.id, n.title,
			snippet(notes_fts, 1, '[', ']', '…', 12),
			bm25(notes_fts)
		FROM notes_fts
		JOIN notes n ON n.rowid = notes_fts.rowid
		WHERE notes_fts MATCH ? AND n.archived_at IS NULL
		ORDER BY bm25(notes_fts)
		LIMIT ?;
	`, func(rows *sql.Rows) (SearchResult, error) {
		var r SearchResult
		return r, rows.Scan(&r.NoteID, &r.Title, &r.Snippet, &r.Rank)
	}, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	return results, nil
}
