package storage

import (
	"context"
	"database/sql"
)

// Migrations is the full schema history for the Murmur store, in the order
// it grew. Append-only: released versions are never edited.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create_tasks",
		Up:      execAll(taskTablesUp),
		Down:    execAll([]string{`DROP TABLE IF EXISTS tasks;`}),
	},
	{
		Version: 2,
		Name:    "create_notes_tags",
		Up:      execAll(noteTablesUp),
		Down: execAll([]string{
			`DROP TABLE IF EXISTS note_tags;`,
			`DROP TABLE IF EXISTS tags;`,
			`DROP TABLE IF EXISTS notes;`,
		}),
	},
	{
		Version: 3,
		Name:    "create_recordings",
		Up:      execAll(recordingTablesUp),
		Down:    execAll([]string{`DROP TABLE IF EXISTS recordings;`}),
	},
	{
		Version: 4,
		Name:    "notes_search_index",
		Up:      execAll(searchIndexUp),
		Down: execAll([]string{
			`DROP TRIGGER IF EXISTS notes_fts_ai;`,
			`DROP TRIGGER IF EXISTS notes_fts_ad;`,
			`DROP TRIGGER IF EXISTS notes_fts_au;`,
			`DROP TABLE IF EXISTS notes_fts;`,
		}),
	},
}

// execAll adapts a statement list into a migration step.
func execAll(stmts []string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

var taskTablesUp = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'done', 'dropped')),
		due_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks(status, due_at);`,
}

var noteTablesUp = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		task_id TEXT REFERENCES tasks(id) ON DELETE SET NULL,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		archived_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS note_tags (
		note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (note_id, tag_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_notes_task ON notes(task_id);`,
	`CREATE INDEX IF NOT EXISTS idx_notes_archived ON notes(archived_at);`,
}

var recordingTablesUp = []string{
	`CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		note_id TEXT REFERENCES notes(id) ON DELETE SET NULL,
		path TEXT NOT NULL UNIQUE,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		transcript TEXT,
		transcribed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_note ON recordings(note_id);`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at);`,
}

// searchIndexUp builds the FTS5 index over note text plus the triggers that
// keep it in sync with the notes table.
var searchIndexUp = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
		title,
		body,
		content=notes,
		content_rowid=rowid,
		tokenize='porter unicode61'
	);`,
	`CREATE TRIGGER IF NOT EXISTS notes_fts_ai AFTER INSERT ON notes BEGIN
		INSERT INTO notes_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS notes_fts_ad AFTER DELETE ON notes BEGIN
		INSERT INTO notes_fts(notes_fts, rowid, title, body) VALUES('delete', old.rowid, old.title, old.body);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS notes_fts_au AFTER UPDATE ON notes BEGIN
		INSERT INTO notes_fts(notes_fts, rowid, title, body) VALUES('delete', old.rowid, old.title, old.body);
		INSERT INTO notes_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
	END;`,
}
