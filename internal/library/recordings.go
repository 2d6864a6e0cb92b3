package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/murmurapp/murmur/internal/bus"
	"github.com/murmurapp/murmur/internal/storage"
)

// ErrDuplicateRecording is returned when a recording path is already
// registered.
var ErrDuplicateRecording = errors.New("recording path already registered")

// Recording is the metadata for one captured audio file. The audio itself
// lives on disk; only its path and transcript state are stored.
type Recording struct {
	ID            string     `json:"id"`
	NoteID        string     `json:"note_id,omitempty"`
	Path          string     `json:"path"`
	DurationMs    int64      `json:"duration_ms"`
	Transcript    string     `json:"transcript,omitempty"`
	TranscribedAt *time.Time `json:"transcribed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

const recordingColumns = `id, COALESCE(note_id, ''), path, duration_ms, COALESCE(transcript, ''), transcribed_at, created_at`

func scanRecording(scanFn func(dest ...any) error) (Recording, error) {
	var r Recording
	var transcribed sql.NullTime
	if err := scanFn(&r.ID, &r.NoteID, &r.Path, &r.DurationMs, &r.Transcript, &transcribed, &r.CreatedAt); err != nil {
		return Recording{}, err
	}
	if transcribed.Valid {
		ts := transcribed.Time
		r.TranscribedAt = &ts
	}
	return r, nil
}

// RegisterRecording records a captured audio file, optionally linked to a
// note. Registering the same path twice returns ErrDuplicateRecording.
func (l *Library) RegisterRecording(ctx context.Context, noteID, path string, durationMs int64) (string, error) {
	if path == "" {
		return "", fmt.Errorf("recording path is required")
	}
	id := uuid.NewString()
	var note sql.NullString
	if noteID != "" {
		note = sql.NullString{String: noteID, Valid: true}
	}
	_, err := l.store.Run(ctx, `
		INSERT INTO recordings (id, note_id, path, duration_ms)
		VALUES (?, ?, ?, ?);
	`, id, note, path, durationMs)
	if err != nil {
		if storage.IsConstraintViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateRecording, path)
		}
		return "", fmt.Errorf("insert recording: %w", err)
	}
	l.publish(bus.TopicRecordingAdded, bus.EntityEvent{ID: id})
	return id, nil
}

// GetRecording looks up one recording by id.
func (l *Library) GetRecording(ctx context.Context, id string) (Recording, bool, error) {
	return storage.QueryOne(ctx, l.store,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?;`,
		func(row *sql.Row) (Recording, error) { return scanRecording(row.Scan) },
		id)
}

// ListUntranscribed returns recordings still waiting for a transcript,
// oldest first, for the transcription worker to drain.
func (l *Library) ListUntranscribed(ctx context.Context, limit int) ([]Recording, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	return storage.QueryAll(ctx, l.store, `
		SELECT `+recordingColumns+`
		FROM recordings
		WHERE transcribed_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?;
	`, func(rows *sql.Rows) (Recording, error) { return scanRecording(rows.Scan) },
		limit)
}

// AttachTranscript stores a recording's transcript and appends it to the
// linked note's body in the same transaction, so the note and the recording
// can never disagree about transcription state.
func (l *Library) AttachTranscript(ctx context.Context, id, transcript string) error {
	return l.store.InTransaction(ctx, func(tx *sql.Tx) error {
		var noteID sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT note_id FROM recordings WHERE id = ? AND transcribed_at IS NULL;`, id,
		).Scan(&noteID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("recording %s not found or already transcribed", id)
		}
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE recordings
			SET transcript = ?, transcribed_at = CURRENT_TIMESTAMP
			WHERE id = ?;
		`, transcript, id); err != nil {
			return fmt.Errorf("store transcript: %w", err)
		}
		if noteID.Valid {
			if _, err := tx.ExecContext(ctx, `
				UPDATE notes
				SET body = CASE WHEN body = '' THEN ? ELSE body || char(10) || ? END,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?;
			`, transcript, transcript, noteID.String); err != nil {
				return fmt.Errorf("append transcript to note: %w", err)
			}
		}
		return nil
	})
}

// PurgeRecordingsBefore deletes recording rows created before the cutoff and
// returns how many were removed. Deleting the audio files themselves is the
// caller's concern.
func (l *Library) PurgeRecordingsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := l.store.Run(ctx, `
		DELETE FROM recordings WHERE created_at < ?;
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge recordings: %w", err)
	}
	if res.RowsAffected > 0 {
		l.publish(bus.TopicRecordingPurged, bus.SweepEvent{RecordingsPurged: int(res.RowsAffected)})
	}
	return int(res.RowsAffected), nil
}
