package library_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/murmurapp/murmur/internal/library"
)

func TestRecordings_RegisterAndGet(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	id, err := lib.RegisterRecording(ctx, "", "/audio/2026-08-30-0900.wav", 42000)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rec, found, err := lib.GetRecording(ctx, id)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if rec.Path != "/audio/2026-08-30-0900.wav" || rec.DurationMs != 42000 {
		t.Fatalf("recording = %+v", rec)
	}
	if rec.TranscribedAt != nil {
		t.Fatal("fresh recording already marked transcribed")
	}
}

func TestRecordings_DuplicatePathRejected(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	if _, err := lib.RegisterRecording(ctx, "", "/audio/one.wav", 1000); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := lib.RegisterRecording(ctx, "", "/audio/one.wav", 2000)
	if !errors.Is(err, library.ErrDuplicateRecording) {
		t.Fatalf("err = %v, want ErrDuplicateRecording", err)
	}
}

func TestRecordings_AttachTranscriptAppendsToNote(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	noteID, err := lib.CreateNote(ctx, "walk", "initial thought")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	recID, err := lib.RegisterRecording(ctx, noteID, "/audio/walk.wav", 9000)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := lib.AttachTranscript(ctx, recID, "remember to call the plumber"); err != nil {
		t.Fatalf("attach transcript: %v", err)
	}

	rec, _, err := lib.GetRecording(ctx, recID)
	if err != nil {
		t.Fatalf("get recording: %v", err)
	}
	if rec.Transcript != "remember to call the plumber" || rec.TranscribedAt == nil {
		t.Fatalf("recording = %+v", rec)
	}

	note, _, err := lib.GetNote(ctx, noteID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	want := "initial thought\nremember to call the plumber"
	if note.Body != want {
		t.Fatalf("note body = %q, want %q", note.Body, want)
	}

	// A recording can only be transcribed once.
	if err := lib.AttachTranscript(ctx, recID, "again"); err == nil {
		t.Fatal("expected error for second transcript")
	}
	if !strings.Contains(note.Body, "initial thought") {
		t.Fatalf("note body lost original text: %q", note.Body)
	}
}

func TestRecordings_ListUntranscribedDrains(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	first, err := lib.RegisterRecording(ctx, "", "/audio/a.wav", 100)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := lib.RegisterRecording(ctx, "", "/audio/b.wav", 100); err != nil {
		t.Fatalf("register: %v", err)
	}

	pending, err := lib.ListUntranscribed(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := lib.AttachTranscript(ctx, first, "done"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	pending, err = lib.ListUntranscribed(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].Path != "/audio/b.wav" {
		t.Fatalf("pending = %+v, want only b.wav", pending)
	}
}

func TestRecordings_PurgeBeforeCutoff(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	id, err := lib.RegisterRecording(ctx, "", "/audio/old.wav", 100)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	n, err := lib.PurgeRecordingsBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 0 {
		t.Fatalf("purged %d with past cutoff, want 0", n)
	}

	n, err = lib.PurgeRecordingsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	_, found, err := lib.GetRecording(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("recording survived purge")
	}
}
