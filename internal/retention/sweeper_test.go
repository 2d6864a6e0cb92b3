package retention_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/murmurapp/murmur/internal/bus"
	"github.com/murmurapp/murmur/internal/library"
	"github.com/murmurapp/murmur/internal/retention"
	"github.com/murmurapp/murmur/internal/storage"
)

func newTestSetup(t *testing.T) (*library.Library, *bus.Bus) {
	t.Helper()
	dir := t.TempDir()
	eventBus := bus.New()
	store := storage.NewManager(filepath.Join(dir, "murmur.db"))
	t.Cleanup(func() {
		_ = store.Close()
	})
	runner := storage.NewRunner(store)
	if err := runner.Run(context.Background(), storage.Migrations); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return library.New(store, eventBus, nil), eventBus
}

func TestSweeper_RejectsBadSchedule(t *testing.T) {
	lib, _ := newTestSetup(t)
	_, err := retention.NewSweeper(retention.Config{
		Library:  lib,
		Schedule: "every day at dawn",
	})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSweeper_SweepPurgesExpiredRows(t *testing.T) {
	lib, eventBus := newTestSetup(t)
	ctx := context.Background()

	if _, err := lib.RegisterRecording(ctx, "", "/audio/stale.wav", 100); err != nil {
		t.Fatalf("register: %v", err)
	}
	noteID, err := lib.CreateNote(ctx, "stale", "archived long ago")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := lib.ArchiveNote(ctx, noteID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	keepID, err := lib.CreateNote(ctx, "fresh", "never archived")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	sub := eventBus.Subscribe(bus.TopicRetentionSweep)
	defer eventBus.Unsubscribe(sub)

	// Negative TTLs move the cutoff into the future so rows created just
	// now count as expired.
	sweeper, err := retention.NewSweeper(retention.Config{
		Library:         lib,
		Bus:             eventBus,
		Schedule:        "0 3 * * *",
		RecordingTTL:    -time.Hour,
		ArchivedNoteTTL: -time.Hour,
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.Sweep(ctx)

	select {
	case ev := <-sub.Ch():
		sweep, ok := ev.Payload.(bus.SweepEvent)
		if !ok {
			t.Fatalf("payload = %T", ev.Payload)
		}
		if sweep.RecordingsPurged != 1 || sweep.NotesPurged != 1 {
			t.Fatalf("sweep = %+v, want 1 recording and 1 note", sweep)
		}
	case <-time.After(time.Second):
		t.Fatal("no sweep event published")
	}

	if pending, err := lib.ListUntranscribed(ctx, 0); err != nil || len(pending) != 0 {
		t.Fatalf("recordings remain: %v err=%v", pending, err)
	}
	if _, found, err := lib.GetNote(ctx, keepID); err != nil || !found {
		t.Fatalf("unarchived note was purged: found=%v err=%v", found, err)
	}
}

func TestSweeper_SweepSparesYoungRows(t *testing.T) {
	lib, _ := newTestSetup(t)
	ctx := context.Background()

	recID, err := lib.RegisterRecording(ctx, "", "/audio/young.wav", 100)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	sweeper, err := retention.NewSweeper(retention.Config{
		Library:         lib,
		Schedule:        "0 3 * * *",
		RecordingTTL:    24 * time.Hour,
		ArchivedNoteTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.Sweep(ctx)

	if _, found, err := lib.GetRecording(ctx, recID); err != nil || !found {
		t.Fatalf("young recording purged: found=%v err=%v", found, err)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	lib, _ := newTestSetup(t)

	sweeper, err := retention.NewSweeper(retention.Config{
		Library:  lib,
		Schedule: "0 3 * * *",
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.Start(context.Background())
	sweeper.Stop()
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

	next, err := retention.NextRunTime("0 3 * * *", after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, time.August, 31, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	if _, err := retention.NextRunTime("not a schedule", after); err == nil {
		t.Fatal("expected parse error")
	}
}
