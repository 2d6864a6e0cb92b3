package library_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/murmurapp/murmur/internal/bus"
	"github.com/murmurapp/murmur/internal/library"
	"github.com/murmurapp/murmur/internal/storage"
)

func newTestLibrary(t *testing.T) (*library.Library, *bus.Bus) {
	t.Helper()
	dir := t.TempDir()
	eventBus := bus.New()
	store := storage.NewManager(filepath.Join(dir, "murmur.db"), storage.WithBus(eventBus))
	t.Cleanup(func() {
		_ = store.Close()
	})

	runner := storage.NewRunner(store, storage.WithRunnerBus(eventBus))
	if err := runner.Run(context.Background(), storage.Migrations); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return library.New(store, eventBus, nil), eventBus
}
