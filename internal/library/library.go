// Package library holds Murmur's domain services: tasks, notes, tags,
// recordings, and note search. Every service goes through the storage
// manager's operation surface and never opens its own database handle.
package library

import (
	"log/slog"

	"github.com/murmurapp/murmur/internal/bus"
	"github.com/murmurapp/murmur/internal/storage"
)

// Library is the domain service facade over the shared store.
type Library struct {
	store  *storage.Manager
	bus    *bus.Bus // may be nil in tests
	logger *slog.Logger
}

// New creates the domain services on top of store.
func New(store *storage.Manager, eventBus *bus.Bus, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{store: store, bus: eventBus, logger: logger}
}

func (l *Library) publish(topic string, payload any) {
	if l.bus != nil {
		l.bus.Publish(topic, payload)
	}
}
