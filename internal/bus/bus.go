// Package bus is a small in-process pub/sub bus. Subscriptions match by
// topic prefix and delivery is non-blocking: a slow consumer misses events
// rather than stalling the publisher.
package bus

import (
	"strings"
	"sync"
)

const defaultBufferSize = 100

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload any
}

// Storage lifecycle topics.
const (
	TopicStorageReady     = "storage.ready"
	TopicStorageClosed    = "storage.closed"
	TopicMigrationApplied = "storage.migration.applied"
)

// Domain topics.
const (
	TopicTaskCreated     = "task.created"
	TopicTaskCompleted   = "task.completed"
	TopicNoteCreated     = "note.created"
	TopicNoteArchived    = "note.archived"
	TopicRecordingAdded  = "recording.added"
	TopicRecordingPurged = "recording.purged"
	TopicRetentionSweep  = "retention.sweep"
)

// StorageStateEvent is published when the store reaches ready or closed.
type StorageStateEvent struct {
	Path  string
	State string
}

// MigrationAppliedEvent is published after a schema migration commits.
type MigrationAppliedEvent struct {
	Version int
	Name    string
}

// EntityEvent identifies the record a domain event is about.
type EntityEvent struct {
	ID string
}

// SweepEvent summarizes one retention sweep.
type SweepEvent struct {
	RecordingsPurged int
	NotesPurged      int
}

// Subscription represents an active subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

// Bus is a prefix-matching in-process message bus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*Subscription),
	}
}

// Subscribe creates a subscription for events whose topic starts with the
// given prefix. An empty prefix matches all topics. The channel is buffered;
// events past a full buffer are dropped for that subscriber.
func (b *Bus) Subscribe(topicPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends an event to all matching subscribers without blocking.
func (b *Bus) Publish(topic string, payload any) {
	event := Event{
		Topic:   topic,
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				// Buffer full, drop for this subscriber.
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
