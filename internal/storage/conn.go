package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/murmurapp/murmur/internal/bus"
)

// State is the connection lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Manager owns the one live SQLite handle for the process. Exactly one
// instance is constructed at bootstrap and passed by reference to every
// collaborator.
//
// Close does not wait for in-flight operations: a statement racing a Close
// may fail with a disconnected error and re-open on its next attempt.
type Manager struct {
	path   string
	policy Policy
	logger *slog.Logger
	bus    *bus.Bus // may be nil in tests

	mu      sync.Mutex
	state   State
	db      *sql.DB
	waiters []chan error

	// open is swappable in tests to count or fail underlying opens.
	open func(path string) (*sql.DB, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p.withDefaults() }
}

// WithBus sets the event bus lifecycle events are published on.
func WithBus(b *bus.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// DefaultDBPath returns the database location under the user's Murmur home.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".murmur", "murmur.db")
}

// NewManager creates a Manager for the database at path. No connection is
// opened until Initialize or the first operation.
func NewManager(path string, opts ...Option) *Manager {
	if path == "" {
		path = DefaultDBPath()
	}
	m := &Manager{
		path:   path,
		policy: Policy{}.withDefaults(),
		logger: slog.Default(),
		open:   openSQLite,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the database file path the manager was constructed with.
func (m *Manager) Path() string {
	return m.path
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize opens the database handle. It is a no-op while ready, and
// concurrent callers during an in-flight open all await that one attempt and
// receive its outcome (single-flight). On failure the manager returns to
// uninitialized and the same error is delivered to every waiter. After Close
// a new call opens a fresh connection.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		m.mu.Unlock()
		return nil
	case StateInitializing:
		ch := make(chan error, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.state = StateInitializing
	m.mu.Unlock()

	db, err := m.open(m.path)
	if err != nil {
		err = fmt.Errorf("open store: %w", err)
	}

	m.mu.Lock()
	waiters := m.waiters
	m.waiters = nil
	if err != nil {
		m.state = StateUninitialized
	} else {
		m.state = StateReady
		m.db = db
	}
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
	if err != nil {
		m.logger.Error("store open failed", "path", m.path, "error", err)
		return err
	}
	m.logger.Info("store ready", "path", m.path)
	if m.bus != nil {
		m.bus.Publish(bus.TopicStorageReady, bus.StorageStateEvent{Path: m.path, State: StateReady.String()})
	}
	return nil
}

// Handle returns the live database handle, or ErrNotInitialized unless the
// manager is ready.
func (m *Manager) Handle() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil, fmt.Errorf("%w (state %s)", ErrNotInitialized, m.state)
	}
	return m.db, nil
}

// Close releases the handle and transitions to closed. Subsequent
// operations transparently re-initialize; callers use this as the process
// suspend hook.
func (m *Manager) Close() error {
	m.mu.Lock()
	db := m.db
	m.db = nil
	prev := m.state
	m.state = StateClosed
	m.mu.Unlock()

	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if prev == StateReady {
		m.logger.Info("store closed", "path", m.path)
		if m.bus != nil {
			m.bus.Publish(bus.TopicStorageClosed, bus.StorageStateEvent{Path: m.path, State: StateClosed.String()})
		}
	}
	return nil
}

// markDisconnected forces the manager out of ready after a dead-handle
// error so the next attempt re-opens. The stale handle is closed best-effort.
func (m *Manager) markDisconnected() {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	db := m.db
	m.db = nil
	m.state = StateUninitialized
	m.mu.Unlock()

	if db != nil {
		_ = db.Close()
	}
	m.logger.Warn("store handle lost, will re-open on next operation", "path", m.path)
}

// acquire ensures initialization has completed and returns the handle.
func (m *Manager) acquire(ctx context.Context) (*sql.DB, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	return m.Handle()
}

// RunResult reports the outcome of a write statement.
type RunResult struct {
	LastInsertID int64
	RowsAffected int64
}

// Execute runs a DDL statement through the retry wrapper.
func (m *Manager) Execute(ctx context.Context, ddl string) error {
	return m.withRetry(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("exec ddl: %w", err)
		}
		return nil
	})
}

// Run executes a write statement with positional parameters and reports the
// inserted row id and affected row count.
func (m *Manager) Run(ctx context.Context, query string, args ...any) (RunResult, error) {
	var out RunResult
	err := m.withRetry(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("exec statement: %w", err)
		}
		// Both are best-effort under sqlite; neither call hits the database.
		out.LastInsertID, _ = res.LastInsertId()
		out.RowsAffected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return RunResult{}, err
	}
	return out, nil
}

// InTransaction ensures initialization, begins a transaction, invokes body,
// and commits on success or rolls back on failure. The whole begin-to-commit
// unit is what the retry policy re-runs: a retried transaction starts over,
// never resumes partway.
func (m *Manager) InTransaction(ctx context.Context, body func(tx *sql.Tx) error) error {
	return m.withRetry(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := body(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// QueryAll runs a query through m's retry wrapper and scans every row with
// scan.
func QueryAll[T any](ctx context.Context, m *Manager, query string, scan func(*sql.Rows) (T, error), args ...any) ([]T, error) {
	var out []T
	err := m.withRetry(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			out = append(out, v)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryOne runs a single-row query through m's retry wrapper. An absent row
// is reported as found=false, not an error.
func QueryOne[T any](ctx context.Context, m *Manager, query string, scan func(*sql.Row) (T, error), args ...any) (T, bool, error) {
	var out T
	var found bool
	err := m.withRetry(ctx, func(db *sql.DB) error {
		v, err := scan(db.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("query row: %w", err)
		}
		out, found = v, true
		return nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return out, found, nil
}

// openSQLite opens the database file, creating its directory if needed, and
// applies the pragmas every Murmur connection runs with. SQLite allows one
// writer at a time, so the pool is pinned to a single connection.
func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, q := range pragmas {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return db, nil
}
