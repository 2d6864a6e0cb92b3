package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/murmurapp/murmur/internal/bus"
)

// Migration is one versioned schema change. Versions are unique and applied
// strictly ascending, each at most once. Down exists for manual rollback
// tooling; the runner only migrates forward.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
	Down    func(ctx context.Context, tx *sql.Tx) error
}

// LedgerRecord is one row of the schema_migrations ledger, the source of
// truth for which migrations have been applied.
type LedgerRecord struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

const ledgerDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`

// Runner applies pending migrations through a Manager.
type Runner struct {
	mgr    *Manager
	logger *slog.Logger
	bus    *bus.Bus // may be nil in tests
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger migrations are reported on.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRunnerBus sets the bus migration events are published on.
func WithRunnerBus(b *bus.Bus) RunnerOption {
	return func(r *Runner) { r.bus = b }
}

// NewRunner creates a migration runner on top of mgr.
func NewRunner(mgr *Manager, opts ...RunnerOption) *Runner {
	r := &Runner{mgr: mgr, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitLedger idempotently creates the ledger table.
func (r *Runner) InitLedger(ctx context.Context) error {
	if err := r.mgr.Execute(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied migration version. An empty or
// missing ledger reads as 0 ("nothing applied"), not an error.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	v, found, err := QueryOne(ctx, r.mgr,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`,
		func(row *sql.Row) (int, error) {
			var v int
			return v, row.Scan(&v)
		})
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, fmt.Errorf("read migration max version: %w", err)
	}
	if !found {
		return 0, nil
	}
	return v, nil
}

// Applied returns the full ledger in ascending version order.
func (r *Runner) Applied(ctx context.Context) ([]LedgerRecord, error) {
	records, err := QueryAll(ctx, r.mgr,
		`SELECT version, name, applied_at FROM schema_migrations ORDER BY version ASC;`,
		func(rows *sql.Rows) (LedgerRecord, error) {
			var rec LedgerRecord
			return rec, rows.Scan(&rec.Version, &rec.Name, &rec.AppliedAt)
		})
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	return records, nil
}

// Apply runs one migration's Up and its ledger insert inside a single
// transaction, so a crash can never leave the schema transformed without its
// ledger row (a duplicate-apply on next boot).
func (r *Runner) Apply(ctx context.Context, m Migration) error {
	r.logger.Info("applying migration", "version", m.Version, "name", m.Name)
	err := r.mgr.InTransaction(ctx, func(tx *sql.Tx) error {
		if err := m.Up(ctx, tx); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?);`,
			m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("record migration %d in ledger: %w", m.Version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(bus.TopicMigrationApplied, bus.MigrationAppliedEvent{
			Version: m.Version,
			Name:    m.Name,
		})
	}
	return nil
}

// Run initializes the ledger, then applies every migration whose version
// exceeds the current ledger maximum, strictly in ascending order. Later
// migrations may depend on earlier schema shapes, so there is no concurrency
// here. The first failure aborts the run; the caller must treat that as
// fatal and refuse to serve domain operations against the store.
func (r *Runner) Run(ctx context.Context, migrations []Migration) error {
	if err := r.InitLedger(ctx); err != nil {
		return err
	}
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	pending := slices.Clone(migrations)
	slices.SortFunc(pending, func(a, b Migration) int { return a.Version - b.Version })
	for i := 1; i < len(pending); i++ {
		if pending[i].Version == pending[i-1].Version {
			return fmt.Errorf("duplicate migration version %d", pending[i].Version)
		}
	}

	applied := 0
	for _, m := range pending {
		if m.Version <= current {
			continue
		}
		if err := r.Apply(ctx, m); err != nil {
			return err
		}
		current = m.Version
		applied++
	}
	if applied > 0 {
		r.logger.Info("migrations complete", "applied", applied, "version", current)
	}
	return nil
}
