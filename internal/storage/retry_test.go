package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want errClass
	}{
		{nil, classOther},
		{fmt.Errorf("some other error"), classOther},
		{fmt.Errorf("UNIQUE constraint failed: tags.name"), classConstraint},
		{fmt.Errorf("NOT NULL constraint failed: tasks.title"), classConstraint},
		{fmt.Errorf("CHECK constraint failed: status"), classConstraint},
		{fmt.Errorf("FOREIGN KEY constraint failed"), classConstraint},
		{fmt.Errorf("database is locked"), classBusy},
		{fmt.Errorf("database table is locked"), classBusy},
		{fmt.Errorf("SQLITE_BUSY (5)"), classBusy},
		{fmt.Errorf("SQLITE_LOCKED (6)"), classBusy},
		{fmt.Errorf("wrapped: database is locked"), classBusy},
		{fmt.Errorf("sql: database is closed"), classDisconnected},
		{fmt.Errorf("driver: bad connection"), classDisconnected},
		{sql.ErrConnDone, classDisconnected},
		{fmt.Errorf("outer: %w", sql.ErrConnDone), classDisconnected},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsConstraintViolation(t *testing.T) {
	if !IsConstraintViolation(fmt.Errorf("UNIQUE constraint failed: recordings.path")) {
		t.Fatal("unique violation not recognized")
	}
	if IsConstraintViolation(fmt.Errorf("database is locked")) {
		t.Fatal("busy error misclassified as constraint")
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}.withDefaults()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := p.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWithRetry_SuccessFirstAttempt(t *testing.T) {
	m := newTestManager(t)

	calls := 0
	err := m.withRetry(context.Background(), func(db *sql.DB) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_ConstraintFailureNeverRetried(t *testing.T) {
	m := newTestManager(t, WithRetryPolicy(Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))

	calls := 0
	constraintErr := fmt.Errorf("UNIQUE constraint failed: tags.name")
	err := m.withRetry(context.Background(), func(db *sql.DB) error {
		calls++
		return constraintErr
	})
	if !errors.Is(err, constraintErr) {
		t.Fatalf("err = %v, want the constraint error unchanged", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries on constraint failure)", calls)
	}
}

func TestWithRetry_ExhaustionReturnsLastError(t *testing.T) {
	const maxRetries = 3
	base := 10 * time.Millisecond
	capDelay := 40 * time.Millisecond
	m := newTestManager(t, WithRetryPolicy(Policy{MaxRetries: maxRetries, BaseDelay: base, MaxDelay: capDelay}))

	calls := 0
	start := time.Now()
	err := m.withRetry(context.Background(), func(db *sql.DB) error {
		calls++
		return fmt.Errorf("database is locked (attempt %d)", calls)
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if want := fmt.Sprintf("database is locked (attempt %d)", maxRetries+1); err.Error() != want {
		t.Fatalf("err = %q, want last observed error %q", err, want)
	}
	if calls != maxRetries+1 {
		t.Fatalf("calls = %d, want %d", calls, maxRetries+1)
	}
	// Backoff schedule: 10ms, 20ms, 40ms.
	if minElapsed := 70 * time.Millisecond; elapsed < minElapsed {
		t.Fatalf("elapsed = %v, want >= %v of backoff", elapsed, minElapsed)
	}
}

func TestWithRetry_LockedThenSuccess(t *testing.T) {
	m := newTestManager(t, WithRetryPolicy(Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))

	calls := 0
	err := m.withRetry(context.Background(), func(db *sql.DB) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("caller saw error despite eventual success: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_DeadHandleForcesReopen(t *testing.T) {
	m := newTestManager(t, WithRetryPolicy(Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	opens := 0
	realOpen := m.open
	m.open = func(path string) (*sql.DB, error) {
		opens++
		return realOpen(path)
	}

	calls := 0
	err := m.withRetry(context.Background(), func(db *sql.DB) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("sql: database is closed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if opens != 1 {
		t.Fatalf("re-opens = %d, want 1 (transparent re-open after dead handle)", opens)
	}
	if m.State() != StateReady {
		t.Fatalf("state = %s, want ready", m.State())
	}
}

func TestWithRetry_ContextCancelDuringBackoff(t *testing.T) {
	m := newTestManager(t, WithRetryPolicy(Policy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second}))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- m.withRetry(ctx, func(db *sql.DB) error {
			calls++
			return fmt.Errorf("database is locked")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (canceled during first backoff)", calls)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p.MaxRetries != 3 || p.BaseDelay != 100*time.Millisecond || p.MaxDelay != time.Second {
		t.Fatalf("defaults = %+v", p)
	}
}
