package storage

import (
	"context"
	"database/sql"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 1 * time.Second
)

// Policy bounds the retry loop wrapped around every store operation.
// A Policy is stateless; each call runs its own attempt counter with no
// backoff coordination across concurrent callers.
type Policy struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// BaseDelay is the first backoff sleep; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff sleep.
	MaxDelay time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// backoff returns min(BaseDelay << attempt, MaxDelay).
func (p Policy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// withRetry ensures initialization, runs op against the live handle, and
// retries transient failures with exponential backoff.
//
// Constraint violations and other durable errors propagate immediately with
// zero retries. Lock contention is retried in place. A dead-looking handle
// forces the manager out of ready so the next attempt re-opens before
// retrying. After the final attempt the last observed error is returned.
func (m *Manager) withRetry(ctx context.Context, op func(db *sql.DB) error) error {
	var err error
	for attempt := 0; attempt <= m.policy.MaxRetries; attempt++ {
		var db *sql.DB
		db, err = m.acquire(ctx)
		if err == nil {
			err = op(db)
		}
		if err == nil {
			return nil
		}

		switch classify(err) {
		case classBusy:
		case classDisconnected:
			m.markDisconnected()
		default:
			return err
		}
		if attempt == m.policy.MaxRetries {
			return err
		}

		delay := m.policy.backoff(attempt)
		m.logger.Debug("retrying store operation",
			"attempt", attempt+1,
			"max_retries", m.policy.MaxRetries,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
