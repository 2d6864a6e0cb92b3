package storage

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrNotInitialized is returned when a handle is requested while the
// manager is not in the ready state.
var ErrNotInitialized = errors.New("storage: not initialized")

type errClass int

const (
	// classOther covers errors we have no safe recovery for; they propagate
	// to the caller on first occurrence.
	classOther errClass = iota

	// classConstraint is a durable schema/data violation. Retrying cannot
	// resolve it.
	classConstraint

	// classBusy is transient lock contention inside SQLite.
	classBusy

	// classDisconnected means the handle itself looks unusable; the manager
	// is forced out of ready so the next attempt re-opens.
	classDisconnected
)

// classify buckets a database error for the retry loop.
//
// mattn/go-sqlite3 surfaces result codes in the error text, so matching on
// the message avoids importing the cgo package in every caller. The BUSY (5)
// and LOCKED (6) codes appear parenthesized in extended errors.
func classify(err error) errClass {
	if err == nil {
		return classOther
	}
	if errors.Is(err, sql.ErrConnDone) {
		return classDisconnected
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "NOT NULL constraint failed"),
		strings.Contains(msg, "CHECK constraint failed"),
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return classConstraint
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "(5)"), // SQLITE_BUSY
		strings.Contains(msg, "(6)"): // SQLITE_LOCKED
		return classBusy
	case strings.Contains(msg, "database is closed"),
		strings.Contains(msg, "bad connection"):
		return classDisconnected
	}
	return classOther
}

// IsConstraintViolation reports whether err is a unique, not-null, check, or
// foreign-key constraint failure. Such errors are never retried.
func IsConstraintViolation(err error) bool {
	return classify(err) == classConstraint
}
