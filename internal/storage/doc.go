// Package storage owns the single SQLite handle shared by every Murmur
// subsystem. It provides the connection lifecycle (a four-state machine with
// single-flight initialization), transparent retry of transient lock and
// connection failures, atomic multi-statement transactions, and versioned
// schema migrations recorded in a ledger table.
//
// Domain services never open their own database handle; they consume the
// Manager's operation surface (Execute, Run, QueryAll, QueryOne,
// InTransaction) exclusively.
package storage
