// Package store persists pipeline definitions and execution state.
//
// All mutations to executions and steps go through optimistic locking:
// every row carries a version column, updates are conditional on the
// version the caller read, and a stale write surfaces as an
// OPTIMISTIC_LOCK error instead of silently clobbering concurrent
// progress.
package store
