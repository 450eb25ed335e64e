// Package testutil provides shared helpers for package tests:
// deadline-bound contexts, polling assertions, and ready-made pipeline
// definitions.
package testutil
