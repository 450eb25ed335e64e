// Package metrics exposes Prometheus instrumentation for the engine,
// store, cache, and event publisher. It is internal to this module.
package metrics
