// Package database opens the GORM connection used by the execution
// store and manages its underlying pool: driver selection, pool
// sizing, periodic health checks and transaction retry.
package database
