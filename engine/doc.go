// Package engine schedules pipeline executions over their DAGs.
//
// The orchestrator, event router, and timeout scheduler are
// independent loops that share state only through the execution
// store; every write is optimistically locked so racing writers on
// separate instances cannot clobber each other.
package engine
