// Package queue persists sync task records, sync configs, and media mappings
// in SQLite. It owns the task lifecycle state machine and the compare-and-swap
// claim that guarantees at most one in-flight processing attempt per task.
package queue
