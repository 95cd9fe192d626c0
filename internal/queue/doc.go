// Package queue persists enhancement jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-job recovery, and the pending-to-running
// lease the workflow manager uses to claim work. Terminal rows are frozen:
// Update refuses to modify a completed or failed job, so a late writer can
// never resurrect a finished one.
//
// The database is treated as transient storage for in-flight jobs rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users delete the database to adopt the new schema.
package queue
