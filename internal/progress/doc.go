// Package progress carries pipeline progress events from the orchestrator
// to its observers: the in-memory hub that feeds SSE subscribers, the job
// database, and an optional Redis pub/sub mirror.
//
// The MultiReporter enforces the stream contract at the fan-out point:
// percent values never regress within a job, and exactly one terminal event
// is delivered per job.
package progress
