// Package workflow polls the job store, leases pending jobs to a bounded
// worker pool, and owns every terminal transition: completion, failure
// classification, the single terminal progress event, and notifications.
//
// The per-job wall-clock budget is enforced here with a context deadline so
// the pipeline and its external tools all observe the same cutoff.
package workflow
