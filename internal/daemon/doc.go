// Package daemon wires the job store, enhancement pipeline, workflow
// manager, progress fan-out, and HTTP gateway into a single-instance
// background service guarded by a lock file.
package daemon
