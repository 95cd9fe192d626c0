// Package api exposes the HTTP gateway: job submission (multipart upload
// or a pre-stored source reference), status reads, a server-sent-events
// progress stream, artifact download, cancellation, and health.
//
// The gateway only reads and flags; every state transition beyond job
// creation and the cancel flag belongs to the workflow manager.
package api
