// Package notifications pushes terminal job updates to an ntfy topic when
// one is configured, and degrades to a noop otherwise.
package notifications
