// Package logging assembles structured slog loggers and formatting helpers used
// across camliup.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys (component, blob,
// correlation_id, event_type, error_hint) so upload sessions can be followed
// across log lines. StreamHub keeps a bounded ring of recent events for the
// daemon's log tail endpoints, and NewNop gives tests and wiring code a logger
// that cannot fail.
package logging
