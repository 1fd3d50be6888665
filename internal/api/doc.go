// Package api defines wire-format types and converters shared by the daemon's
// HTTP API and the IPC service. It translates coordinator and journal models
// into transport-friendly DTOs so the CLI can render them without importing
// the upload package.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Blob refs are rendered in their canonical "sha1-<hex>" form.
package api
