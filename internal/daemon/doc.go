// Package daemon coordinates the long-running camliup process.
//
// It wires configuration, the SQLite journal and the upload coordinator into
// a single lifecycle with flock-based locking to prevent multiple instances.
// On start the daemon runs preflight checks, restores the journaled queue and
// optionally resumes uploading. It exposes queue and control helpers used by
// the IPC service and an optional HTTP API.
//
// Keep orchestration here: the protocol and queue semantics live in the
// upload package.
package daemon
