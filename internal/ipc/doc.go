// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Queue,
// status and log payloads reuse the api package types so the HTTP API and
// IPC stay in step.
package ipc
