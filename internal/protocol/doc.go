// Package protocol speaks the blob server's two-phase upload exchange.
//
// Announce posts the queued content names to /camli/preupload and learns
// where to send bytes. Transfer streams a multipart body to that endpoint
// through an io.Pipe, so file content is read from its source only as the
// transport consumes it. BodyWriter generates that body: one part per file,
// a bounded bytes-per-request threshold, and a stop flag checked after every
// chunk.
//
// A Client is built per worker run and carries basic auth credentials on
// every request it sends.
package protocol
