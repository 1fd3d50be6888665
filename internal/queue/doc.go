// Package queue holds the files waiting to be uploaded.
//
// Pending is the in-memory, insertion-ordered, deduplicated view the upload
// coordinator works from. It has no lock of its own: the coordinator's mutex
// guards every access, and Snapshot hands the worker a private copy so it can
// iterate without holding that lock.
//
// Store is the SQLite journal behind Pending. Every accepted enqueue is
// recorded and every acknowledgment deletes the row, so a daemon restart can
// rebuild the queue where it left off. The journal is transient bookkeeping,
// not an archive; schema changes bump schemaVersion and users clear the
// database to adopt them.
package queue
