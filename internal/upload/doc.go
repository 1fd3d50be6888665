// Package upload coordinates the pending queue with at most one background
// worker.
//
// Coordinator is safe for concurrent use. Its mutex guards the worker state
// and the pending queue and is never held across a network call. The worker
// loops snapshot, announce, transfer until the live queue is empty, a
// request fails, or Pause raises its stop flag. Acknowledged and skipped
// files leave the queue (and the journal, when one is attached); everything
// else stays queued for the next Resume.
package upload
