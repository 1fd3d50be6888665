package protocol

import (
	"sync/atomic"

	"camliup/internal/blobref"
)

// Session is the result of one announce: where to send bytes and what the
// server already stores.
type Session struct {
	UploadURL     string
	MaxUploadSize int64

	alreadyHave map[blobref.Ref]struct{}
	written     atomic.Int64
}

// AlreadyHas reports whether the server listed ref as stored.
func (s *Session) AlreadyHas(ref blobref.Ref) bool {
	_, ok := s.alreadyHave[ref]
	return ok
}

// AlreadyHaveCount returns how many announced refs the server already stores.
func (s *Session) AlreadyHaveCount() int { return len(s.alreadyHave) }

// BytesWritten returns the content bytes written by the current transfer.
func (s *Session) BytesWritten() int64 { return s.written.Load() }

func (s *Session) addBytes(n int64) { s.written.Add(n) }

func (s *Session) resetCounter() { s.written.Store(0) }
