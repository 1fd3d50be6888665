// Package source turns queue handles into readable byte streams.
//
// A handle is whatever string the operator enqueued: a filesystem path or a
// file:// URI. Handles stay opaque to the queue and the protocol writer; both
// reach content only through a Resolver, which lets tests substitute
// in-memory sources and observe when each one is opened.
package source

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnreadable marks handles that cannot be opened for reading.
var ErrUnreadable = errors.New("source unreadable")

// Resolver opens handles. Open returns the stream and a size hint, which is
// -1 when unknown.
type Resolver interface {
	Open(handle string) (io.ReadCloser, int64, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(handle string) (io.ReadCloser, int64, error)

// Open calls f.
func (f ResolverFunc) Open(handle string) (io.ReadCloser, int64, error) {
	return f(handle)
}

// Files resolves local paths and file:// URIs.
type Files struct{}

// Open implements Resolver.
func (Files) Open(handle string) (io.ReadCloser, int64, error) {
	path, err := Path(handle)
	if err != nil {
		return nil, -1, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, -1, fmt.Errorf("%w: stat %s: %w", ErrUnreadable, path, err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, -1, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	return file, info.Size(), nil
}

// Path converts a handle into a cleaned local path.
func Path(handle string) (string, error) {
	trimmed := strings.TrimSpace(handle)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty handle", ErrUnreadable)
	}
	if strings.HasPrefix(trimmed, "file://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("%w: parse %q: %w", ErrUnreadable, trimmed, err)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("%w: remote file host %q", ErrUnreadable, u.Host)
		}
		trimmed = u.Path
	}
	return filepath.Clean(trimmed), nil
}

// Canonical returns the absolute form of a path handle so the same file
// enqueued from different working directories journals identically. URIs and
// unresolvable paths are returned unchanged.
func Canonical(handle string) string {
	path, err := Path(handle)
	if err != nil {
		return handle
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return handle
	}
	return abs
}
