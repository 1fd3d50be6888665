package blobref

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
)

// HashName is the only digest family the uploader produces.
const HashName = "sha1"

const (
	digestSize = 40
	hashChunk  = 4096
)

var refPattern = regexp.MustCompile(`^([a-z0-9]+)-([a-f0-9]+)$`)

// ErrInvalid is returned by Parse for strings that are not sha1 content names.
var ErrInvalid = errors.New("invalid blobref")

// Ref identifies content by digest. The zero value is not a valid Ref.
type Ref struct {
	digest string
}

// Parse validates a content name of the form sha1-<40 lowercase hex>.
func Parse(value string) (Ref, error) {
	matches := refPattern.FindStringSubmatch(value)
	if matches == nil {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalid, value)
	}
	if matches[1] != HashName {
		return Ref{}, fmt.Errorf("%w: unsupported hash %q", ErrInvalid, matches[1])
	}
	if len(matches[2]) != digestSize {
		return Ref{}, fmt.Errorf("%w: digest length %d", ErrInvalid, len(matches[2]))
	}
	return Ref{digest: matches[2]}, nil
}

// MustParse is Parse for literals in tests and tables.
func MustParse(value string) Ref {
	ref, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return ref
}

// FromDigest wraps a raw sha1 sum.
func FromDigest(sum []byte) Ref {
	return Ref{digest: hex.EncodeToString(sum)}
}

// Valid reports whether r carries a digest.
func (r Ref) Valid() bool { return len(r.digest) == digestSize }

// Digest returns the lowercase hex digest.
func (r Ref) Digest() string { return r.digest }

// String returns the content name used on the wire.
func (r Ref) String() string {
	if !r.Valid() {
		return ""
	}
	return HashName + "-" + r.digest
}

// MarshalText encodes the content name.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a content name. Empty input leaves the zero Ref.
func (r *Ref) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Ref{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Hash streams src through sha1 in fixed-size chunks and returns the Ref and
// the number of bytes consumed.
func Hash(src io.Reader) (Ref, int64, error) {
	h := sha1.New()
	buf := make([]byte, hashChunk)
	n, err := io.CopyBuffer(h, onlyReader{src}, buf)
	if err != nil {
		return Ref{}, n, fmt.Errorf("hash content: %w", err)
	}
	return FromDigest(h.Sum(nil)), n, nil
}

// HashFile hashes the file at path.
func HashFile(path string) (Ref, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Ref{}, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Hash(f)
}

// onlyReader hides WriterTo so CopyBuffer keeps using the bounded buffer.
type onlyReader struct {
	io.Reader
}
