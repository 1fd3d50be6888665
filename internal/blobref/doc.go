// Package blobref names content by its sha1 digest.
//
// A Ref is the identity the uploader deduplicates on and the form-field name
// used on the wire ("sha1-" followed by forty lowercase hex digits). Hashing
// reads through a bounded buffer so arbitrarily large files never need to fit
// in memory.
package blobref
