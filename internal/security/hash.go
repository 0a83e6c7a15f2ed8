package security

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// The content-hash oracle. Trace digests and node IDs both fold through
// SHA-256; callers never see the hash construction directly.

// DigestBytes returns the hex SHA-256 digest of data.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digester incrementally folds content into a single digest.
// Write order matters: callers must feed content deterministically.
type Digester struct {
	h hash.Hash
}

// NewDigester creates an empty Digester.
func NewDigester() *Digester {
	return &Digester{h: sha256.New()}
}

// Fold adds content to the digest.
func (d *Digester) Fold(data []byte) {
	d.h.Write(data)
}

// Sum returns the hex digest of everything folded so far.
func (d *Digester) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
