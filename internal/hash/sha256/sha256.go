// Package sha256 provides streaming SHA-256 digests for stored assets.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Hasher computes hex-encoded SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Tee wraps r so that every byte read through it is hashed. The returned
// func yields the digest of what has been read so far.
func (h *Hasher) Tee(r io.Reader) (io.Reader, func() string) {
	d := sha256.New()
	return io.TeeReader(r, d), func() string { return sum(d) }
}

func sum(d hash.Hash) string {
	return hex.EncodeToString(d.Sum(nil))
}
