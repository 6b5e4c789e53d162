package store

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Checksum accumulates an xxhash64 digest over length-prefixed key/value pairs.
// Callers must add entries in ascending key order.
type Checksum struct {
	digest *xxhash.Digest
	buf    [8]byte
}

// NewChecksum returns an empty checksum.
func NewChecksum() *Checksum {
	return &Checksum{digest: xxhash.New()}
}

// Add folds one entry into the digest.
func (c *Checksum) Add(key, value []byte) {
	c.writeField(key)
	c.writeField(value)
}

func (c *Checksum) writeField(b []byte) {
	binary.BigEndian.PutUint64(c.buf[:], uint64(len(b)))
	_, _ = c.digest.Write(c.buf[:])
	_, _ = c.digest.Write(b)
}

// Sum64 returns the digest of everything added so far.
func (c *Checksum) Sum64() uint64 {
	return c.digest.Sum64()
}
