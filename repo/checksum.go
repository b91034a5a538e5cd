// Package repo supplies the default, swappable collaborators the db
// package consumes as interfaces: checksum computation, stream fetch, and
// archive iteration (spec §1 "Deliberately OUT of scope"). None of it is
// imported by db; cmd/apk wires these defaults in at startup.
package repo

import (
	"crypto/sha256"
	"hash"

	"github.com/minilinux/apk/db"
)

// Sha256Factory is the default db.ChecksumFactory, matching the
// teacher's own sha256-based content hashing (apt.Package.ContentHash).
type Sha256Factory struct{}

// New returns a fresh running sha256 checksum.
func (Sha256Factory) New() db.RunningChecksum {
	return &sha256Checksum{h: sha256.New()}
}

type sha256Checksum struct {
	h hash.Hash
}

func (c *sha256Checksum) Write(p []byte) (int, error) { return c.h.Write(p) }

func (c *sha256Checksum) Sum() db.Checksum {
	var out db.Checksum
	copy(out[:], c.h.Sum(nil))
	return out
}
