package memo

import (
	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

// SlabID identifies a node. It is carried by memos and memorefs purely as
// provenance (which slab a memo was created on, or which slab a peer
// status assertion came from); it confers no authority.
type SlabID [16]byte

// NewSlabID derives a SlabID from arbitrary seed bytes (e.g. random boot
// entropy, or a configured identity seed for deterministic test fixtures)
// by taking the low 16 bytes of a blake2b-256 digest.
func NewSlabID(seed []byte) SlabID {
	sum := blake2b.Sum256(seed)
	var id SlabID
	copy(id[:], sum[:16])
	return id
}

// Zero reports whether this SlabID is unset.
func (id SlabID) Zero() bool {
	return id == SlabID{}
}

func (id SlabID) String() string {
	return base58.Encode(id[:])
}
