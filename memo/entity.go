package memo

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// EntityType classifies an EntityID. IndexNode entities are held in the
// stash and make up the root index; Record entities are bound in the root
// index; Anonymous entities are in neither.
type EntityType uint8

const (
	Record EntityType = iota
	IndexNode
	Anonymous
)

func (t EntityType) String() string {
	switch t {
	case Record:
		return "Record"
	case IndexNode:
		return "IndexNode"
	case Anonymous:
		return "Anonymous"
	default:
		return fmt.Sprintf("EntityType(%d)", uint8(t))
	}
}

// EntityID identifies an entity for its lifetime. Anonymous entities are
// still assigned an EntityID (for uniqueness of control memos) but never
// appear in the stash or root index.
type EntityID struct {
	Bits [16]byte
	Type EntityType
}

// NewEntityID generates a fresh, random entity identifier of the given type.
func NewEntityID(t EntityType) EntityID {
	var id EntityID
	id.Type = t
	if _, err := rand.Read(id.Bits[:]); err != nil {
		panic("memo: failed to read random entity id: " + err.Error())
	}
	return id
}

// IsZero reports whether this is the zero-value EntityID (used as a
// sentinel for "no entity", distinct from a valid Anonymous id).
func (id EntityID) IsZero() bool {
	return id == EntityID{}
}

// String returns a base58 display form of the entity id, prefixed with its type.
func (id EntityID) String() string {
	return id.Type.String() + ":" + base58.Encode(id.Bits[:])
}
