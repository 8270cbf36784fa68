package memo

import "github.com/btcsuite/btcutil/base58"

// ID is a memo's content-derived identifier: a HighwayHash-256 digest of
// its canonical encoding, including the parent head's ids (codec.go).
// Two memos with identical contents hash to the same ID.
type ID [32]byte

func (id ID) String() string {
	return base58.Encode(id[:])
}

// Zero reports whether id is the unset zero value.
func (id ID) Zero() bool {
	return id == ID{}
}

// Memo is an immutable record: the unit of replication. Once constructed
// by New, a Memo is never mutated; only its MemoRef's residency may
// change (memoref.go).
type Memo struct {
	id       ID
	Entity   *EntityID // nil for anonymous control memos
	Owner    SlabID    // provenance only, confers no authority
	Parents  Head
	Body     Body
}

// New constructs a Memo and computes its content-derived ID. Parents of a
// memo happen-before it by construction: the ID hash covers the parent
// head's own memo ids (codec.go), so two memos built from different
// parent heads can never collide.
func New(entity *EntityID, owner SlabID, parents Head, body Body) Memo {
	m := Memo{Entity: entity, Owner: owner, Parents: parents, Body: body}
	m.id = computeID(m)
	return m
}

// ID returns the memo's content-derived identifier.
func (m Memo) ID() ID { return m.id }

// DoesPeering reports whether this memo's body participates in the
// ordinary peering handshake. SlabPresence, Peering, and MemoRequest
// bodies have their own dedicated handling and
// return false.
func (m Memo) DoesPeering() bool {
	switch m.Body.Kind {
	case KindSlabPresence, KindPeering, KindMemoRequest:
		return false
	default:
		return true
	}
}
