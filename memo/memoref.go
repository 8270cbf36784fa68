package memo

// Residency describes whether a MemoRef's memo bytes are available
// locally (Resident) or must be fetched from a peer (Remote).
type Residency uint8

const (
	Remote Residency = iota
	ResidentStatus
)

// MemoRef is a local handle to a memo that may or may not be resident.
// Equality of two MemoRefs for head-algebra purposes is by MemoID alone;
// Residency and Bytes are local bookkeeping that differs from slab to
// slab even for "the same" memo. A memo's PeerSet is not carried here; the
// slab keeps it by memo id (slab.GetPeerSet).
type MemoRef struct {
	MemoID    ID
	Entity    *EntityID
	Owner     SlabID
	Residency Residency
	Bytes     []byte // only meaningful when Residency == ResidentStatus
}

// NewResidentMemoRef builds a MemoRef for a memo whose bytes we hold locally.
func NewResidentMemoRef(m Memo, bytes []byte) MemoRef {
	return MemoRef{
		MemoID:    m.ID(),
		Entity:    m.Entity,
		Owner:     m.Owner,
		Residency: ResidentStatus,
		Bytes:     bytes,
	}
}

// NewRemoteMemoRef builds a MemoRef referring to a memo we don't (yet) hold.
func NewRemoteMemoRef(id ID, entity *EntityID, owner SlabID) MemoRef {
	return MemoRef{MemoID: id, Entity: entity, Owner: owner, Residency: Remote}
}

// IsResident reports whether this handle's memo bytes are available locally.
func (r MemoRef) IsResident() bool {
	return r.Residency == ResidentStatus
}

// Equal reports whether two MemoRefs name the same memo, regardless of
// local residency/peer-list bookkeeping.
func (r MemoRef) Equal(other MemoRef) bool {
	return r.MemoID == other.MemoID
}
