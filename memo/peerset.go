package memo

import "sort"

// PeerID is a peer's identity for peering-table purposes. A peer is always
// another slab; PeerID is an alias for SlabID to make peerset.go read
// naturally as (peer, status) pairs.
type PeerID = SlabID

// PeerStatus is a slab's last-known peering status with respect to a
// particular memo.
type PeerStatus uint8

const (
	Unknown PeerStatus = iota
	Resident
	Participating
	NonParticipating
)

func (s PeerStatus) String() string {
	switch s {
	case Resident:
		return "Resident"
	case Participating:
		return "Participating"
	case NonParticipating:
		return "NonParticipating"
	default:
		return "Unknown"
	}
}

// rank orders statuses from Unknown (0) to Resident (3). PeerSet.Merge
// does not use it: status alone is not monotonic (a peer can legitimately
// go Resident -> NonParticipating after remotizing), so merges are
// decided by Seq alone.
func (s PeerStatus) rank() int {
	switch s {
	case Resident:
		return 3
	case Participating:
		return 2
	case NonParticipating:
		return 1
	default:
		return 0
	}
}

// PeerEntry is one (peer, status) pair in a memo's peering table. Seq is a
// monotonic assertion counter local to the peer making the claim, used to
// decide whether a newly-merged entry supersedes what's already on file;
// it is not wall-clock time, so clock skew between slabs cannot corrupt
// the merge.
type PeerEntry struct {
	Peer   PeerID
	Status PeerStatus
	Seq    uint64
}

// PeerSet is the peering table for a single memo: the set of (peer,
// status) pairs the local node knows about. The zero value is an empty,
// usable PeerSet.
type PeerSet struct {
	entries map[PeerID]PeerEntry
}

// NewPeerSet returns an empty PeerSet.
func NewPeerSet() *PeerSet {
	return &PeerSet{entries: make(map[PeerID]PeerEntry)}
}

// Put records or updates a single peer's status. A newer assertion
// (strictly greater Seq) about the same peer always wins; an
// equal-or-older Seq is ignored. self is a no-op guard the caller is
// still expected to uphold (self-peering entries are dropped by
// slab.PutPeerSet, not here, since PeerSet itself does not know which
// peer is "self").
func (ps *PeerSet) Put(peer PeerID, status PeerStatus, seq uint64) {
	if ps.entries == nil {
		ps.entries = make(map[PeerID]PeerEntry)
	}
	existing, ok := ps.entries[peer]
	if ok && existing.Seq >= seq {
		return
	}
	ps.entries[peer] = PeerEntry{Peer: peer, Status: status, Seq: seq}
}

// Get returns the recorded status for peer, or (Unknown, false) if none.
func (ps *PeerSet) Get(peer PeerID) (PeerEntry, bool) {
	if ps.entries == nil {
		return PeerEntry{}, false
	}
	e, ok := ps.entries[peer]
	return e, ok
}

// Merge folds other's entries into ps using Put's last-writer-wins-by-Seq rule.
func (ps *PeerSet) Merge(other *PeerSet) {
	if other == nil {
		return
	}
	for _, e := range other.Entries() {
		ps.Put(e.Peer, e.Status, e.Seq)
	}
}

// Entries returns a deterministically ordered snapshot of the peer set
// (sorted by peer id), suitable for canonical encoding or for logging.
func (ps *PeerSet) Entries() []PeerEntry {
	if ps == nil || ps.entries == nil {
		return nil
	}
	out := make([]PeerEntry, 0, len(ps.entries))
	for _, e := range ps.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Peer[:]) < string(out[j].Peer[:])
	})
	return out
}

// CountResidentOrParticipating returns the number of peers whose status is
// Resident or Participating: the "known peers" count used by the
// want-count / needs-peers calculation in slab.Slab.
func (ps *PeerSet) CountResidentOrParticipating() int {
	n := 0
	for _, e := range ps.Entries() {
		if e.Status == Resident || e.Status == Participating {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of ps.
func (ps *PeerSet) Clone() *PeerSet {
	out := NewPeerSet()
	for _, e := range ps.Entries() {
		out.entries[e.Peer] = e
	}
	return out
}
