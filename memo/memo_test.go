package memo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoesPeering(t *testing.T) {
	entity := NewEntityID(Record)
	edit := New(&entity, SlabID{}, NullHead, NewEditBody(map[string]string{"k": "v"}))
	require.True(t, edit.DoesPeering())

	presence := New(nil, SlabID{}, NullHead, NewSlabPresenceBody(SlabPresence{Peer: SlabID{1}}, NullHead))
	require.False(t, presence.DoesPeering())

	req := New(nil, SlabID{}, NullHead, NewMemoRequestBody(nil, SlabPresence{Peer: SlabID{1}}))
	require.False(t, req.DoesPeering())
}

func TestPeerSetMergeLastWriterWinsBySeq(t *testing.T) {
	ps := NewPeerSet()
	peer := PeerID{1}

	ps.Put(peer, Unknown, 1)
	ps.Put(peer, Resident, 5)
	e, ok := ps.Get(peer)
	require.True(t, ok)
	require.Equal(t, Resident, e.Status)

	// An older assertion must not regress a newer one.
	ps.Put(peer, NonParticipating, 2)
	e, _ = ps.Get(peer)
	require.Equal(t, Resident, e.Status)

	ps.Put(peer, NonParticipating, 6)
	e, _ = ps.Get(peer)
	require.Equal(t, NonParticipating, e.Status)
}

func TestPeerSetCountResidentOrParticipating(t *testing.T) {
	ps := NewPeerSet()
	ps.Put(PeerID{1}, Resident, 1)
	ps.Put(PeerID{2}, Participating, 1)
	ps.Put(PeerID{3}, NonParticipating, 1)
	ps.Put(PeerID{4}, Unknown, 1)

	require.Equal(t, 2, ps.CountResidentOrParticipating())
}

func TestEntityIDRejectsZeroValueAsSet(t *testing.T) {
	var zero EntityID
	require.True(t, zero.IsZero())
	id := NewEntityID(Record)
	require.False(t, id.IsZero())
}
