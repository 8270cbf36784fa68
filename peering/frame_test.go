package peering_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/peering"
	"github.com/arcology-network/unbase/transport"
)

func TestEncodeDecodeFrameRoundTrips(t *testing.T) {
	from := memo.NewSlabID([]byte("from"))
	to := memo.NewSlabID([]byte("to"))
	entity := memo.NewEntityID(memo.Record)
	m := memo.New(&entity, from, memo.NullHead, memo.NewEditBody(map[string]string{"k": "v"}))

	f := transport.Frame{
		From: from,
		To:   to,
		Peers: []memo.PeerEntry{
			{Peer: memo.NewSlabID([]byte("p1")), Status: memo.Resident, Seq: 7},
			{Peer: memo.NewSlabID([]byte("p2")), Status: memo.NonParticipating, Seq: 12},
		},
		Memo: m,
	}

	data := peering.EncodeFrame(f)
	got, err := peering.DecodeFrame(data)
	require.NoError(t, err)

	require.Equal(t, f.From, got.From)
	require.Equal(t, f.To, got.To)
	require.Equal(t, f.Peers, got.Peers)
	require.Equal(t, f.Memo.ID(), got.Memo.ID())
}

func TestDecodeFrameRejectsTruncatedInput(t *testing.T) {
	_, err := peering.DecodeFrame([]byte{1, 2, 3})
	require.ErrorIs(t, err, peering.ErrShortFrame)
}

func TestEncodeFrameWithNoPeersRoundTrips(t *testing.T) {
	from := memo.NewSlabID([]byte("a"))
	to := memo.NewSlabID([]byte("b"))
	m := memo.New(nil, from, memo.NullHead, memo.NewSlabPresenceBody(memo.SlabPresence{Peer: from}, memo.NullHead))

	f := transport.Frame{From: from, To: to, Memo: m}
	data := peering.EncodeFrame(f)
	got, err := peering.DecodeFrame(data)
	require.NoError(t, err)
	require.Empty(t, got.Peers)
	require.Equal(t, f.Memo.ID(), got.Memo.ID())
}
