package memo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdenticalContentsProduceIdenticalIDs(t *testing.T) {
	entity := NewEntityID(Record)
	m1 := New(&entity, SlabID{1}, NullHead, NewEditBody(map[string]string{"a": "1", "b": "2"}))
	m2 := New(&entity, SlabID{1}, NullHead, NewEditBody(map[string]string{"b": "2", "a": "1"}))
	require.Equal(t, m1.ID(), m2.ID(), "map key insertion order must not affect the content hash")
}

func TestDifferentParentsProduceDifferentIDs(t *testing.T) {
	entity := NewEntityID(Record)
	owner := SlabID{1}
	base := New(&entity, owner, NullHead, NewEditBody(map[string]string{"k": "v"}))
	h, _ := NewEntityHead(entity, NewResidentMemoRef(base, nil))

	child1 := New(&entity, owner, h, NewEditBody(map[string]string{"k2": "v2"}))
	child2 := New(&entity, owner, NullHead, NewEditBody(map[string]string{"k2": "v2"}))
	require.NotEqual(t, child1.ID(), child2.ID())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entity := NewEntityID(Record)
	owner := SlabID{9}
	m := New(&entity, owner, NullHead, NewEditBody(map[string]string{"beast": "Tiger"}))

	data := Encode(m)
	back, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, m.ID(), back.ID())
	require.Equal(t, m.Body.Values, back.Body.Values)
	require.Equal(t, *m.Entity, *back.Entity)
	require.Equal(t, m.Owner, back.Owner)

	data2 := Encode(back)
	require.Equal(t, data, data2, "re-encoding a decoded memo must reproduce identical bytes")
}

func TestEncodeDecodeRoundTripWithEdgesAndParents(t *testing.T) {
	idxEntity := NewEntityID(IndexNode)
	owner := SlabID{3}
	parent := New(&idxEntity, owner, NullHead, NewEditBody(map[string]string{"k": "v"}))
	parentHead, err := NewEntityHead(idxEntity, NewResidentMemoRef(parent, nil))
	require.NoError(t, err)

	childEntity := NewEntityID(IndexNode)
	child := New(&childEntity, owner, NullHead, NewEditBody(map[string]string{"c": "1"}))
	childHead, err := NewEntityHead(childEntity, NewResidentMemoRef(child, nil))
	require.NoError(t, err)

	edgeMemo := New(&idxEntity, owner, parentHead, NewEdgeBody(map[int]Head{0: childHead}))

	data := Encode(edgeMemo)
	back, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, edgeMemo.ID(), back.ID())
	require.Equal(t, 1, back.Parents.Len())
	require.Equal(t, parent.ID(), back.Parents.Refs()[0].MemoID)

	gotEdgeHead, ok := back.Body.Edges[0]
	require.True(t, ok)
	require.Equal(t, child.ID(), gotEdgeHead.Refs()[0].MemoID)
}

func TestDecodeRejectsTamperedBytes(t *testing.T) {
	entity := NewEntityID(Record)
	m := New(&entity, SlabID{1}, NullHead, NewEditBody(map[string]string{"k": "v"}))
	data := Encode(m)
	data[len(data)-1] ^= 0xFF
	_, err := Decode(data)
	require.ErrorIs(t, err, ErrDecodeFailed)
}
