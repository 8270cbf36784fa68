package stash_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"

	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/slab"
	"github.com/arcology-network/unbase/stash"
)

func newTestSlab(t *testing.T) *slab.Slab {
	t.Helper()
	s := slab.New(memo.NewSlabID([]byte(t.Name())), db.NewMemDB())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyHeadOnFreshEntryInstallsHead(t *testing.T) {
	s := newTestSlab(t)
	st := stash.New()
	ctx := context.Background()

	idx := memo.NewEntityID(memo.IndexNode)
	ref, err := s.NewMemo(&idx, memo.NullHead, memo.NewEditBody(map[string]string{"k": "v"}))
	require.NoError(t, err)
	h, err := memo.NewEntityHead(idx, ref)
	require.NoError(t, err)

	out, err := st.ApplyHead(ctx, s, h)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	got, ok := st.GetHead(idx)
	require.True(t, ok)
	require.Equal(t, h.Refs()[0].MemoID, got.Refs()[0].MemoID)
}

func TestApplyHeadPanicsOnNonIndexNode(t *testing.T) {
	s := newTestSlab(t)
	st := stash.New()
	ctx := context.Background()

	record := memo.NewEntityID(memo.Record)
	ref, err := s.NewMemo(&record, memo.NullHead, memo.NewEditBody(map[string]string{"k": "v"}))
	require.NoError(t, err)
	h, err := memo.NewEntityHead(record, ref)
	require.NoError(t, err)

	require.Panics(t, func() {
		_, _ = st.ApplyHead(ctx, s, h)
	})
}

func TestApplyHeadIdempotent(t *testing.T) {
	s := newTestSlab(t)
	st := stash.New()
	ctx := context.Background()

	idx := memo.NewEntityID(memo.IndexNode)
	ref, err := s.NewMemo(&idx, memo.NullHead, memo.NewEditBody(map[string]string{"k": "v"}))
	require.NoError(t, err)
	h, err := memo.NewEntityHead(idx, ref)
	require.NoError(t, err)

	_, err = st.ApplyHead(ctx, s, h)
	require.NoError(t, err)
	second, err := st.ApplyHead(ctx, s, h)
	require.NoError(t, err)
	require.Equal(t, h.Refs()[0].MemoID, second.Refs()[0].MemoID)
}

func TestPruneHeadRemovesStrictlyDescendedEntry(t *testing.T) {
	s := newTestSlab(t)
	st := stash.New()
	ctx := context.Background()

	child := memo.NewEntityID(memo.IndexNode)
	r1, err := s.NewMemo(&child, memo.NullHead, memo.NewEditBody(map[string]string{"a": "1"}))
	require.NoError(t, err)
	h1, err := memo.NewEntityHead(child, r1)
	require.NoError(t, err)
	_, err = st.ApplyHead(ctx, s, h1)
	require.NoError(t, err)

	r2, err := s.NewMemo(&child, h1, memo.NewEditBody(map[string]string{"a": "2"}))
	require.NoError(t, err)
	h2, err := memo.NewEntityHead(child, r2)
	require.NoError(t, err)

	require.NoError(t, st.PruneHead(ctx, s, h2))

	_, ok := st.GetHead(child)
	require.False(t, ok, "entry descended by compareHead must be pruned")
}

func TestApplyHeadPrunesChildOccupiedByEdge(t *testing.T) {
	s := newTestSlab(t)
	st := stash.New()
	ctx := context.Background()

	child := memo.NewEntityID(memo.IndexNode)
	childRef, err := s.NewMemo(&child, memo.NullHead, memo.NewEditBody(map[string]string{"a": "1"}))
	require.NoError(t, err)
	childHead, err := memo.NewEntityHead(child, childRef)
	require.NoError(t, err)
	_, err = st.ApplyHead(ctx, s, childHead)
	require.NoError(t, err)

	parent := memo.NewEntityID(memo.IndexNode)
	edgeRef, err := s.NewMemo(&parent, memo.NullHead, memo.NewEdgeBody(map[int]memo.Head{0: childHead}))
	require.NoError(t, err)
	parentHead, err := memo.NewEntityHead(parent, edgeRef)
	require.NoError(t, err)

	_, err = st.ApplyHead(ctx, s, parentHead)
	require.NoError(t, err)

	_, ok := st.GetHead(child)
	require.False(t, ok, "child referenced by an occupied edge at least as fresh must be pruned")

	_, ok = st.GetHead(parent)
	require.True(t, ok)
}
