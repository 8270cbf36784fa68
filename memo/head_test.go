package memo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// memTable is a tiny in-memory Fetcher used by the head-algebra tests;
// it plays the role a *slab.Slab would in production, without dragging
// in the slab package's storage/locking machinery.
type memTable struct {
	memos map[ID]Memo
}

func newMemTable() *memTable {
	return &memTable{memos: make(map[ID]Memo)}
}

func (t *memTable) put(entity *EntityID, owner SlabID, parents Head, body Body) MemoRef {
	m := New(entity, owner, parents, body)
	t.memos[m.ID()] = m
	return NewResidentMemoRef(m, nil)
}

func (t *memTable) FetchMemo(ctx context.Context, ref MemoRef) (Memo, error) {
	m, ok := t.memos[ref.MemoID]
	if !ok {
		return Memo{}, ErrNotFound
	}
	return m, nil
}

func TestApplyNullHeadIsNoop(t *testing.T) {
	tbl := newMemTable()
	entity := NewEntityID(Record)
	r1 := tbl.put(&entity, SlabID{}, NullHead, NewEditBody(map[string]string{"k": "v"}))
	h, _ := NewEntityHead(entity, r1)

	out, applied, err := Apply(context.Background(), tbl, h, NullHead)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, h.MemoIDs(), out.MemoIDs())
}

func TestEmptyEntityHeadRefused(t *testing.T) {
	entity := NewEntityID(Record)
	_, err := NewEntityHead(entity)
	require.ErrorIs(t, err, ErrInvalidHead)
}

func TestApplyDescendantIsNoop(t *testing.T) {
	tbl := newMemTable()
	entity := NewEntityID(Record)
	r1 := tbl.put(&entity, SlabID{}, NullHead, NewEditBody(map[string]string{"k": "v1"}))
	h1, _ := NewEntityHead(entity, r1)
	r2 := tbl.put(&entity, SlabID{}, h1, NewEditBody(map[string]string{"k": "v2"}))
	h2, _ := NewEntityHead(entity, r2)

	ctx := context.Background()

	// descends(m2, m1) must hold.
	ok, err := Descends(ctx, tbl, r2, r1)
	require.NoError(t, err)
	require.True(t, ok)

	// apply(h2, m1) is a no-op: m1 is already contained transitively.
	out, applied, err := ApplyMemoRef(ctx, tbl, h2, r1)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, h2.MemoIDs(), out.MemoIDs())
}

func TestApplyConcurrentMemosBothSurvive(t *testing.T) {
	tbl := newMemTable()
	entity := NewEntityID(Record)
	r1 := tbl.put(&entity, SlabID{}, NullHead, NewEditBody(map[string]string{"k": "v1"}))
	h1, _ := NewEntityHead(entity, r1)

	// Two concurrent edits off the same parent head.
	r2 := tbl.put(&entity, SlabID{}, h1, NewEditBody(map[string]string{"a": "1"}))
	r3 := tbl.put(&entity, SlabID{}, h1, NewEditBody(map[string]string{"b": "2"}))

	ctx := context.Background()
	h, applied, err := ApplyMemoRef(ctx, tbl, h1, r2)
	require.NoError(t, err)
	require.True(t, applied)

	h, applied, err = ApplyMemoRef(ctx, tbl, h, r3)
	require.NoError(t, err)
	require.True(t, applied)

	require.Len(t, h.Refs(), 2)

	concurrent, err := Concurrent(ctx, tbl, r2, r3)
	require.NoError(t, err)
	require.True(t, concurrent)
}

func TestApplyIdempotent(t *testing.T) {
	tbl := newMemTable()
	entity := NewEntityID(Record)
	r1 := tbl.put(&entity, SlabID{}, NullHead, NewEditBody(map[string]string{"k": "v1"}))
	h1, _ := NewEntityHead(entity, r1)

	ctx := context.Background()
	out, applied, err := Apply(ctx, tbl, h1, h1)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, h1.MemoIDs(), out.MemoIDs())
}

func TestProjectValueStopsAtMaterializedBarrier(t *testing.T) {
	tbl := newMemTable()
	entity := NewEntityID(Record)
	r1 := tbl.put(&entity, SlabID{}, NullHead,
		NewFullyMaterializedBody(map[string]string{"beast": "Tiger"}, nil, nil, Record))
	h1, _ := NewEntityHead(entity, r1)
	r2 := tbl.put(&entity, SlabID{}, h1, NewEditBody(map[string]string{"sound": "Rawwr"}))
	h2, _ := NewEntityHead(entity, r2)

	ctx := context.Background()
	p := NewProjector(tbl)

	v, ok, err := p.ProjectValue(ctx, h2, "sound")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Rawwr", v)

	v, ok, err = p.ProjectValue(ctx, h2, "beast")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Tiger", v)

	// Absent field, but FullyMaterialized is a barrier: no further walk.
	_, ok, err = p.ProjectValue(ctx, h2, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDescendsOrContains(t *testing.T) {
	tbl := newMemTable()
	entity := NewEntityID(Record)
	r1 := tbl.put(&entity, SlabID{}, NullHead, NewEditBody(map[string]string{"k": "v1"}))
	h1, _ := NewEntityHead(entity, r1)
	r2 := tbl.put(&entity, SlabID{}, h1, NewEditBody(map[string]string{"k": "v2"}))
	h2, _ := NewEntityHead(entity, r2)

	ctx := context.Background()
	ok, err := DescendsOrContains(ctx, tbl, h2, h1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = DescendsOrContains(ctx, tbl, h1, h2)
	require.NoError(t, err)
	require.False(t, ok)
}
