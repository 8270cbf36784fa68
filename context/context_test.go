package context_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"

	uctx "github.com/arcology-network/unbase/context"
	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/slab"
)

func newTestSlab(t *testing.T) *slab.Slab {
	t.Helper()
	s := slab.New(memo.NewSlabID([]byte(t.Name())), db.NewMemDB())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func bootstrapped(t *testing.T) *uctx.Context {
	t.Helper()
	s := newTestSlab(t)
	c := uctx.NewContext(s)
	t.Cleanup(c.Close)
	_, err := c.BootstrapRootIndex(context.Background())
	require.NoError(t, err)
	return c
}

func TestBootstrapRootIndexSeedsRootIndex(t *testing.T) {
	s := newTestSlab(t)
	c := uctx.NewContext(s)
	defer c.Close()

	_, ok := c.TryRootIndexNode()
	require.False(t, ok, "a fresh context has no root index seed")

	seed, err := c.BootstrapRootIndex(context.Background())
	require.NoError(t, err)
	require.False(t, seed.IsNull())

	got, ok := c.TryRootIndexNode()
	require.True(t, ok)
	require.Equal(t, seed.Refs()[0].MemoID, got.Refs()[0].MemoID)
}

func TestRootIndexWaitsForSeedThenResolves(t *testing.T) {
	s := newTestSlab(t)
	c := uctx.NewContext(s)
	defer c.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, err := c.BootstrapRootIndex(context.Background())
		require.NoError(t, err)
	}()

	idx, err := c.RootIndex(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, idx)
}

func TestRootIndexReturnsErrIndexNotInitializedWhenNoSeedArrives(t *testing.T) {
	s := newTestSlab(t)
	c := uctx.NewContext(s)
	defer c.Close()

	_, err := c.RootIndex(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, memo.ErrIndexNotInitialized)
}

func TestBackgroundApplierFoldsIndexNodeHeadsIntoStash(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	handle, err := c.NewEntityKV(ctx, map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NotNil(t, handle)

	root, ok := c.TryRootIndexNode()
	require.True(t, ok)
	rootEntity, ok := root.EntityID()
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return !c.ResidentEntityHead(rootEntity).IsNull()
	}, time.Second, 5*time.Millisecond, "background applier should fold the root index's own IndexNode head into the stash")
}

func TestIsFullyMaterializedTrueWithEmptyStash(t *testing.T) {
	c := bootstrapped(t)
	ok, err := c.IsFullyMaterialized(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "an empty stash has nothing unmaterialized to report")
}
