package context_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetValueOverwritesFieldForLaterReads(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	handle, err := c.NewEntityKV(ctx, map[string]string{"status": "pending"})
	require.NoError(t, err)

	require.NoError(t, handle.SetValue(ctx, "status", "done"))

	val, found, err := handle.GetValue(ctx, "status")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "done", val)
}

func TestSetEdgeAndGetEdgeRoundTrip(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	parent, err := c.NewEntityKV(ctx, map[string]string{"kind": "parent"})
	require.NoError(t, err)
	child, err := c.NewEntityKV(ctx, map[string]string{"kind": "child"})
	require.NoError(t, err)

	require.NoError(t, parent.SetEdge(ctx, 3, child))

	got, found, err := parent.GetEdge(ctx, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, child.ID, got.ID)

	val, present, err := got.GetValue(ctx, "kind")
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, "child", val)
}

func TestGetEdgeNotFoundOnUnboundSlot(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	parent, err := c.NewEntityKV(ctx, map[string]string{"kind": "parent"})
	require.NoError(t, err)

	_, found, err := parent.GetEdge(ctx, 9)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSetEdgeClearsSlotWhenChildNil(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	parent, err := c.NewEntityKV(ctx, map[string]string{"kind": "parent"})
	require.NoError(t, err)
	child, err := c.NewEntityKV(ctx, map[string]string{"kind": "child"})
	require.NoError(t, err)

	require.NoError(t, parent.SetEdge(ctx, 3, child))
	require.NoError(t, parent.SetEdge(ctx, 3, nil))

	_, found, err := parent.GetEdge(ctx, 3)
	require.NoError(t, err)
	require.False(t, found, "clearing an edge slot must not resolve to the old child")
}
