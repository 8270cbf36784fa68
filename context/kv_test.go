package context_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcology-network/unbase/memo"
)

func TestNewEntityKVThenGetEntityByID(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	handle, err := c.NewEntityKV(ctx, map[string]string{"name": "alice"})
	require.NoError(t, err)

	got, found, err := c.GetEntityByID(ctx, handle.ID)
	require.NoError(t, err)
	require.True(t, found)

	val, found, err := got.GetValue(ctx, "name")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alice", val)
}

func TestFetchKVFindsMatchingEntityAmongMany(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	_, err := c.NewEntityKV(ctx, map[string]string{"name": "bob"})
	require.NoError(t, err)
	_, err = c.NewEntityKV(ctx, map[string]string{"name": "carol"})
	require.NoError(t, err)

	found, ok, err := c.FetchKV(ctx, "name", "carol")
	require.NoError(t, err)
	require.True(t, ok)

	val, present, err := found.GetValue(ctx, "name")
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, "carol", val)
}

func TestFetchKVNotFoundReturnsFalseWithoutError(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	_, ok, err := c.FetchKV(ctx, "name", "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFetchKVWaitTimesOutWhenNothingEverMatches(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	_, err := c.FetchKVWait(ctx, "name", "nobody", 40*time.Millisecond)
	require.ErrorIs(t, err, memo.ErrNotFoundByDeadline)
}

func TestFetchKVWaitFindsEntityWrittenConcurrently(t *testing.T) {
	c := bootstrapped(t)
	ctx := context.Background()

	go func() {
		time.Sleep(15 * time.Millisecond)
		_, err := c.NewEntityKV(ctx, map[string]string{"name": "dana"})
		require.NoError(t, err)
	}()

	found, err := c.FetchKVWait(ctx, "name", "dana", time.Second)
	require.NoError(t, err)
	require.NotNil(t, found)
}
