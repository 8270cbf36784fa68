package context

import (
	"context"
	"time"

	"github.com/arcology-network/unbase/memo"
)

// NewEntityKV mints a fresh Record entity carrying values, writes its
// founding Edit memo, registers it in the root index under its own id,
// and returns a handle on it.
func (c *Context) NewEntityKV(ctx context.Context, values map[string]string) (*EntityHandle, error) {
	entity := memo.NewEntityID(memo.Record)
	ref, err := c.slab.NewMemo(&entity, memo.NullHead, memo.NewEditBody(values))
	if err != nil {
		return nil, err
	}
	head, err := memo.NewEntityHead(entity, ref)
	if err != nil {
		return nil, err
	}
	if err := c.updateIndices(ctx, entity, head); err != nil {
		return nil, err
	}
	return c.newEntityHandle(entity, head), nil
}

// GetEntityByID resolves id directly through the root index, without the
// consistency merge FetchKV applies: the caller already knows which
// entity it wants, so whatever head the index currently holds for it is
// authoritative enough to start from.
func (c *Context) GetEntityByID(ctx context.Context, id memo.EntityID) (*EntityHandle, bool, error) {
	idx, err := c.RootIndex(ctx, 5*time.Second)
	if err != nil {
		return nil, false, err
	}
	head, found, err := idx.Get(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	return c.newEntityHandle(id, head), true, nil
}

// FetchKV makes a single attempt to find an entity whose projected key
// field equals val: resolve the root index, scan it once, and wrap
// whatever is found in a consistency-merged handle. Returns found=false
// without error if nothing matches yet.
func (c *Context) FetchKV(ctx context.Context, key, val string) (*EntityHandle, bool, error) {
	idx, err := c.RootIndex(ctx, 5*time.Second)
	if err != nil {
		return nil, false, err
	}
	head, found, err := idx.Scan(ctx, key, val)
	if err != nil || !found {
		return nil, false, err
	}
	entity, ok := head.EntityID()
	if !ok {
		return nil, false, nil
	}
	handle := c.newEntityHandle(entity, head)
	if err := handle.consistencyMerge(ctx); err != nil {
		return nil, false, err
	}
	return handle, true, nil
}

// FetchKVWait is FetchKV's polling counterpart: it keeps retrying on a
// 50ms tick until a match appears or wait elapses, for a caller that
// knows a matching entity is about to be written by someone else and
// wants to block for it.
func (c *Context) FetchKVWait(ctx context.Context, key, val string, wait time.Duration) (*EntityHandle, error) {
	deadline := time.Now().Add(wait)
	for {
		handle, found, err := c.FetchKV(ctx, key, val)
		if err != nil {
			return nil, err
		}
		if found {
			return handle, nil
		}
		if time.Now().After(deadline) {
			return nil, memo.ErrNotFoundByDeadline
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
