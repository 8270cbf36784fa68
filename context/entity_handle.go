package context

import (
	"context"
	"time"

	"github.com/arcology-network/unbase/memo"
)

// EntityHandle is a live view of one entity within a Context: an id, the
// caller's last-observed head, and the Context it reads and writes
// through. Reads and writes both go through consistencyMerge first,
// which folds in whatever the Context considers the authoritative
// concurrent source for this entity's type before acting.
type EntityHandle struct {
	ID   memo.EntityID
	head memo.Head
	ctx  *Context
}

func (c *Context) newEntityHandle(id memo.EntityID, head memo.Head) *EntityHandle {
	return &EntityHandle{ID: id, head: head, ctx: c}
}

// Head returns the handle's last-observed head.
func (h *EntityHandle) Head() memo.Head { return h.head }

// consistencyMerge folds in whichever head the Context considers
// concurrently authoritative for this entity's type: the stash's
// resident head for an IndexNode, or the root index's resolved head for
// a Record, so a read or write started from a stale handle still
// observes concurrent progress made elsewhere. Anonymous entities have
// neither a stash entry nor a root index binding and are left untouched.
func (h *EntityHandle) consistencyMerge(ctx context.Context) error {
	var other memo.Head

	switch h.ID.Type {
	case memo.IndexNode:
		other = h.ctx.ResidentEntityHead(h.ID)
	case memo.Record:
		idx, err := h.ctx.RootIndex(ctx, 5*time.Second)
		if err != nil {
			return err
		}
		indexed, found, err := idx.Get(ctx, h.ID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		other = indexed
	default:
		return nil
	}

	if other.IsNull() {
		return nil
	}
	merged, _, err := memo.Apply(ctx, h.ctx.slab, h.head, other)
	if err != nil {
		return err
	}
	h.head = merged
	return nil
}

// commit installs newHead as the handle's current head and propagates it
// wherever this entity type's consistency rule expects it to land: the
// stash for an IndexNode, the root index for a Record.
func (h *EntityHandle) commit(ctx context.Context, newHead memo.Head) error {
	switch h.ID.Type {
	case memo.IndexNode:
		applied, err := h.ctx.ApplyHead(ctx, newHead)
		if err != nil {
			return err
		}
		h.head = applied
	case memo.Record:
		if err := h.ctx.updateIndices(ctx, h.ID, newHead); err != nil {
			return err
		}
		h.head = newHead
	default:
		h.head = newHead
	}
	return nil
}

// GetValue projects field, merging in concurrent progress first.
func (h *EntityHandle) GetValue(ctx context.Context, field string) (string, bool, error) {
	if err := h.consistencyMerge(ctx); err != nil {
		return "", false, err
	}
	return memo.NewProjector(h.ctx.slab).ProjectValue(ctx, h.head, field)
}

// SetValue issues an Edit memo parented by the handle's (consistency-merged)
// head and commits the result.
func (h *EntityHandle) SetValue(ctx context.Context, field, value string) error {
	if err := h.consistencyMerge(ctx); err != nil {
		return err
	}
	ref, err := h.ctx.slab.NewMemo(&h.ID, h.head, memo.NewEditBody(map[string]string{field: value}))
	if err != nil {
		return err
	}
	newHead, err := memo.NewEntityHead(h.ID, ref)
	if err != nil {
		return err
	}
	return h.commit(ctx, newHead)
}

// GetEdge projects slot and resolves it to a handle on the referenced
// entity, if any.
func (h *EntityHandle) GetEdge(ctx context.Context, slot int) (*EntityHandle, bool, error) {
	if err := h.consistencyMerge(ctx); err != nil {
		return nil, false, err
	}
	childHead, found, err := memo.NewProjector(h.ctx.slab).ProjectEdge(ctx, h.head, slot)
	if err != nil || !found || childHead.IsNull() {
		return nil, false, err
	}
	childEntity, ok := childHead.EntityID()
	if !ok {
		return nil, false, nil
	}
	return h.ctx.newEntityHandle(childEntity, childHead), true, nil
}

// SetEdge issues an Edge memo binding slot to child's current head (or
// clearing it, if child is nil) and commits the result.
func (h *EntityHandle) SetEdge(ctx context.Context, slot int, child *EntityHandle) error {
	if err := h.consistencyMerge(ctx); err != nil {
		return err
	}
	var childHead memo.Head
	if child != nil {
		childHead = child.head
	}
	ref, err := h.ctx.slab.NewMemo(&h.ID, h.head, memo.NewEdgeBody(map[int]memo.Head{slot: childHead}))
	if err != nil {
		return err
	}
	newHead, err := memo.NewEntityHead(h.ID, ref)
	if err != nil {
		return err
	}
	return h.commit(ctx, newHead)
}
