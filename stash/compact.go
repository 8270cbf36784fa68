package stash

import (
	"context"

	"github.com/arcology-network/unbase/memo"
)

// MemoIssuer is the capability Compact needs beyond plain memo
// retrieval: minting a new Edge memo to record a compacted edge.
// *slab.Slab satisfies this directly.
type MemoIssuer interface {
	memo.Fetcher
	NewMemo(entity *memo.EntityID, parents memo.Head, body memo.Body) (memo.MemoRef, error)
}

// Compact attempts to shrink the stash by issuing Edge memos
// for any entity heads whose children are already present (and fresher)
// in the stash: for each parent head, any edge whose referenced child's
// stash head descends-or-contains the edge as recorded gets rewritten to
// point at the fresher child head, then ApplyHead prunes the
// now-redundant child entry. Compaction is idempotent: a second call with
// no fresher children to fold in is a no-op, since updatedEdges stays
// empty and no memo is issued.
//
// Iteration is a single linear pass over the stash in whatever order
// Iter returns (DESIGN.md Open Question (c)): a true topological walk
// would compact in fewer passes, but ApplyHead's prune step keeps this
// pass convergent regardless of order, so repeated calls monotonically
// shrink the stash until a fixed point.
func Compact(ctx context.Context, s *Stash, issuer MemoIssuer) error {
	for _, parentHead := range s.Iter() {
		entity, ok := parentHead.EntityID()
		if !ok {
			continue
		}

		links, err := memo.NewProjector(issuer).ProjectOccupiedEdges(ctx, parentHead)
		if err != nil {
			return err
		}

		updatedEdges := make(map[int]memo.Head)
		for _, link := range links {
			childEntity, ok := link.Head.EntityID()
			if !ok {
				continue
			}
			stashHead, found := s.GetHead(childEntity)
			if !found {
				continue
			}
			fresher, err := memo.DescendsOrContains(ctx, issuer, stashHead, link.Head)
			if err != nil {
				return err
			}
			if fresher {
				updatedEdges[link.Slot] = stashHead
			}
		}

		if len(updatedEdges) == 0 {
			continue
		}

		body := memo.NewEdgeBody(updatedEdges)
		ref, err := issuer.NewMemo(&entity, parentHead, body)
		if err != nil {
			return err
		}
		newHead, err := memo.NewEntityHead(entity, ref)
		if err != nil {
			return err
		}
		if _, err := s.ApplyHead(ctx, issuer, newHead); err != nil {
			return err
		}
	}
	return nil
}
