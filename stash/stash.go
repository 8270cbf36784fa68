// Package stash implements the per-context optimistic-concurrency cache
// of IndexNode heads: an arena of entries keyed by entity id, each
// carrying a monotonic edit counter used as a CAS token, plus slot ->
// entry back-references derived from projected edges.
package stash

import (
	"bytes"
	"context"

	"github.com/google/btree"
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/memo"
)

// itemID is an arena slot index. Vacated slots are recycled via a
// vacancies stack so long-running compaction doesn't leak arena space.
type itemID int

type entry struct {
	entityID    memo.EntityID
	head        memo.Head
	editCounter uint64
	relations   map[int]itemID
}

// indexEntry is the google/btree.Item ordering entity ids to arena slots,
// keeping assert/lookup O(log n) as the stash grows without a
// contiguous-slice insert-shift on every new entity.
type indexEntry struct {
	entityID memo.EntityID
	item     itemID
}

func (e indexEntry) Less(than btree.Item) bool {
	o := than.(indexEntry)
	if e.entityID.Type != o.entityID.Type {
		return e.entityID.Type < o.entityID.Type
	}
	return bytes.Compare(e.entityID.Bits[:], o.entityID.Bits[:]) < 0
}

// Stash is the indexed collection of IndexNode heads a Context keeps
// locally materialized. The zero value is not usable; construct with
// New.
type Stash struct {
	mu        deadlock.Mutex
	items     []*entry
	index     *btree.BTree
	vacancies []itemID
}

// New returns an empty Stash.
func New() *Stash {
	return &Stash{index: btree.New(32)}
}

// GetHead returns the recorded head for entity, if any.
func (s *Stash) GetHead(entity memo.EntityID) (memo.Head, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(entity)
	if e == nil || e.head.IsNull() {
		return memo.NullHead, false
	}
	return e.head, true
}

// EntityIDs returns every entity id currently indexed, including
// placeholder entries with no resident head yet.
func (s *Stash) EntityIDs() []memo.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]memo.EntityID, 0, s.index.Len())
	s.index.Ascend(func(i btree.Item) bool {
		out = append(out, i.(indexEntry).entityID)
		return true
	})
	return out
}

// Iter returns a snapshot of every non-null head presently in the
// stash, one per distinct entity id, made eager since the stash is
// expected to be small and this avoids holding the lock across
// caller-controlled iteration.
func (s *Stash) Iter() []memo.Head {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]memo.Head, 0, len(s.items))
	for _, e := range s.items {
		if e != nil && !e.head.IsNull() {
			out = append(out, e.head)
		}
	}
	return out
}

func (s *Stash) headAndEditCounter(entity memo.EntityID) (memo.Head, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(entity)
	if e == nil || e.head.IsNull() {
		return memo.NullHead, 0, false
	}
	return e.head, e.editCounter, true
}

// itemIDFor must be called with s.mu held; returns (-1, false) if entity
// has no arena slot yet.
func (s *Stash) itemIDFor(entity memo.EntityID) (itemID, bool) {
	found := s.index.Get(indexEntry{entityID: entity})
	if found == nil {
		return -1, false
	}
	return found.(indexEntry).item, true
}

// entryFor must be called with s.mu held.
func (s *Stash) entryFor(entity memo.EntityID) *entry {
	id, ok := s.itemIDFor(entity)
	if !ok {
		return nil
	}
	return s.items[id]
}

// assertItem returns the arena slot for entity, creating a fresh
// (zero-value head, edit counter 0) entry if none exists yet. Must be
// called with s.mu held.
func (s *Stash) assertItem(entity memo.EntityID) itemID {
	if id, ok := s.itemIDFor(entity); ok {
		return id
	}

	var id itemID
	if n := len(s.vacancies); n > 0 {
		id = s.vacancies[n-1]
		s.vacancies = s.vacancies[:n-1]
		s.items[id] = &entry{entityID: entity, relations: make(map[int]itemID)}
	} else {
		id = itemID(len(s.items))
		s.items = append(s.items, &entry{entityID: entity, relations: make(map[int]itemID)})
	}
	s.index.ReplaceOrInsert(indexEntry{entityID: entity, item: id})
	return id
}

func (s *Stash) removeItem(id itemID) {
	e := s.items[id]
	if e == nil {
		return
	}
	s.index.Delete(indexEntry{entityID: e.entityID})
	s.items[id] = nil
	s.vacancies = append(s.vacancies, id)
}

// ApplyHead merges applyHead into the stash entry for its entity id:
// optimistic read, out-of-lock happens-before computation and edge
// projection, then a CAS write gated on the edit counter observed at the
// start of the attempt. Only IndexNode heads may be applied; anything
// else is a programmer error.
func (s *Stash) ApplyHead(ctx context.Context, f memo.Fetcher, applyHead memo.Head) (memo.Head, error) {
	entity, ok := applyHead.EntityID()
	if !ok {
		panic("stash: ApplyHead requires an entity head")
	}
	if entity.Type != memo.IndexNode {
		panic("stash: only IndexNode heads may be applied to a stash")
	}

	for {
		current, editCounter, had := s.headAndEditCounter(entity)

		var newHead memo.Head
		if had {
			merged, applied, err := memo.Apply(ctx, f, current, applyHead)
			if err != nil {
				return memo.Head{}, err
			}
			if !applied {
				return current, nil
			}
			newHead = merged
		} else {
			newHead = applyHead
			editCounter = 0
		}

		links, err := memo.NewProjector(f).ProjectAllEdgeLinks(ctx, newHead)
		if err != nil {
			return memo.Head{}, err
		}

		if !s.trySetHead(entity, newHead, links, editCounter) {
			continue
		}

		for _, link := range links {
			if link.Occupied {
				if err := s.PruneHead(ctx, f, link.Head); err != nil {
					return memo.Head{}, err
				}
			}
		}
		return newHead, nil
	}
}

// trySetHead performs the CAS write step of ApplyHead: if the entry's
// edit counter still matches editCounter, install newHead, bump the
// counter, and update slot -> entry back-references from links.
func (s *Stash) trySetHead(entity memo.EntityID, newHead memo.Head, links []memo.EdgeLink, editCounter uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.assertItem(entity)
	e := s.items[id]
	if e.editCounter != editCounter {
		return false
	}

	for _, link := range links {
		if !link.Occupied {
			delete(e.relations, link.Slot)
			continue
		}
		childEntity, ok := link.Head.EntityID()
		if !ok {
			continue
		}
		childID := s.assertItem(childEntity)
		e.relations[link.Slot] = childID
	}

	e.head = newHead
	e.editCounter++
	return true
}

// PruneHead removes the stash entry whose head is equal to or descended by
// compareHead: once a parent's edge references a head at least as fresh
// as what the stash holds for the child, the child entry is redundant
// (every future projection reaches it through the edge instead).
func (s *Stash) PruneHead(ctx context.Context, f memo.Fetcher, compareHead memo.Head) error {
	entity, ok := compareHead.EntityID()
	if !ok {
		return nil
	}

	for {
		current, editCounter, had := s.headAndEditCounter(entity)
		if !had {
			return nil
		}
		descends, err := memo.DescendsOrContains(ctx, f, compareHead, current)
		if err != nil {
			return err
		}
		if !descends {
			return nil
		}
		if s.tryRemoveHead(entity, editCounter) {
			return nil
		}
		// editCounter moved since we read it; recompute and retry.
	}
}

func (s *Stash) tryRemoveHead(entity memo.EntityID, editCounter uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(entity)
	if e == nil {
		return true
	}
	if e.editCounter != editCounter {
		return false
	}

	if id, ok := s.itemIDFor(entity); ok {
		s.removeItem(id)
	}
	return true
}
