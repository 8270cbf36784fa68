package slab

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/memo"
)

// subscriptions is the local subscriber fan-out registry: one list of
// channels per entity, plus a single list for every IndexNode head.
// notify is non-blocking: a subscriber whose channel is full simply
// misses the notification rather than backing up the dispatch loop, and
// a channel found closed is dropped from its list.
type subscriptions struct {
	mu       deadlock.Mutex
	entities map[memo.EntityID][]chan<- memo.Head
	index    []chan<- memo.Head
}

func newSubscriptions() *subscriptions {
	return &subscriptions{entities: make(map[memo.EntityID][]chan<- memo.Head)}
}

func (s *subscriptions) subscribeEntity(entity memo.EntityID, ch chan<- memo.Head) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity] = append(s.entities[entity], ch)
}

func (s *subscriptions) subscribeIndex(ch chan<- memo.Head) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = append(s.index, ch)
}

// notify delivers m's head to every subscriber of its entity, and to
// every index subscriber if the entity is an IndexNode. A single-memo
// Head is constructed ad hoc; callers that need the merged head for an
// entity go through Stash instead.
func (s *subscriptions) notify(m memo.Memo) {
	if m.Entity == nil {
		return
	}

	ref := memo.NewResidentMemoRef(m, nil)
	h, err := memo.NewEntityHead(*m.Entity, ref)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Entity.Type == memo.IndexNode {
		s.index = sendAndPrune(s.index, h)
	}
	if chans, ok := s.entities[*m.Entity]; ok {
		s.entities[*m.Entity] = sendAndPrune(chans, h)
	}
}

// sendAndPrune attempts a non-blocking send to every channel in chans. A
// full subscriber channel simply misses this notification rather than
// stalling memo ingestion; a closed channel is left out of the returned
// list.
func sendAndPrune(chans []chan<- memo.Head, h memo.Head) []chan<- memo.Head {
	kept := chans[:0]
	for _, ch := range chans {
		if trySend(ch, h) {
			kept = append(kept, ch)
		}
	}
	return kept
}

// trySend makes a non-blocking send on ch and reports false if ch has
// been closed (the send's panic is recovered).
func trySend(ch chan<- memo.Head, h memo.Head) (open bool) {
	defer func() {
		if recover() != nil {
			open = false
		}
	}()
	select {
	case ch <- h:
	default:
	}
	return true
}
