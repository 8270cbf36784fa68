package slab

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/memo"
)

// attic tracks the set of memo ids that are currently under-peered
// (peering-eligible, resident, and short of the slab's target witness
// count), giving the background remediation sweep an O(1) membership
// test instead of a full scan of the memo table on every tick. A memo
// leaves the attic when a recount of its peering table (on PutPeerSet or
// PutMemo) finds it at the target, or when it stops being resident.
type attic struct {
	mu  deadlock.Mutex
	ids map[memo.ID]struct{}
}

func newAttic() *attic {
	return &attic{ids: make(map[memo.ID]struct{})}
}

func (a *attic) add(id memo.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids[id] = struct{}{}
}

func (a *attic) remove(id memo.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.ids, id)
}

func (a *attic) snapshot() []memo.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]memo.ID, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	return out
}

// trackPeering adds or drops id from the attic depending on whether its
// recorded peerset still falls short of targetPeers. Called by PutMemo
// (fresh memo, zero peers), which does not hold peerMu, so it is safe
// for this to go through the locking GetPeerSet. ConditionalRemoveMemo
// drops a removed memo with attic.remove directly.
func (s *Slab) trackPeering(id memo.ID, eligible bool) {
	if !eligible {
		s.attic.remove(id)
		return
	}
	peers, err := s.GetPeerSet(id)
	if err != nil {
		return
	}
	s.trackPeeringCount(id, peers.CountResidentOrParticipating())
}

// trackPeeringCount is trackPeering's lock-free half, taking an
// already-known witness count. PutPeerSet calls this directly (it
// already holds peerMu and already has the merged PeerSet in hand);
// calling the locking trackPeering from inside PutPeerSet would
// self-deadlock on peerMu.
func (s *Slab) trackPeeringCount(id memo.ID, residentOrParticipating int) {
	if residentOrParticipating < s.targetPeers {
		s.attic.add(id)
	} else {
		s.attic.remove(id)
	}
}

// remediateOnce sweeps the attic instead of the whole memo table,
// re-invoking considerEmit for every entry so an under-peered memo keeps
// soliciting witnesses instead of going quiet after its first emission
// attempt. A memo leaves the attic via trackPeeringCount the moment its
// want-count reaches zero; the only entries this sweep removes itself are
// those whose memo is no longer in the local store.
func (s *Slab) remediateOnce() {
	for _, id := range s.attic.snapshot() {
		m, ok, err := s.store.getMemo(id)
		if err != nil {
			s.log.Debug("remediation: memo lookup failed", "memo", id, "err", err)
			continue
		}
		if !ok {
			s.attic.remove(id)
			continue
		}
		s.considerEmit(memo.NewResidentMemoRef(m, nil))
	}
}
