package slab

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/arcology-network/unbase/memo"
)

// considerEmit decides whether a newly-resident memo needs to be pushed
// at other slabs for durability: peering-eligible memos want TargetPeers
// witnesses; SlabPresence/Peering/MemoRequest bodies are handled by
// their own protocols and are never auto-emitted, since that would loop.
func (s *Slab) considerEmit(ref memo.MemoRef) {
	if !ref.IsResident() {
		return
	}
	m, ok, err := s.store.getMemo(ref.MemoID)
	if err != nil || !ok {
		return
	}
	if !m.DoesPeering() || s.tx == nil {
		return
	}

	peers, err := s.GetPeerSet(ref.MemoID)
	if err != nil {
		s.log.Debug("consider_emit: peerset lookup failed", "memo", ref.MemoID, "err", err)
		return
	}
	needs := s.targetPeers - peers.CountResidentOrParticipating()
	if needs <= 0 {
		return
	}

	for _, target := range s.candidatePeers(ref.MemoID, peers, needs) {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		if err := s.tx.Send(ctx, target, m); err != nil {
			s.log.Debug("consider_emit: send failed", "peer", target, "memo", ref.MemoID, "err", err)
		}
		cancel()
	}
}

// candidatePeers returns up to n known peers not already on file for id,
// in a fixed deterministic order (peer id order) so repeated emission
// attempts converge on the same witnesses instead of thrashing.
func (s *Slab) candidatePeers(id memo.ID, peers *memo.PeerSet, n int) []memo.PeerID {
	s.peerMu.Lock()
	known := make([]memo.PeerID, 0, len(s.knownPeers))
	for p := range s.knownPeers {
		known = append(known, p)
	}
	s.peerMu.Unlock()
	sort.Slice(known, func(i, j int) bool { return bytes.Compare(known[i][:], known[j][:]) < 0 })

	var out []memo.PeerID
	for _, p := range known {
		if len(out) >= n {
			break
		}
		if _, already := peers.Get(p); already {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Ticker is the minimal clock capability the remediation task needs.
// Production callers pass RealTicker (wrapping time.NewTicker);
// transport/simulator and tests can substitute a manually-driven one.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealTicker adapts a time.Ticker to the Ticker interface.
type RealTicker struct{ t *time.Ticker }

// NewRealTicker returns a Ticker backed by time.NewTicker(d).
func NewRealTicker(d time.Duration) RealTicker {
	return RealTicker{t: time.NewTicker(d)}
}

func (r RealTicker) C() <-chan time.Time { return r.t.C }
func (r RealTicker) Stop()               { r.t.Stop() }

// RunRemediation periodically sweeps the attic (see remediation.go),
// re-invoking considerEmit for every still under-peered memo so it keeps
// soliciting witnesses until its want-count reaches zero. It runs until
// ctx is canceled (stopping tick from outside does not end it) and stops
// tick on return; callers typically run it in its own goroutine
// alongside Start().
func (s *Slab) RunRemediation(ctx context.Context, tick Ticker) {
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C():
			s.remediateOnce()
		}
	}
}
