package slab

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/arcology-network/unbase/memo"
)

// inboundMemo is one item on the single inbound-dispatch queue: a memo
// that arrived from another slab, paired with the slab it arrived from.
type inboundMemo struct {
	memo   memo.Memo
	origin memo.SlabID
}

// RootSeedHandler resolves an incoming SlabPresence's root-index seed
// head against the network's current seed: first seed wins, later seeds
// accepted only if they descend or are descended. It is supplied by the
// context/network layer at construction; a Slab with no handler set
// simply ignores seed exchange, which is harmless for a slab that never
// joins a root index.
type RootSeedHandler interface {
	ApplyRootIndexSeed(ctx context.Context, presence memo.SlabPresence, seed memo.Head, origin memo.SlabID) error
}

// inboundDispatcher is the slab's single logical serialization point for
// everything arriving from peers, collapsing what could be per-peer
// goroutines into one consuming task, since memos have no notion of
// per-peer ordering. Workiva's lock-free queue lets HandleInbound
// enqueue from any number of transport goroutines without a
// dispatcher-side mutex.
type inboundDispatcher struct {
	slab *Slab
	q    *queue.Queue
	seq  uint64

	seeds RootSeedHandler

	wg sync.WaitGroup
}

func newInboundDispatcher(s *Slab) *inboundDispatcher {
	q, err := queue.New(1024)
	if err != nil {
		panic("slab: failed to allocate inbound queue: " + err.Error())
	}
	return &inboundDispatcher{slab: s, q: q}
}

// SetRootSeedHandler wires the network-level seed resolver. Called once
// at wiring time, before Start.
func (s *Slab) SetRootSeedHandler(h RootSeedHandler) {
	s.inbound.seeds = h
}

func (d *inboundDispatcher) enqueue(m inboundMemo) error {
	return d.q.Put(m)
}

func (d *inboundDispatcher) start() {
	d.wg.Add(1)
	go d.run()
}

func (d *inboundDispatcher) stop() {
	d.q.Dispose()
	d.wg.Wait()
}

func (d *inboundDispatcher) run() {
	defer d.wg.Done()
	for {
		items, err := d.q.Get(1)
		if err != nil {
			return // disposed
		}
		for _, item := range items {
			d.handle(item.(inboundMemo))
		}
	}
}

// handle runs the five-step inbound algorithm. Steps 1-4 (put_memo,
// peer-list merge, waiter notification, subscriber dispatch) are short
// and non-suspending; step 5's body-specific handling runs outside any
// slab-wide lock, since it may itself need to retrieve or send memos.
func (d *inboundDispatcher) handle(im inboundMemo) {
	s := d.slab
	ctx := context.Background()

	ref, err := s.PutMemo(im.memo) // steps 1, 3, 4 (waiters + subscribers notified inside PutMemo)
	if err != nil {
		s.log.Debug("inbound: put_memo failed", "err", err)
		return
	}

	seq := atomic.AddUint64(&d.seq, 1)
	if err := s.PutPeerSet(ref.MemoID, []memo.PeerEntry{{Peer: im.origin, Status: memo.Resident, Seq: seq}}); err != nil {
		s.log.Debug("inbound: peerset merge failed", "err", err)
	}

	d.handleBody(ctx, im, ref)
}

func (d *inboundDispatcher) handleBody(ctx context.Context, im inboundMemo, ref memo.MemoRef) {
	s := d.slab
	m := im.memo

	switch m.Body.Kind {
	case memo.KindSlabPresence:
		d.handlePresence(ctx, im)
	case memo.KindPeering:
		d.handlePeering(im)
	case memo.KindMemoRequest:
		d.handleMemoRequest(ctx, im)
	default:
		s.doPeering(ctx, ref, im.origin)
	}
}

// handlePresence registers the origin as reachable and resolves any
// carried root-index seed; a Null seed is a request for ours in reply.
func (d *inboundDispatcher) handlePresence(ctx context.Context, im inboundMemo) {
	s := d.slab
	presence := im.memo.Body.Presence
	seed := im.memo.Body.PresenceSeed

	s.registerKnownPeer(im.origin)
	s.registerKnownPeer(presence.Peer)

	if !seed.IsNull() && d.seeds != nil {
		if err := d.seeds.ApplyRootIndexSeed(ctx, presence, seed, im.origin); err != nil {
			s.log.Debug("inbound: root seed apply failed", "err", err)
		}
	}

	if seed.IsNull() && s.tx != nil {
		ours := memo.NullHead
		if src, ok := d.seeds.(interface{ CurrentSeed() (memo.Head, bool) }); ok {
			if h, has := src.CurrentSeed(); has {
				ours = h
			}
		}
		reply := memo.NewSlabPresenceBody(memo.SlabPresence{Peer: s.id}, ours)
		replyMemo := memo.New(nil, s.id, memo.NullHead, reply)
		if err := s.tx.Send(ctx, im.origin, replyMemo); err != nil {
			s.log.Debug("inbound: presence reply failed", "err", err)
		}
	}
}

// handlePeering merges a remote peering assertion for some target memo,
// rejecting self-peers.
func (d *inboundDispatcher) handlePeering(im inboundMemo) {
	s := d.slab
	body := im.memo.Body
	var entries []memo.PeerEntry
	for _, e := range body.PeerStates {
		if e.Peer == s.id {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return
	}
	if err := s.PutPeerSet(body.PeeringTarget, entries); err != nil {
		s.log.Debug("inbound: peering merge failed", "err", err)
	}
}

// handleMemoRequest answers a MemoRequest: resident memos are sent back
// directly; absent ones get a NonParticipating Peering reply so the
// requester stops asking this slab for them.
func (d *inboundDispatcher) handleMemoRequest(ctx context.Context, im inboundMemo) {
	s := d.slab
	if s.tx == nil {
		return
	}
	requester := im.memo.Body.RequestingPeer.Peer

	for _, id := range im.memo.Body.RequestedIDs {
		m, ok, err := s.store.getMemo(id)
		if err != nil {
			s.log.Debug("inbound: memo_request lookup failed", "memo", id, "err", err)
			continue
		}
		if ok {
			if err := s.tx.Send(ctx, requester, m); err != nil {
				s.log.Debug("inbound: memo_request send failed", "memo", id, "err", err)
			}
			continue
		}
		decline := memo.NewPeeringBody(id, nil, []memo.PeerEntry{{Peer: s.id, Status: memo.NonParticipating, Seq: atomic.AddUint64(&d.seq, 1)}})
		declineMemo := memo.New(nil, s.id, memo.NullHead, decline)
		if err := s.tx.Send(ctx, requester, declineMemo); err != nil {
			s.log.Debug("inbound: memo_request decline failed", "memo", id, "err", err)
		}
	}
}

// doPeering performs the ordinary peering handshake for any other body
// kind: reply to the origin with a Peering memo describing our own
// status for this memo. Memos that don't participate in peering
// (SlabPresence, Peering, MemoRequest) never reach here.
func (s *Slab) doPeering(ctx context.Context, ref memo.MemoRef, origin memo.SlabID) {
	if s.tx == nil || !ref.IsResident() {
		return
	}
	m, ok, err := s.store.getMemo(ref.MemoID)
	if err != nil || !ok || !m.DoesPeering() {
		return
	}

	seq := atomic.AddUint64(&s.inbound.seq, 1)
	status := memo.PeerEntry{Peer: s.id, Status: memo.Resident, Seq: seq}
	body := memo.NewPeeringBody(ref.MemoID, m.Entity, []memo.PeerEntry{status})
	peeringMemo := memo.New(nil, s.id, memo.NullHead, body)
	if err := s.tx.Send(ctx, origin, peeringMemo); err != nil {
		s.log.Debug("do_peering: send failed", "err", err)
	}
}
