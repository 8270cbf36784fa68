// Package peering adapts the slab package's already-built memo peering
// protocol (slab/inbound.go's presence/peering/memo-request dispatch) onto
// a concrete transport.Sender: Reactor implements slab.Transmitter so a
// Slab can hand it outbound memos, tracks which peers it has been told
// about, and re-announces presence to each on an interval, keeping each
// peer's knowledge of us, and our root index seed, fresh.
package peering

import (
	"context"
	"sync"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/log"
	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/slab"
	"github.com/arcology-network/unbase/transport"
)

// PresenceInterval is how often Reactor re-announces presence to each
// peer it knows about.
const PresenceInterval = 5 * time.Second

// Reactor is the peering protocol driver bound to one local Slab. It is
// constructed with its own identity ahead of the Slab it will serve,
// since the Slab needs a Transmitter (the Reactor) at construction time
// while the Reactor needs the constructed Slab to dispatch inbound
// frames into: call Bind once the Slab exists, before Start-ing the Slab.
type Reactor struct {
	log    log.Logger
	id     memo.SlabID
	bound  *slab.Slab
	sender transport.Sender
	addrs  []memo.Address
	seeds  SeedSource

	mu    deadlock.Mutex
	peers map[memo.SlabID]chan struct{}
	wg    sync.WaitGroup
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithLogger overrides the default nop logger.
func WithLogger(l log.Logger) Option { return func(r *Reactor) { r.log = l } }

// WithAddresses sets the addresses this reactor advertises in its own
// presence announcements.
func WithAddresses(addrs ...memo.Address) Option {
	return func(r *Reactor) { r.addrs = addrs }
}

// WithSeedSource supplies the root-index seed presence announcements
// should carry, once this process has one (see seed.go's Network).
func WithSeedSource(s SeedSource) Option { return func(r *Reactor) { r.seeds = s } }

// NewReactor constructs a Reactor identifying itself as id, sending
// outbound frames through sender. Call Bind once the Slab using it as a
// Transmitter has been constructed.
func NewReactor(id memo.SlabID, sender transport.Sender, opts ...Option) *Reactor {
	r := &Reactor{
		log:    log.NewNopLogger(),
		id:     id,
		sender: sender,
		peers:  make(map[memo.SlabID]chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind attaches the local Slab this Reactor dispatches inbound frames
// into. Must be called before ReceiveFrame does anything useful.
func (r *Reactor) Bind(s *slab.Slab) { r.bound = s }

// Send implements slab.Transmitter, the outbound path a Slab is wired to
// via slab.WithTransmitter(reactor).
func (r *Reactor) Send(ctx context.Context, to memo.SlabID, m memo.Memo) error {
	return r.sender.Send(ctx, to, transport.Frame{From: r.id, To: to, Memo: m})
}

// ReceiveFrame is the inbound path: any transport (transport/simulator's
// Recipient interface, or a real network listener) hands delivered frames
// to this method. It merges the frame's piggybacked peer table, if any,
// and feeds the carried memo into the bound Slab's inbound dispatch.
func (r *Reactor) ReceiveFrame(ctx context.Context, f transport.Frame) {
	if r.bound == nil {
		r.log.Debug("peering: dropped frame, reactor not yet bound to a slab")
		return
	}
	if len(f.Peers) > 0 {
		if err := r.bound.PutPeerSet(f.Memo.ID(), f.Peers); err != nil {
			r.log.Debug("peering: piggybacked peerset merge failed", "err", err)
		}
	}
	if err := r.bound.HandleInbound(f.Memo, f.From); err != nil {
		r.log.Debug("peering: inbound dispatch failed", "from", f.From, "err", err)
	}
}

// AddPeer registers peer as known to this reactor: it sends an immediate
// presence announcement and starts peer's periodic re-announce loop.
func (r *Reactor) AddPeer(peer memo.SlabID) {
	r.mu.Lock()
	if _, exists := r.peers[peer]; exists {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.peers[peer] = stop
	r.mu.Unlock()

	r.announce(peer)

	r.wg.Add(1)
	go r.announceLoop(peer, stop)
}

// RemovePeer stops peer's announce loop. Memos and peer-table entries
// already recorded about peer are untouched.
func (r *Reactor) RemovePeer(peer memo.SlabID) {
	r.mu.Lock()
	stop, ok := r.peers[peer]
	delete(r.peers, peer)
	r.mu.Unlock()
	if ok {
		close(stop)
	}
}

func (r *Reactor) announceLoop(peer memo.SlabID, stop chan struct{}) {
	defer r.wg.Done()
	t := time.NewTicker(PresenceInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.announce(peer)
		}
	}
}

// announce sends peer a SlabPresence memo, attaching our current root
// index seed if we have one. Presence memos are control traffic: built
// with memo.New directly and sent without going through the Slab's own
// NewMemo/PutMemo path, matching slab/inbound.go's handlePresence reply,
// which never persists the presence memos it answers with either.
func (r *Reactor) announce(peer memo.SlabID) {
	var seed memo.Head
	if r.seeds != nil {
		if s, ok := r.seeds.CurrentSeed(); ok {
			seed = s
		}
	}
	body := memo.NewSlabPresenceBody(memo.SlabPresence{
		Peer:      r.id,
		Addresses: r.addrs,
		Lifetime:  memo.Long,
		Liveness:  memo.Available,
	}, seed)
	m := memo.New(nil, r.id, memo.NullHead, body)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Send(ctx, peer, m); err != nil {
		r.log.Debug("peering: presence announce failed", "peer", peer, "err", err)
	}
}

// Close stops every peer's announce loop and waits for them to exit.
func (r *Reactor) Close() {
	r.mu.Lock()
	stops := make([]chan struct{}, 0, len(r.peers))
	for _, stop := range r.peers {
		stops = append(stops, stop)
	}
	r.peers = make(map[memo.SlabID]chan struct{})
	r.mu.Unlock()

	for _, stop := range stops {
		close(stop)
	}
	r.wg.Wait()
}
