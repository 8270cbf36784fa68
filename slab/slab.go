package slab

import (
	"context"
	"sync/atomic"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
	db "github.com/tendermint/tm-db"

	"github.com/arcology-network/unbase/log"
	"github.com/arcology-network/unbase/memo"
)

// DefaultTargetPeers is the default number of peers consider_emit tries
// to reach for a peering-eligible memo before it stops soliciting more.
// The exact durability score is left implementation-defined;
// config.SlabConfig exposes it as TargetPeers so it need not be
// recompiled to retune.
const DefaultTargetPeers = 5

// Transmitter is the narrow capability a Slab needs to hand a memo to
// another slab. It is deliberately minimal: peering/ and transport/ own
// everything about addresses, connections, and retries; a Slab just
// calls Send.
type Transmitter interface {
	Send(ctx context.Context, to memo.SlabID, m memo.Memo) error
}

// Slab is a node's local store: the memo table, the peering table, the
// inbound dispatch loop, subscriber fan-out, and the counters. It
// implements memo.Fetcher so Head algebra and Projector can walk through
// it transparently, fetching remote memos on demand.
type Slab struct {
	id   memo.SlabID
	log  log.Logger
	metr *Metrics

	store       *store
	peerMu      deadlock.Mutex
	knownPeers  map[memo.PeerID]struct{}
	targetPeers int
	attic       *attic

	tx Transmitter

	inbound *inboundDispatcher
	subs    *subscriptions
	waiters *waiterTable

	closeOnce chan struct{}
}

// Option configures a Slab at construction time.
type Option func(*Slab)

// WithLogger overrides the default nop logger.
func WithLogger(l log.Logger) Option {
	return func(s *Slab) { s.log = l }
}

// WithMetrics overrides the default no-op Metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Slab) { s.metr = m }
}

// WithTargetPeers overrides DefaultTargetPeers, the witness count
// consider_emit solicits for each peering-eligible memo.
func WithTargetPeers(n int) Option {
	return func(s *Slab) { s.targetPeers = n }
}

// WithTransmitter wires the transport used to relay memos during peering
// and memo-request handling. A Slab with no transmitter can still serve
// local reads/writes; it just can't participate in peering.
func WithTransmitter(tx Transmitter) Option {
	return func(s *Slab) { s.tx = tx }
}

// New constructs a Slab with the given identity, backed by db (typically
// db.NewMemDB() for tests, or any other tm-db db.DB for production).
func New(id memo.SlabID, backing db.DB, opts ...Option) *Slab {
	s := &Slab{
		id:         id,
		log:        log.NewNopLogger(),
		metr:       NopMetrics(),
		store:      newStore(backing),
		subs:       newSubscriptions(),
		waiters:    newWaiterTable(),
		knownPeers:  make(map[memo.PeerID]struct{}),
		targetPeers: DefaultTargetPeers,
		attic:       newAttic(),
		closeOnce:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.inbound = newInboundDispatcher(s)
	return s
}

// ID returns this slab's identity.
func (s *Slab) ID() memo.SlabID { return s.id }

// Start launches the background inbound-dispatch task. Callers that only
// need local reads/writes (no peering) may skip calling Start.
func (s *Slab) Start() {
	s.inbound.start()
}

// Close stops the inbound dispatch loop and releases resources.
func (s *Slab) Close() error {
	select {
	case <-s.closeOnce:
		return ErrClosed
	default:
		close(s.closeOnce)
	}
	s.inbound.stop()
	return s.store.db.Close()
}

func (s *Slab) isClosed() bool {
	select {
	case <-s.closeOnce:
		return true
	default:
		return false
	}
}

// NewMemo constructs, persists, and emits a new memo owned by this slab.
// Entity memos are created through it; control memos (presence replies,
// peering assertions, memo requests) are built with memo.New and sent
// without being persisted here.
func (s *Slab) NewMemo(entity *memo.EntityID, parents memo.Head, body memo.Body) (memo.MemoRef, error) {
	m := memo.New(entity, s.id, parents, body)
	ref, err := s.PutMemo(m)
	if err != nil {
		return memo.MemoRef{}, err
	}
	s.considerEmit(ref)
	return ref, nil
}

// PutMemo persists m if not already resident, notifies subscribers and
// waiters, and returns a resident MemoRef. Idempotent: putting an
// already-resident memo is a no-op beyond the metrics bump.
func (s *Slab) PutMemo(m memo.Memo) (memo.MemoRef, error) {
	s.metr.MemosReceived.Add(1)

	already, err := s.store.hasMemo(m.ID())
	if err != nil {
		return memo.MemoRef{}, err
	}
	if already {
		s.metr.MemosRedundantlyReceived.Add(1)
		return memo.NewResidentMemoRef(m, nil), nil
	}

	compressed, err := s.store.putMemo(m)
	if err != nil {
		return memo.MemoRef{}, err
	}
	s.metr.MemosResident.Add(1)

	ref := memo.NewResidentMemoRef(m, compressed)
	s.trackPeering(m.ID(), m.DoesPeering())
	s.subs.notify(m)
	s.waiters.satisfy(m)
	return ref, nil
}

// GetMemo retrieves a memo by ref. If the ref is resident locally it is
// decoded straight from the local store; otherwise, if allowRemote is
// true, the call suspends (respecting ctx's deadline) until either the
// memo arrives via the inbound dispatch loop or the deadline elapses.
func (s *Slab) GetMemo(ctx context.Context, ref memo.MemoRef, allowRemote bool) (memo.Memo, error) {
	m, ok, err := s.store.getMemo(ref.MemoID)
	if err != nil {
		return memo.Memo{}, err
	}
	if ok {
		return m, nil
	}
	if !allowRemote {
		return memo.Memo{}, memo.ErrNotFoundLocally
	}
	if s.tx == nil {
		return memo.Memo{}, ErrRemoteNotAllowed
	}
	return s.waitAndRequest(ctx, ref)
}

// FetchMemo implements memo.Fetcher, always allowing a remote fetch: Head
// algebra and Projector need whatever they ask for to walk causal history.
func (s *Slab) FetchMemo(ctx context.Context, ref memo.MemoRef) (memo.Memo, error) {
	return s.GetMemo(ctx, ref, true)
}

// waitAndRequest registers a waiter for ref.MemoID, issues a MemoRequest
// to any peer known to hold it, and blocks until satisfied, canceled, or
// timed out. No dangling waiter state is left behind on any exit path.
func (s *Slab) waitAndRequest(ctx context.Context, ref memo.MemoRef) (memo.Memo, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, waitTimeout)
		defer cancel()
	}

	ch, cancel := s.waiters.register(ref.MemoID)
	defer cancel()

	if err := s.requestMemo(ctx, ref); err != nil {
		s.log.Debug("memo request failed", "memo", ref.MemoID, "err", err)
	}

	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return memo.Memo{}, memo.ErrNotFoundByDeadline
	}
}

func (s *Slab) requestMemo(ctx context.Context, ref memo.MemoRef) error {
	peers, err := s.store.getPeerSet(ref.MemoID)
	if err != nil {
		return err
	}
	var target memo.PeerID
	for _, e := range peers.Entries() {
		if e.Status == memo.Resident || e.Status == memo.Participating {
			target = e.Peer
			break
		}
	}
	if target.Zero() {
		return memo.ErrSlabUnreachable
	}
	reqBody := memo.NewMemoRequestBody([]memo.ID{ref.MemoID}, memo.SlabPresence{Peer: s.id})
	reqMemo := memo.New(nil, s.id, memo.NullHead, reqBody)
	return s.tx.Send(ctx, target, reqMemo)
}

// ConditionalRemoveMemo deletes a resident memo's local bytes if it is
// peered with at least minPeers other slabs: the durability guarantee
// the cluster relies on instead of every slab holding every memo
// forever. On success it broadcasts a Peering memo announcing this
// slab's own transition to Participating, mirroring the reply
// doPeering sends when a memo first arrives, so id's peers don't keep
// treating this slab as a Resident witness after it drops the bytes.
func (s *Slab) ConditionalRemoveMemo(id memo.ID, minPeers int) (bool, error) {
	peers, err := s.GetPeerSet(id)
	if err != nil {
		return false, err
	}
	if peers.CountResidentOrParticipating() < minPeers {
		return false, nil
	}
	m, ok, err := s.store.getMemo(id)
	if err != nil {
		return false, err
	}
	if err := s.store.deleteMemo(id); err != nil {
		return false, err
	}
	s.metr.MemosResident.Add(-1)
	s.attic.remove(id)

	if ok {
		s.announceParticipating(id, m.Entity, peers)
	}
	return true, nil
}

// announceParticipating broadcasts a Peering memo to every peer id's
// table already knows about, recording that this slab has demoted
// itself from Resident to Participating.
func (s *Slab) announceParticipating(id memo.ID, entity *memo.EntityID, peers *memo.PeerSet) {
	if s.tx == nil {
		return
	}
	seq := atomic.AddUint64(&s.inbound.seq, 1)
	status := memo.PeerEntry{Peer: s.id, Status: memo.Participating, Seq: seq}
	body := memo.NewPeeringBody(id, entity, []memo.PeerEntry{status})
	announcement := memo.New(nil, s.id, memo.NullHead, body)

	for _, e := range peers.Entries() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		if err := s.tx.Send(ctx, e.Peer, announcement); err != nil {
			s.log.Debug("conditional_remove: peering announce failed", "peer", e.Peer, "memo", id, "err", err)
		}
		cancel()
	}
}

// PutPeerSet merges incoming peering assertions about id into the
// recorded table, last-writer-wins by Seq (memo.PeerSet.Merge). Entries
// about this slab itself are dropped: a slab never peers with itself.
func (s *Slab) PutPeerSet(id memo.ID, incoming []memo.PeerEntry) error {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()

	ps, err := s.store.getPeerSet(id)
	if err != nil {
		return err
	}
	for _, e := range incoming {
		if e.Peer == s.id {
			continue
		}
		ps.Put(e.Peer, e.Status, e.Seq)
		s.knownPeers[e.Peer] = struct{}{}
	}
	s.metr.PeerSlabCount.Set(float64(len(s.knownPeers)))
	if err := s.store.putPeerSet(id, ps); err != nil {
		return err
	}
	if m, ok, err := s.store.getMemo(id); err == nil && ok && m.DoesPeering() {
		s.trackPeeringCount(id, ps.CountResidentOrParticipating())
	}
	return nil
}

// registerKnownPeer records peer as reachable, independent of any
// specific memo's peering table: used when a SlabPresence arrives, so
// future considerEmit calls know it as a candidate witness.
func (s *Slab) registerKnownPeer(peer memo.PeerID) {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	s.knownPeers[peer] = struct{}{}
	s.metr.PeerSlabCount.Set(float64(len(s.knownPeers)))
}

// GetPeerSet returns the recorded peering table for id.
func (s *Slab) GetPeerSet(id memo.ID) (*memo.PeerSet, error) {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	return s.store.getPeerSet(id)
}

// KnownPeers returns every peer this slab has heard about, independent of
// any specific memo's peering table (the set registerKnownPeer/PutPeerSet
// maintain).
func (s *Slab) KnownPeers() []memo.PeerID {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	out := make([]memo.PeerID, 0, len(s.knownPeers))
	for p := range s.knownPeers {
		out = append(out, p)
	}
	return out
}

// Subscribe registers ch to receive every new Head touching entity.
// Closing ch unregisters it; the next notify sweep drops closed
// channels.
func (s *Slab) Subscribe(entity memo.EntityID, ch chan<- memo.Head) {
	s.subs.subscribeEntity(entity, ch)
}

// SubscribeIndex registers ch to receive every new Head for any
// IndexNode entity, used by context's root-index applier.
func (s *Slab) SubscribeIndex(ch chan<- memo.Head) {
	s.subs.subscribeIndex(ch)
}

// HandleInbound feeds a memo that arrived from another slab into the
// single inbound-dispatch task, returning once it has been queued, not
// once it has been processed.
func (s *Slab) HandleInbound(m memo.Memo, from memo.SlabID) error {
	return s.inbound.enqueue(inboundMemo{memo: m, origin: from})
}

// waitTimeout is the default deadline waitAndRequest honors when the
// caller's context carries no deadline of its own.
const waitTimeout = 30 * time.Second
