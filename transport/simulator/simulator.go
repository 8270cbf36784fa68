// Package simulator is an in-process transport.Sender backed by a
// manually-advanced logical clock: frames are queued with a delivery
// tick computed from a fixed per-link latency rather than delivered
// synchronously, so tests can exercise out-of-order arrival and
// partition-then-heal scenarios deterministically instead of racing real
// goroutine scheduling. Every link shares one configurable latency,
// since nothing in this repo's test scenarios needs per-pair distances.
package simulator

import (
	"context"
	"sort"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/transport"
)

// Recipient is the delivery callback a registered slab's reactor
// implements. peering.Reactor satisfies this structurally.
type Recipient interface {
	ReceiveFrame(ctx context.Context, f transport.Frame)
}

type event struct {
	due  uint64
	dest memo.SlabID
	f    transport.Frame
}

// Simulator is a shared clock and event queue standing in for a real
// network among every slab registered with it. The zero value is not
// usable; construct with New.
type Simulator struct {
	mu      deadlock.Mutex
	clock   uint64
	latency uint64
	queue   []event
	peers   map[memo.SlabID]Recipient
}

// Option configures a Simulator at construction time.
type Option func(*Simulator)

// WithLatency overrides the default one-tick delivery latency applied to
// every frame sent through the simulator.
func WithLatency(ticks uint64) Option {
	return func(s *Simulator) { s.latency = ticks }
}

// New constructs a Simulator with its clock at zero.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		latency: 1,
		peers:   make(map[memo.SlabID]Recipient),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds id to r so frames addressed to id are delivered to r on
// a future AdvanceClock call.
func (s *Simulator) Register(id memo.SlabID, r Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[id] = r
}

// Deregister removes id. Frames already queued for it are dropped
// silently on delivery.
func (s *Simulator) Deregister(id memo.SlabID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, id)
}

// SenderFor returns a transport.Sender that stamps outbound frames with
// from and enqueues them on this simulator.
func (s *Simulator) SenderFor(from memo.SlabID) transport.Sender {
	return &boundSender{sim: s, from: from}
}

type boundSender struct {
	sim  *Simulator
	from memo.SlabID
}

func (b *boundSender) Send(ctx context.Context, to memo.SlabID, f transport.Frame) error {
	f.From = b.from
	f.To = to
	b.sim.mu.Lock()
	due := b.sim.clock + b.sim.latency
	b.sim.queue = append(b.sim.queue, event{due: due, dest: to, f: f})
	b.sim.mu.Unlock()
	return nil
}

// ReturnAddress implements transport.ReturnAddresser: a same-process
// simulated topology has no NAT-style address rewriting, so the observed
// address is already correct.
func (s *Simulator) ReturnAddress(observed memo.Address) memo.Address { return observed }

// Clock returns the simulator's current logical tick.
func (s *Simulator) Clock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// AdvanceClock moves the simulated clock forward by ticks and delivers
// every event now due, in due-tick order.
func (s *Simulator) AdvanceClock(ctx context.Context, ticks uint64) {
	s.mu.Lock()
	s.clock += ticks
	now := s.clock

	due := make([]event, 0, len(s.queue))
	remaining := s.queue[:0]
	for _, e := range s.queue {
		if e.due <= now {
			due = append(due, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	s.queue = remaining
	recipients := make(map[memo.SlabID]Recipient, len(s.peers))
	for id, r := range s.peers {
		recipients[id] = r
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].due < due[j].due })

	for _, e := range due {
		if r, ok := recipients[e.dest]; ok {
			r.ReceiveFrame(ctx, e.f)
		}
	}
}

// Pending reports how many frames are still in flight, for tests driving
// AdvanceClock until the network goes quiet.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
