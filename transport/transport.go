// Package transport defines the boundary between the peering protocol
// and whatever actually moves bytes between slabs: the core engine is
// explicitly agnostic to networking, so this package is two interfaces
// and a wire envelope, nothing else. transport/simulator is the only
// implementation carried in this repo; a production deployment supplies
// its own (TCP, QUIC, libp2p, ...).
package transport

import (
	"context"

	"github.com/arcology-network/unbase/memo"
)

// Frame is the unit `Sender` moves: which slab it's from, which slab it's
// addressed to, the peer-table entries the sender currently holds for
// the carried memo (piggybacked so a plain Edit/Edge memo's recipient
// doesn't need a second round trip just to learn who else has it), and
// the memo itself.
type Frame struct {
	From  memo.SlabID
	To    memo.SlabID
	Peers []memo.PeerEntry
	Memo  memo.Memo
}

// Sender is the only capability peering/reactor.go needs to hand a frame
// to another slab. Delivery is fire-and-forget from the caller's
// perspective: a Sender that accepts a frame is not promising the remote
// slab received or processed it, only that it attempted the send.
type Sender interface {
	Send(ctx context.Context, to memo.SlabID, f Frame) error
}

// ReturnAddresser resolves the address a remote peer should use to reach
// us back, given the address we observed them connect from (e.g. behind
// NAT, the observed source address and the advertised listen address
// differ). transport/simulator's identity implementation is adequate for
// a same-process topology; a real network transport supplies its own.
type ReturnAddresser interface {
	ReturnAddress(observed memo.Address) memo.Address
}
