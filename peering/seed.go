package peering

import (
	"context"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/memo"
)

// SeedSource supplies the root-index seed a presence announcement should
// carry, if this process currently holds one.
type SeedSource interface {
	CurrentSeed() (memo.Head, bool)
}

// Network is the process-wide holder of a single slab's root-index seed.
// A process that ran several local slabs at once would need to migrate
// this seed between them as they register and deregister; this module
// runs exactly one *slab.Slab per process (cmd/unbased starts exactly
// one), so Network is scoped down to a single bound slab and DropSeed
// simply forgets the seed rather than migrating it anywhere.
type Network struct {
	self    memo.SlabID
	fetcher memo.Fetcher

	mu      deadlock.Mutex
	seed    memo.Head
	hasSeed bool
}

// NewNetwork constructs a Network bound to self, resolving memo ancestry
// for seed-divergence comparisons through fetcher (ordinarily the local
// *slab.Slab itself).
func NewNetwork(self memo.SlabID, fetcher memo.Fetcher) *Network {
	return &Network{self: self, fetcher: fetcher}
}

// CurrentSeed implements SeedSource.
func (n *Network) CurrentSeed() (memo.Head, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seed, n.hasSeed
}

// SeedSelf installs seed as this process's root index, for the first
// node of a new network, called instead of waiting on a peer handshake.
func (n *Network) SeedSelf(seed memo.Head) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seed, n.hasSeed = seed, true
}

// DropSeed forgets this process's root index seed, for when its one bound
// slab is shutting down.
func (n *Network) DropSeed() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seed, n.hasSeed = memo.Head{}, false
}

// ApplyRootIndexSeed implements slab.RootSeedHandler: it resolves an
// incoming presence's seed against whatever this Network currently
// holds. A slab without a seed accepts the first non-Null one it sees;
// a later seed is accepted only if it descends, or is descended by, the
// current one; anything else is left alone.
func (n *Network) ApplyRootIndexSeed(ctx context.Context, presence memo.SlabPresence, seed memo.Head, origin memo.SlabID) error {
	if seed.IsNull() {
		return nil
	}

	n.mu.Lock()
	current, hasSeed := n.seed, n.hasSeed
	n.mu.Unlock()

	if !hasSeed {
		n.mu.Lock()
		n.seed, n.hasSeed = seed, true
		n.mu.Unlock()
		return nil
	}

	newDescendsCurrent, err := memo.DescendsOrContains(ctx, n.fetcher, seed, current)
	if err != nil {
		return err
	}
	if newDescendsCurrent {
		n.mu.Lock()
		n.seed = seed
		n.mu.Unlock()
		return nil
	}

	currentDescendsNew, err := memo.DescendsOrContains(ctx, n.fetcher, current, seed)
	if err != nil {
		return err
	}
	if currentDescendsNew {
		// current already covers seed; nothing to do.
		return nil
	}

	// Diverging root, from a slab we don't already agree with: reject
	// rather than merge, per the seed-divergence rule.
	return nil
}
