// Package context implements the per-session query environment: a
// Context owns no background threads other than a single
// index-subscription applier task, wraps a Stash of locally
// materialized IndexNode heads, and resolves reads through a root index
// built on the entity's own head.
package context

import (
	"context"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/log"
	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/slab"
	"github.com/arcology-network/unbase/stash"
)

// DefaultRootDepth is the fanout depth new root indexes are built with
// when no seed is available yet.
const DefaultRootDepth = 5

// RootIndex is the contract context/kv.go's read/write paths consume:
// put an entity's head at its key (returning the index's own new root
// head so the caller can track it), look one up by id, or scan for the
// first entity whose projected field matches a value. FixedRootIndex is
// the only implementation; tests may substitute a fake.
type RootIndex interface {
	Put(ctx context.Context, id memo.EntityID, head memo.Head) (memo.Head, error)
	Get(ctx context.Context, id memo.EntityID) (memo.Head, bool, error)
	Scan(ctx context.Context, key, val string) (memo.Head, bool, error)
}

// Context is the query environment a caller holds for the lifetime of a
// session: a Slab handle, a Stash of resident IndexNode heads, and a
// lazily-resolved root index. The zero value is not usable; construct
// with NewContext.
type Context struct {
	slab *slab.Slab
	log  log.Logger
	st   *stash.Stash

	rootMu    deadlock.Mutex
	rootSeed  memo.Head
	rootIdx   RootIndex
	rootDepth uint8
	newIndex  func(seed memo.Head, depth uint8) RootIndex

	indexCh       chan memo.Head
	applierCancel context.CancelFunc
	applierDone   chan struct{}
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithLogger overrides the default nop logger.
func WithLogger(l log.Logger) Option {
	return func(c *Context) { c.log = l }
}

// MaxRootDepth is the largest legal WithRootDepth value: EntityID.Bits is
// a 16-byte array and FixedRootIndex consumes one byte per tier, so a
// deeper tree would index past the end of the id.
const MaxRootDepth = 16

// WithRootDepth overrides DefaultRootDepth for new root indexes seeded by
// this Context. Panics if depth exceeds MaxRootDepth.
func WithRootDepth(depth uint8) Option {
	if depth == 0 || depth > MaxRootDepth {
		panic("context: root depth must be between 1 and MaxRootDepth")
	}
	return func(c *Context) { c.rootDepth = depth }
}

// WithRootIndexFactory overrides how a RootIndex is constructed from a
// seed head, primarily for tests that want a fake RootIndex instead of a
// real FixedRootIndex.
func WithRootIndexFactory(f func(seed memo.Head, depth uint8) RootIndex) Option {
	return func(c *Context) { c.newIndex = f }
}

// NewContext constructs a Context over s and starts its only background
// thread, an index-subscription applier task, which folds every
// IndexNode head the slab observes into the stash so later reads see it
// without an explicit fetch.
func NewContext(s *slab.Slab, opts ...Option) *Context {
	c := &Context{
		slab:        s,
		log:         log.NewNopLogger(),
		st:          stash.New(),
		rootDepth:   DefaultRootDepth,
		indexCh:     make(chan memo.Head, 1000),
		applierDone: make(chan struct{}),
	}
	c.newIndex = func(seed memo.Head, depth uint8) RootIndex {
		return NewFixedRootIndex(s, seed, depth)
	}
	for _, opt := range opts {
		opt(c)
	}

	s.SubscribeIndex(c.indexCh)

	applierCtx, cancel := context.WithCancel(context.Background())
	c.applierCancel = cancel
	go c.runApplier(applierCtx)

	return c
}

func (c *Context) runApplier(ctx context.Context) {
	defer close(c.applierDone)
	for {
		select {
		case <-ctx.Done():
			return
		case head, ok := <-c.indexCh:
			if !ok {
				return
			}
			if _, err := c.st.ApplyHead(ctx, c.slab, head); err != nil {
				c.log.Error("context: background index apply failed", "err", err)
			}
		}
	}
}

// Close stops the background applier task. It does not close the
// underlying Slab.
func (c *Context) Close() {
	c.applierCancel()
	<-c.applierDone
}

// Slab returns the Slab this Context is backed by.
func (c *Context) Slab() *slab.Slab { return c.slab }

// ApplyHead folds head into the stash, used both by the background
// applier and directly by EntityHandle writes to IndexNode entities.
func (c *Context) ApplyHead(ctx context.Context, head memo.Head) (memo.Head, error) {
	return c.st.ApplyHead(ctx, c.slab, head)
}

// ResidentEntityHead returns the stash's current head for entity, or the
// Null head if nothing is resident yet.
func (c *Context) ResidentEntityHead(entity memo.EntityID) memo.Head {
	h, _ := c.st.GetHead(entity)
	return h
}

// Compact attempts to shrink the stash, issuing Edge memos for any
// entity heads whose children are already present and fresher in the
// stash.
func (c *Context) Compact(ctx context.Context) error {
	return stash.Compact(ctx, c.st, c.slab)
}

// IsFullyMaterialized reports whether every head presently in the stash
// terminates its projection at a FullyMaterialized barrier on every
// branch.
func (c *Context) IsFullyMaterialized(ctx context.Context) (bool, error) {
	p := memo.NewProjector(c.slab)
	for _, h := range c.st.Iter() {
		ok, err := p.IsFullyMaterialized(ctx, h)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// TryRootIndexNode returns the currently known root index seed head, or
// (Null, false) if no seed has been offered yet.
func (c *Context) TryRootIndexNode() (memo.Head, bool) {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	if c.rootSeed.IsNull() {
		return memo.NullHead, false
	}
	return c.rootSeed, true
}

// SeedRootIndex records seed as the root index's current head and builds
// the RootIndex instance the Context will hand out from here on.
// BootstrapRootIndex calls it; peering.Network, which resolves seeds
// carried by presence memos, does not call it, so a caller that wants a
// seed learned from a peer must pass it in here. It replaces any
// previously cached instance: a reseed means a different authoritative
// root to resolve against, not a refinement of the old one.
func (c *Context) SeedRootIndex(seed memo.Head) {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	c.rootSeed = seed
	c.rootIdx = c.newIndex(seed, c.rootDepth)
}

// advanceRootSeed records newRoot as the current root index head after a
// successful Put against the cached RootIndex instance. It does not
// replace that instance (whose Put already applied the mutation
// in-place, including its local iavl mirror); it only keeps rootSeed,
// the head TryRootIndexNode reports, in step with it.
func (c *Context) advanceRootSeed(newRoot memo.Head) {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	c.rootSeed = newRoot
}

// BootstrapRootIndex mints a fresh, empty IndexNode entity and seeds this
// Context's root index with it, for the first node of a new network.
// Calling it on a Context that already has a seed overwrites that seed;
// callers that joined an existing network should instead call
// SeedRootIndex with the network's actual root once a peer has supplied
// it.
func (c *Context) BootstrapRootIndex(ctx context.Context) (memo.Head, error) {
	entity := memo.NewEntityID(memo.IndexNode)
	ref, err := c.slab.NewMemo(&entity, memo.NullHead, memo.NewFullyMaterializedBody(nil, nil, nil, memo.IndexNode))
	if err != nil {
		return memo.Head{}, err
	}
	seed, err := memo.NewEntityHead(entity, ref)
	if err != nil {
		return memo.Head{}, err
	}
	c.SeedRootIndex(seed)
	return seed, nil
}

// RootIndex resolves this Context's root index, polling every 50ms until
// a seed is available or wait elapses. The same cached instance is
// returned on every call once one exists, so a Put made through one
// resolution is visible to the next: the root head and the index's
// internal iavl mirror both carry forward instead of being rebuilt from
// the original seed each time.
func (c *Context) RootIndex(ctx context.Context, wait time.Duration) (RootIndex, error) {
	deadline := time.Now().Add(wait)
	for {
		if idx, ok := c.currentRootIndex(); ok {
			return idx, nil
		}
		if time.Now().After(deadline) {
			return nil, memo.ErrIndexNotInitialized
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (c *Context) currentRootIndex() (RootIndex, bool) {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	if c.rootIdx == nil {
		return nil, false
	}
	return c.rootIdx, true
}

// updateIndices inserts or refreshes entity's root-index entry (keyed by
// its own id) and advances rootSeed to the resulting root head; the
// background applier folds that head into the stash once the slab's
// index subscription delivers it. Called after every record write that
// must remain discoverable by GetEntityByID/FetchKV.
func (c *Context) updateIndices(ctx context.Context, entity memo.EntityID, head memo.Head) error {
	idx, err := c.RootIndex(ctx, 5*time.Second)
	if err != nil {
		return err
	}
	newRoot, err := idx.Put(ctx, entity, head)
	if err != nil {
		return err
	}
	c.advanceRootSeed(newRoot)
	return nil
}
