package context

import (
	"context"
	"sync"

	ics23 "github.com/confio/ics23/go"
	"github.com/cosmos/iavl"
	dbm "github.com/tendermint/tm-db"

	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/slab"
)

// FixedRootIndex is a fixed-fanout tree of IndexNode heads: an entity id
// is routed through depth tiers of 256-wide index nodes, one byte of the
// id selecting the edge slot at each tier, creating any IndexNode
// that doesn't exist yet along the way. The causal chain of Edge memos
// built this way is the actual source of truth; FixedRootIndex
// additionally mirrors every (entity id -> head) binding into a local
// cosmos/iavl tree purely so the index has a merkle root and an
// ics23-compatible proof to offer for observability. A restarted process
// loses that mirror without losing any real data, since the real data
// lives in the Edge memo chain like any other entity.
type FixedRootIndex struct {
	s     *slab.Slab
	depth uint8

	mu   sync.Mutex
	root memo.Head
	tree *iavl.MutableTree
}

// NewFixedRootIndex wraps root, the seed head a Context resolved via
// RootIndex, as a depth-tier fixed-fanout index.
func NewFixedRootIndex(s *slab.Slab, root memo.Head, depth uint8) *FixedRootIndex {
	tree, err := iavl.NewMutableTree(dbm.NewMemDB(), 100)
	if err != nil {
		panic("context: building iavl mirror: " + err.Error())
	}
	return &FixedRootIndex{s: s, root: root, depth: depth, tree: tree}
}

func entityKey(id memo.EntityID) []byte {
	key := make([]byte, 1, 17)
	key[0] = byte(id.Type)
	return append(key, id.Bits[:]...)
}

// Put inserts or updates id's head in the fixed-fanout tree and mirrors
// the binding into the iavl tree, returning the tree's new root head.
func (idx *FixedRootIndex) Put(ctx context.Context, id memo.EntityID, head memo.Head) (memo.Head, error) {
	idx.mu.Lock()
	root := idx.root
	idx.mu.Unlock()

	newRoot, err := idx.recurseSet(ctx, 0, id, root, head)
	if err != nil {
		return memo.Head{}, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.root = newRoot
	idx.tree.Set(entityKey(id), memo.EncodeHead(head))
	if _, _, err := idx.tree.SaveVersion(); err != nil {
		return memo.Head{}, err
	}
	return newRoot, nil
}

// recurseSet walks tier-by-tier through nested IndexNode entities,
// creating a fresh IndexNode at any tier that doesn't exist yet, and
// returns node's new head after the leaf binding has been threaded all
// the way back up.
func (idx *FixedRootIndex) recurseSet(ctx context.Context, tier uint8, id memo.EntityID, node memo.Head, leaf memo.Head) (memo.Head, error) {
	slot := int(id.Bits[tier])

	if tier == idx.depth-1 {
		return idx.bindSlot(node, slot, leaf)
	}

	child, found, err := memo.NewProjector(idx.s).ProjectEdge(ctx, node, slot)
	if err != nil {
		return memo.Head{}, err
	}
	if !found || child.IsNull() {
		child, err = idx.newIndexNode()
		if err != nil {
			return memo.Head{}, err
		}
	}

	newChild, err := idx.recurseSet(ctx, tier+1, id, child, leaf)
	if err != nil {
		return memo.Head{}, err
	}
	return idx.bindSlot(node, slot, newChild)
}

func (idx *FixedRootIndex) newIndexNode() (memo.Head, error) {
	entity := memo.NewEntityID(memo.IndexNode)
	ref, err := idx.s.NewMemo(&entity, memo.NullHead, memo.NewFullyMaterializedBody(nil, nil, nil, memo.IndexNode))
	if err != nil {
		return memo.Head{}, err
	}
	return memo.NewEntityHead(entity, ref)
}

// bindSlot issues an Edge memo on node's entity binding slot to value,
// returning the resulting head.
func (idx *FixedRootIndex) bindSlot(node memo.Head, slot int, value memo.Head) (memo.Head, error) {
	entity, ok := node.EntityID()
	if !ok {
		return memo.Head{}, memo.ErrInvalidHead
	}
	ref, err := idx.s.NewMemo(&entity, node, memo.NewEdgeBody(map[int]memo.Head{slot: value}))
	if err != nil {
		return memo.Head{}, err
	}
	return memo.NewEntityHead(entity, ref)
}

// Get looks up id's current head by walking the same depth tiers Put
// built, returning (Null, false, nil) the moment any tier's slot is
// unbound.
func (idx *FixedRootIndex) Get(ctx context.Context, id memo.EntityID) (memo.Head, bool, error) {
	idx.mu.Lock()
	node := idx.root
	idx.mu.Unlock()

	proj := memo.NewProjector(idx.s)
	for tier := uint8(0); tier < idx.depth; tier++ {
		slot := int(id.Bits[tier])
		child, found, err := proj.ProjectEdge(ctx, node, slot)
		if err != nil {
			return memo.Head{}, false, err
		}
		if !found || child.IsNull() {
			return memo.Head{}, false, nil
		}
		if tier == idx.depth-1 {
			return child, true, nil
		}
		node = child
	}
	return memo.Head{}, false, nil
}

// Scan returns the head of the first indexed entity whose projected
// value for key equals val, walking the iavl mirror in key order: a
// linear scan over every indexed entity, projecting key on each one.
func (idx *FixedRootIndex) Scan(ctx context.Context, key, val string) (memo.Head, bool, error) {
	idx.mu.Lock()
	var encoded [][]byte
	idx.tree.Iterate(func(k, v []byte) bool {
		encoded = append(encoded, append([]byte(nil), v...))
		return false
	})
	idx.mu.Unlock()

	proj := memo.NewProjector(idx.s)
	for _, v := range encoded {
		head, err := memo.DecodeHead(v)
		if err != nil {
			return memo.Head{}, false, err
		}
		value, found, err := proj.ProjectValue(ctx, head, key)
		if err != nil {
			return memo.Head{}, false, err
		}
		if found && value == val {
			return head, true, nil
		}
	}
	return memo.Head{}, false, nil
}

// RootHash returns the iavl mirror's current merkle root, for
// observability.
func (idx *FixedRootIndex) RootHash() []byte {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.tree.Hash()
}

// ProofSpec returns the ics23 proof spec the iavl mirror's proofs conform
// to, so an introspection client can verify a membership proof against
// RootHash without guessing the tree's hashing parameters.
func (idx *FixedRootIndex) ProofSpec() *ics23.ProofSpec {
	return ics23.IavlSpec
}
