package memo

import "context"

// Projector walks a Head's memos in reverse-causal, breadth-first order
// to compute field values, relations, and edges. It is deliberately a
// value-ish type around a Fetcher: iteration is lazy, finite, and
// non-restartable, fetching remote parents on demand as it walks.
type Projector struct {
	f Fetcher
}

// NewProjector returns a Projector reading through f (typically *slab.Slab).
func NewProjector(f Fetcher) *Projector {
	return &Projector{f: f}
}

// walk performs the reverse-causal BFS shared by every projection
// operation, invoking visit for each memo reached (each memo visited at
// most once, even if reachable via multiple paths: a diamond in the DAG
// must not be double-counted). visit returns stop=true to end the walk
// early (a materialized barrier, or "found what we needed").
func (p *Projector) walk(ctx context.Context, h Head, visit func(Memo) (stop bool, err error)) error {
	seen := make(map[ID]struct{})
	queue := append([]MemoRef(nil), h.Refs()...)

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]

		if _, ok := seen[ref.MemoID]; ok {
			continue
		}
		seen[ref.MemoID] = struct{}{}

		m, err := p.f.FetchMemo(ctx, ref)
		if err != nil {
			return err
		}

		stop, err := visit(m)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}

		queue = append(queue, m.Parents.Refs()...)
	}
	return nil
}

// ProjectValue returns the first value seen for field, walking in
// reverse-causal order; it stops at a FullyMaterialized memo even if the
// field is absent there (that memo is a barrier).
func (p *Projector) ProjectValue(ctx context.Context, h Head, field string) (string, bool, error) {
	var value string
	var found bool

	err := p.walk(ctx, h, func(m Memo) (bool, error) {
		values, barrier, has := m.Body.valuesFor()
		if !has {
			return false, nil
		}
		if v, ok := values[field]; ok {
			value, found = v, true
			return true, nil
		}
		if barrier {
			return true, nil
		}
		return false, nil
	})
	return value, found, err
}

// ProjectRelation returns the first relation binding seen for slot. A nil
// *EntityID with found=true represents an explicitly-cleared slot.
func (p *Projector) ProjectRelation(ctx context.Context, h Head, slot int) (*EntityID, bool, error) {
	var value *EntityID
	var found bool

	err := p.walk(ctx, h, func(m Memo) (bool, error) {
		relations, barrier, has := m.Body.relationsFor()
		if !has {
			return false, nil
		}
		if v, ok := relations[slot]; ok {
			value, found = v, true
			return true, nil
		}
		if barrier {
			return true, nil
		}
		return false, nil
	})
	return value, found, err
}

// ProjectEdge returns the first edge head bound to slot.
func (p *Projector) ProjectEdge(ctx context.Context, h Head, slot int) (Head, bool, error) {
	var value Head
	var found bool

	err := p.walk(ctx, h, func(m Memo) (bool, error) {
		edges, barrier, has := m.Body.edgesFor()
		if !has {
			return false, nil
		}
		if v, ok := edges[slot]; ok {
			value, found = v, true
			return true, nil
		}
		if barrier {
			return true, nil
		}
		return false, nil
	})
	return value, found, err
}

// OccupiedEdge is one (slot, child head) pair yielded by
// ProjectOccupiedEdges for a slot that is still occupied in the merged
// projection; used by stash compaction.
type OccupiedEdge struct {
	Slot int
	Head Head
}

// EdgeLink is one resolved edge slot, occupied or explicitly vacated,
// yielded by ProjectAllEdgeLinks. Stash compaction needs both kinds: an
// occupied link identifies a child to prune; a vacant link identifies a
// relation slot that must be cleared even though nothing occupies it.
type EdgeLink struct {
	Slot     int
	Occupied bool
	Head     Head // meaningful only when Occupied
}

// ProjectAllEdgeLinks is ProjectOccupiedEdges's superset: it yields every
// resolved slot, including ones explicitly cleared to Null, which the
// stash needs to drop stale relation back-references (stash/stash.go).
func (p *Projector) ProjectAllEdgeLinks(ctx context.Context, h Head) ([]EdgeLink, error) {
	resolved := make(map[int]bool)
	var out []EdgeLink

	err := p.walk(ctx, h, func(m Memo) (bool, error) {
		edges, barrier, has := m.Body.edgesFor()
		if has {
			for slot, childHead := range edges {
				if resolved[slot] {
					continue
				}
				resolved[slot] = true
				out = append(out, EdgeLink{Slot: slot, Occupied: !childHead.IsNull(), Head: childHead})
			}
			if barrier {
				return true, nil
			}
		}
		return false, nil
	})
	return out, err
}

// IsFullyMaterialized reports whether every branch of h's ancestry
// terminates at a FullyMaterialized memo rather than at a genesis memo
// with no parents. A FullyMaterialized memo ends the walk up that branch
// without inspecting its own parents, since it is itself a complete
// summary of everything before it.
func (p *Projector) IsFullyMaterialized(ctx context.Context, h Head) (bool, error) {
	seen := make(map[ID]struct{})
	queue := append([]MemoRef(nil), h.Refs()...)

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]

		if _, ok := seen[ref.MemoID]; ok {
			continue
		}
		seen[ref.MemoID] = struct{}{}

		m, err := p.f.FetchMemo(ctx, ref)
		if err != nil {
			return false, err
		}
		if m.Body.Kind == KindFullyMaterialized {
			continue
		}
		parents := m.Parents.Refs()
		if len(parents) == 0 {
			return false, nil
		}
		queue = append(queue, parents...)
	}
	return true, nil
}

// ProjectOccupiedEdges yields every slot that is still occupied (bound to
// a non-Null head) in the merged projection over h, stopping each slot's
// search independently at the first binding seen (explicit-vacant counts
// as resolved too, it's simply not yielded).
func (p *Projector) ProjectOccupiedEdges(ctx context.Context, h Head) ([]OccupiedEdge, error) {
	resolved := make(map[int]bool)
	var out []OccupiedEdge

	err := p.walk(ctx, h, func(m Memo) (bool, error) {
		edges, barrier, has := m.Body.edgesFor()
		if has {
			for slot, childHead := range edges {
				if resolved[slot] {
					continue
				}
				resolved[slot] = true
				if !childHead.IsNull() {
					out = append(out, OccupiedEdge{Slot: slot, Head: childHead})
				}
			}
			if barrier {
				return true, nil
			}
		}
		return false, nil
	})
	return out, err
}
