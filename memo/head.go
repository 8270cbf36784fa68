package memo

import "context"

type headKind uint8

const (
	headNull headKind = iota
	headAnonymous
	headEntity
)

// Fetcher is the minimal capability Head's happens-before and projection
// algorithms need from a slab: the ability to retrieve a memo's body (to
// walk its parents) given only a MemoRef. It is implemented by
// *slab.Slab. descends/project are suspending operations and must never
// be called while a slab- or stash-wide lock is held.
type Fetcher interface {
	FetchMemo(ctx context.Context, ref MemoRef) (Memo, error)
}

// Head is the causal antichain of MemoRefs representing the frontier of
// an entity's history (or of an anonymous control-memo lineage, or
// nothing at all).
type Head struct {
	kind   headKind
	entity EntityID
	refs   []MemoRef
}

// NullHead is the empty head.
var NullHead = Head{kind: headNull}

// NewAnonymousHead builds a Head over anonymous control memos.
func NewAnonymousHead(refs ...MemoRef) Head {
	if len(refs) == 0 {
		return NullHead
	}
	return Head{kind: headAnonymous, refs: append([]MemoRef(nil), refs...)}
}

// NewEntityHead builds a Head for a specific entity. An empty entity
// head is invalid; use NullHead instead.
func NewEntityHead(entity EntityID, refs ...MemoRef) (Head, error) {
	if len(refs) == 0 {
		return Head{}, ErrInvalidHead
	}
	return Head{kind: headEntity, entity: entity, refs: append([]MemoRef(nil), refs...)}, nil
}

// IsNull reports whether h is the Null head.
func (h Head) IsNull() bool { return h.kind == headNull }

// EntityID returns the head's entity id and whether it has one (false for
// Null and Anonymous heads).
func (h Head) EntityID() (EntityID, bool) {
	if h.kind == headEntity {
		return h.entity, true
	}
	return EntityID{}, false
}

// Refs returns the head's MemoRefs. The caller must not mutate the
// returned slice.
func (h Head) Refs() []MemoRef {
	return h.refs
}

// Len returns the number of MemoRefs in the antichain.
func (h Head) Len() int { return len(h.refs) }

// MemoIDs returns the memo ids of every element in the antichain.
func (h Head) MemoIDs() []ID {
	ids := make([]ID, len(h.refs))
	for i, r := range h.refs {
		ids[i] = r.MemoID
	}
	return ids
}

// descends reports whether the memo named by ref "a" descends the memo
// named by ref "b": whether b appears in the transitive parent closure of
// a. It performs a breadth-then-depth walk over a's parents, and is
// itself a suspending operation since it may need to fetch
// remote parents via f.
func descends(ctx context.Context, f Fetcher, a, b MemoRef) (bool, error) {
	if a.Equal(b) {
		return false, nil
	}
	memoA, err := f.FetchMemo(ctx, a)
	if err != nil {
		return false, err
	}

	parents := memoA.Parents.refs
	// breadth: direct parents first
	for _, p := range parents {
		if p.Equal(b) {
			return true, nil
		}
	}
	// depth: recurse into each parent's ancestry
	for _, p := range parents {
		ok, err := descends(ctx, f, p, b)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Descends reports whether the memo a descends memo b. Equal memos are
// treated as neither descending the other.
func Descends(ctx context.Context, f Fetcher, a, b MemoRef) (bool, error) {
	return descends(ctx, f, a, b)
}

// Concurrent reports whether a and b are concurrent: neither descends the other.
func Concurrent(ctx context.Context, f Fetcher, a, b MemoRef) (bool, error) {
	if a.Equal(b) {
		return false, nil
	}
	aDescendsB, err := descends(ctx, f, a, b)
	if err != nil {
		return false, err
	}
	if aDescendsB {
		return false, nil
	}
	bDescendsA, err := descends(ctx, f, b, a)
	if err != nil {
		return false, err
	}
	return !bDescendsA, nil
}

// ApplyMemoRef yields the causal antichain of h ∪ {new}:
//
//  1. If any element of h descends new, h is returned unchanged.
//  2. Otherwise every element of h that new descends is replaced by new
//     (deduplicated); new is appended if it descends none of them.
//  3. If h is Null, the result adopts new's entity identity.
//
// It returns the resulting head and whether anything changed.
func ApplyMemoRef(ctx context.Context, f Fetcher, h Head, new MemoRef) (Head, bool, error) {
	if h.kind == headNull {
		if new.Entity != nil {
			out, err := NewEntityHead(*new.Entity, new)
			return out, true, err
		}
		return NewAnonymousHead(new), true, nil
	}

	refs := h.refs
	newIsDescended := false
	newDescendsAny := false
	replaced := false
	out := append([]MemoRef(nil), refs...)

	// Iterate in reverse: newer entries are more likely to be at the end,
	// and existing-descends-new is the cheapest case to short-circuit on.
	for i := len(out) - 1; i >= 0; i-- {
		existing := out[i]
		if existing.Equal(new) {
			return h, false, nil // already had this, exact no-op
		}
		existingDescendsNew, err := descends(ctx, f, existing, new)
		if err != nil {
			return h, false, err
		}
		if existingDescendsNew {
			newIsDescended = true
			break
		}
		newDescendsExisting, err := descends(ctx, f, new, existing)
		if err != nil {
			return h, false, err
		}
		if newDescendsExisting {
			newDescendsAny = true
			if replaced {
				out = append(out[:i], out[i+1:]...)
			} else {
				out[i] = new
				replaced = true
			}
		}
	}

	if newIsDescended {
		return h, false, nil
	}

	if !newDescendsAny {
		out = append(out, new)
	}

	result := h
	result.refs = out
	return result, true, nil
}

// Apply folds ApplyMemoRef over other's elements. Order within h is
// irrelevant; the result is a set.
func Apply(ctx context.Context, f Fetcher, h Head, other Head) (Head, bool, error) {
	anyApplied := false
	cur := h
	for _, ref := range other.refs {
		next, applied, err := ApplyMemoRef(ctx, f, cur, ref)
		if err != nil {
			return cur, anyApplied, err
		}
		if applied {
			anyApplied = true
			cur = next
		}
	}
	return cur, anyApplied, nil
}

// DescendsOrContains reports whether every element of other is either
// equal to or descended by some element of h.
func DescendsOrContains(ctx context.Context, f Fetcher, h Head, other Head) (bool, error) {
	if h.kind == headNull || other.kind == headNull {
		return false, nil
	}
	if len(h.refs) == 0 || len(other.refs) == 0 {
		return false, nil
	}
	for _, o := range other.refs {
		covered := false
		for _, m := range h.refs {
			if m.Equal(o) {
				covered = true
				break
			}
			ok, err := descends(ctx, f, m, o)
			if err != nil {
				return false, err
			}
			if ok {
				covered = true
				break
			}
		}
		if !covered {
			return false, nil
		}
	}
	return true, nil
}
