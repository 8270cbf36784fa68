package memo

// Lifetime is a SlabPresence's hint about how long a peer is expected to
// remain reachable.
type Lifetime uint8

const (
	LifetimeUnknown Lifetime = iota
	Ephemeral
	Session
	Long
	VeryLong
)

// Liveness is a SlabPresence's hint about current reachability.
type Liveness uint8

const (
	LivenessUnknown Liveness = iota
	Available
	Unavailable
)

// Address is an opaque transport address, as produced by a transport
// adapter. The core never interprets its contents.
type Address struct {
	Transport string
	Value     string
}

// SlabPresence is a peer announcement: "I am slab X, reachable at these
// addresses, expect me to stick around like so."
type SlabPresence struct {
	Peer      SlabID
	Addresses []Address
	Lifetime  Lifetime
	Liveness  Liveness
}

// BodyKind tags the variant carried by a Memo.Body.
type BodyKind uint8

const (
	KindSlabPresence BodyKind = iota
	KindEdit
	KindRelation
	KindEdge
	KindFullyMaterialized
	KindPartiallyMaterialized
	KindPeering
	KindMemoRequest
)

func (k BodyKind) String() string {
	switch k {
	case KindSlabPresence:
		return "SlabPresence"
	case KindEdit:
		return "Edit"
	case KindRelation:
		return "Relation"
	case KindEdge:
		return "Edge"
	case KindFullyMaterialized:
		return "FullyMaterialized"
	case KindPartiallyMaterialized:
		return "PartiallyMaterialized"
	case KindPeering:
		return "Peering"
	case KindMemoRequest:
		return "MemoRequest"
	default:
		return "Unknown"
	}
}

// Body is the tagged variant a Memo carries. Exactly one of the typed
// fields is meaningful, selected by Kind; this mirrors the Rust source's
// enum MemoBody but as a Go struct-of-optionals so the canonical encoder
// in codec.go can walk it without a type switch on an interface.
type Body struct {
	Kind BodyKind

	// KindSlabPresence
	Presence     SlabPresence
	PresenceSeed Head // root-index seed carried alongside presence; Null if none offered

	// KindEdit
	Values map[string]string

	// KindRelation
	Relations map[int]*EntityID // nil map value = slot explicitly cleared

	// KindEdge
	Edges map[int]Head

	// KindFullyMaterialized / KindPartiallyMaterialized
	MatValues    map[string]string
	MatRelations map[int]*EntityID
	MatEdges     map[int]Head
	MatType      EntityType

	// KindPeering
	PeeringTarget ID
	PeeringEntity *EntityID
	PeerStates    []PeerEntry

	// KindMemoRequest
	RequestedIDs   []ID
	RequestingPeer SlabPresence
}

// NewEditBody constructs an Edit memo body.
func NewEditBody(values map[string]string) Body {
	return Body{Kind: KindEdit, Values: values}
}

// NewRelationBody constructs a Relation memo body.
func NewRelationBody(relations map[int]*EntityID) Body {
	return Body{Kind: KindRelation, Relations: relations}
}

// NewEdgeBody constructs an Edge memo body.
func NewEdgeBody(edges map[int]Head) Body {
	return Body{Kind: KindEdge, Edges: edges}
}

// NewFullyMaterializedBody constructs a terminating projection barrier memo body.
func NewFullyMaterializedBody(values map[string]string, relations map[int]*EntityID, edges map[int]Head, t EntityType) Body {
	return Body{Kind: KindFullyMaterialized, MatValues: values, MatRelations: relations, MatEdges: edges, MatType: t}
}

// NewPartiallyMaterializedBody constructs a non-terminating projection body.
func NewPartiallyMaterializedBody(values map[string]string, relations map[int]*EntityID, edges map[int]Head, t EntityType) Body {
	return Body{Kind: KindPartiallyMaterialized, MatValues: values, MatRelations: relations, MatEdges: edges, MatType: t}
}

// NewSlabPresenceBody constructs a presence announcement, optionally
// seeding or relaying the root-index seed head.
func NewSlabPresenceBody(p SlabPresence, seed Head) Body {
	return Body{Kind: KindSlabPresence, Presence: p, PresenceSeed: seed}
}

// NewPeeringBody constructs a Peering memo body.
func NewPeeringBody(target ID, entity *EntityID, states []PeerEntry) Body {
	return Body{Kind: KindPeering, PeeringTarget: target, PeeringEntity: entity, PeerStates: states}
}

// NewMemoRequestBody constructs a MemoRequest memo body.
func NewMemoRequestBody(ids []ID, requester SlabPresence) Body {
	return Body{Kind: KindMemoRequest, RequestedIDs: ids, RequestingPeer: requester}
}

// IsPeeringEligible reports whether the slab should run consider_emit for
// a memo carrying this body. SlabPresence, Peering, and MemoRequest are
// emitted manually by the protocols that generate them.
func (b Body) IsPeeringEligible() bool {
	switch b.Kind {
	case KindSlabPresence, KindPeering, KindMemoRequest:
		return false
	default:
		return true
	}
}

// valuesFor returns (values, isBarrier, true) for bodies that carry field
// values, or (nil, false, false) for bodies that don't. isBarrier is true for
// FullyMaterialized, which terminates ProjectValue iteration even when
// the requested field is absent.
func (b Body) valuesFor() (map[string]string, bool, bool) {
	switch b.Kind {
	case KindEdit:
		return b.Values, false, true
	case KindFullyMaterialized:
		return b.MatValues, true, true
	case KindPartiallyMaterialized:
		return b.MatValues, false, true
	default:
		return nil, false, false
	}
}

func (b Body) relationsFor() (map[int]*EntityID, bool, bool) {
	switch b.Kind {
	case KindRelation:
		return b.Relations, false, true
	case KindFullyMaterialized:
		return b.MatRelations, true, true
	case KindPartiallyMaterialized:
		return b.MatRelations, false, true
	default:
		return nil, false, false
	}
}

func (b Body) edgesFor() (map[int]Head, bool, bool) {
	switch b.Kind {
	case KindEdge:
		return b.Edges, false, true
	case KindFullyMaterialized:
		return b.MatEdges, true, true
	case KindPartiallyMaterialized:
		return b.MatEdges, false, true
	default:
		return nil, false, false
	}
}
