package memo

// wire.go implements the full, reversible memo encoding used on the
// peering wire: serialize-then-deserialize of any memo must reproduce
// the original memo byte-for-byte and id-for-id. It is distinct from
// codec.go's HashPreimage/computeID encoding, which only needs a parent
// head's memo ids and deliberately omits the entity/residency detail a
// full wire MemoRef carries.

import (
	"bytes"
	"encoding/binary"
	"sort"
)

func readUint8(r *bytes.Reader) (uint8, error) {
	return r.ReadByte()
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readInt(r *bytes.Reader) (int, error) {
	v, err := readUint64(r)
	return int(int64(v)), err
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := r.Read(b[n:])
		n += m
		if err != nil {
			return n, ErrDecodeFailed
		}
	}
	return n, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := readFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readEntityIDPtr(r *bytes.Reader) (*EntityID, error) {
	tag, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	typ, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	var id EntityID
	id.Type = EntityType(typ)
	if _, err := readFull(r, id.Bits[:]); err != nil {
		return nil, err
	}
	return &id, nil
}

func readSlabID(r *bytes.Reader) (SlabID, error) {
	var id SlabID
	_, err := readFull(r, id[:])
	return id, err
}

func readAddress(r *bytes.Reader) (Address, error) {
	transport, err := readString(r)
	if err != nil {
		return Address{}, err
	}
	value, err := readString(r)
	if err != nil {
		return Address{}, err
	}
	return Address{Transport: transport, Value: value}, nil
}

func readPresence(r *bytes.Reader) (SlabPresence, error) {
	peer, err := readSlabID(r)
	if err != nil {
		return SlabPresence{}, err
	}
	n, err := readInt(r)
	if err != nil {
		return SlabPresence{}, err
	}
	addrs := make([]Address, n)
	for i := 0; i < n; i++ {
		a, err := readAddress(r)
		if err != nil {
			return SlabPresence{}, err
		}
		addrs[i] = a
	}
	lifetime, err := readUint8(r)
	if err != nil {
		return SlabPresence{}, err
	}
	liveness, err := readUint8(r)
	if err != nil {
		return SlabPresence{}, err
	}
	return SlabPresence{Peer: peer, Addresses: addrs, Lifetime: Lifetime(lifetime), Liveness: Liveness(liveness)}, nil
}

func readPeerEntries(r *bytes.Reader) ([]PeerEntry, error) {
	n, err := readInt(r)
	if err != nil {
		return nil, err
	}
	out := make([]PeerEntry, n)
	for i := 0; i < n; i++ {
		peer, err := readSlabID(r)
		if err != nil {
			return nil, err
		}
		status, err := readUint8(r)
		if err != nil {
			return nil, err
		}
		seq, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		out[i] = PeerEntry{Peer: peer, Status: PeerStatus(status), Seq: seq}
	}
	return out, nil
}

func readValues(r *bytes.Reader) (map[string]string, error) {
	n, err := readInt(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func readRelations(r *bytes.Reader) (map[int]*EntityID, error) {
	n, err := readInt(r)
	if err != nil {
		return nil, err
	}
	out := make(map[int]*EntityID, n)
	for i := 0; i < n; i++ {
		k, err := readInt(r)
		if err != nil {
			return nil, err
		}
		v, err := readEntityIDPtr(r)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// --- full (wire) MemoRef and Head encode/decode, carrying entity +
// residency alongside the memo id ---

func writeFullMemoRef(buf *bytes.Buffer, r MemoRef) {
	buf.Write(r.MemoID[:])
	putEntityID(buf, r.Entity)
	if r.IsResident() {
		putUint8(buf, 1)
	} else {
		putUint8(buf, 0)
	}
}

func readFullMemoRef(r *bytes.Reader) (MemoRef, error) {
	var ref MemoRef
	if _, err := readFull(r, ref.MemoID[:]); err != nil {
		return ref, err
	}
	entity, err := readEntityIDPtr(r)
	if err != nil {
		return ref, err
	}
	ref.Entity = entity
	residentFlag, err := readUint8(r)
	if err != nil {
		return ref, err
	}
	if residentFlag == 1 {
		ref.Residency = ResidentStatus
	} else {
		ref.Residency = Remote
	}
	return ref, nil
}

func writeFullHead(buf *bytes.Buffer, h Head) {
	switch h.kind {
	case headNull:
		putUint8(buf, 0)
	case headAnonymous:
		putUint8(buf, 1)
		writeFullMemoRefs(buf, h.refs)
	case headEntity:
		putUint8(buf, 2)
		putEntityID(buf, &h.entity)
		writeFullMemoRefs(buf, h.refs)
	}
}

func writeFullMemoRefs(buf *bytes.Buffer, refs []MemoRef) {
	sorted := append([]MemoRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].MemoID[:], sorted[j].MemoID[:]) < 0
	})
	putInt(buf, len(sorted))
	for _, r := range sorted {
		writeFullMemoRef(buf, r)
	}
}

func readFullHead(r *bytes.Reader) (Head, error) {
	tag, err := readUint8(r)
	if err != nil {
		return Head{}, err
	}
	switch tag {
	case 0:
		return NullHead, nil
	case 1:
		refs, err := readFullMemoRefs(r)
		if err != nil {
			return Head{}, err
		}
		return Head{kind: headAnonymous, refs: refs}, nil
	case 2:
		entity, err := readEntityIDPtr(r)
		if err != nil {
			return Head{}, err
		}
		refs, err := readFullMemoRefs(r)
		if err != nil {
			return Head{}, err
		}
		if entity == nil {
			return Head{}, ErrDecodeFailed
		}
		return Head{kind: headEntity, entity: *entity, refs: refs}, nil
	default:
		return Head{}, ErrDecodeFailed
	}
}

func readFullMemoRefs(r *bytes.Reader) ([]MemoRef, error) {
	n, err := readInt(r)
	if err != nil {
		return nil, err
	}
	out := make([]MemoRef, n)
	for i := 0; i < n; i++ {
		ref, err := readFullMemoRef(r)
		if err != nil {
			return nil, err
		}
		out[i] = ref
	}
	return out, nil
}

func writeFullEdges(buf *bytes.Buffer, edges map[int]Head) {
	keys := make([]int, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	putInt(buf, len(keys))
	for _, k := range keys {
		putInt(buf, k)
		writeFullHead(buf, edges[k])
	}
}

func readEdges(r *bytes.Reader) (map[int]Head, error) {
	n, err := readInt(r)
	if err != nil {
		return nil, err
	}
	out := make(map[int]Head, n)
	for i := 0; i < n; i++ {
		k, err := readInt(r)
		if err != nil {
			return nil, err
		}
		h, err := readFullHead(r)
		if err != nil {
			return nil, err
		}
		out[k] = h
	}
	return out, nil
}

// Encode returns the full, reversible wire encoding of m: everything
// Decode needs to reconstruct an identical Memo (same id, same body, same
// parent head including each parent's entity/residency detail).
func Encode(m Memo) []byte {
	var buf bytes.Buffer
	buf.Write(m.id[:])
	putEntityID(&buf, m.Entity)
	putSlabID(&buf, m.Owner)
	writeFullHead(&buf, m.Parents)
	putUint8(&buf, uint8(m.Body.Kind))

	switch m.Body.Kind {
	case KindSlabPresence:
		putPresence(&buf, m.Body.Presence)
		writeFullHead(&buf, m.Body.PresenceSeed)
	case KindEdit:
		putValues(&buf, m.Body.Values)
	case KindRelation:
		putRelations(&buf, m.Body.Relations)
	case KindEdge:
		writeFullEdges(&buf, m.Body.Edges)
	case KindFullyMaterialized, KindPartiallyMaterialized:
		putValues(&buf, m.Body.MatValues)
		putRelations(&buf, m.Body.MatRelations)
		writeFullEdges(&buf, m.Body.MatEdges)
		putUint8(&buf, uint8(m.Body.MatType))
	case KindPeering:
		buf.Write(m.Body.PeeringTarget[:])
		putEntityID(&buf, m.Body.PeeringEntity)
		putPeerEntries(&buf, m.Body.PeerStates)
	case KindMemoRequest:
		putInt(&buf, len(m.Body.RequestedIDs))
		for _, id := range m.Body.RequestedIDs {
			buf.Write(id[:])
		}
		putPresence(&buf, m.Body.RequestingPeer)
	}
	return buf.Bytes()
}

// Decode reconstructs a Memo from bytes produced by Encode, verifying
// that the recomputed content hash matches the embedded id (ErrDecodeFailed
// otherwise; a corrupt or tampered frame must never be accepted as a
// valid memo).
func Decode(data []byte) (Memo, error) {
	r := bytes.NewReader(data)

	var wantID ID
	if _, err := readFull(r, wantID[:]); err != nil {
		return Memo{}, err
	}

	entity, err := readEntityIDPtr(r)
	if err != nil {
		return Memo{}, err
	}
	owner, err := readSlabID(r)
	if err != nil {
		return Memo{}, err
	}
	parents, err := readFullHead(r)
	if err != nil {
		return Memo{}, err
	}
	kindByte, err := readUint8(r)
	if err != nil {
		return Memo{}, err
	}
	kind := BodyKind(kindByte)

	var body Body
	body.Kind = kind
	switch kind {
	case KindSlabPresence:
		p, err := readPresence(r)
		if err != nil {
			return Memo{}, err
		}
		seed, err := readFullHead(r)
		if err != nil {
			return Memo{}, err
		}
		body.Presence, body.PresenceSeed = p, seed
	case KindEdit:
		v, err := readValues(r)
		if err != nil {
			return Memo{}, err
		}
		body.Values = v
	case KindRelation:
		rel, err := readRelations(r)
		if err != nil {
			return Memo{}, err
		}
		body.Relations = rel
	case KindEdge:
		e, err := readEdges(r)
		if err != nil {
			return Memo{}, err
		}
		body.Edges = e
	case KindFullyMaterialized, KindPartiallyMaterialized:
		v, err := readValues(r)
		if err != nil {
			return Memo{}, err
		}
		rel, err := readRelations(r)
		if err != nil {
			return Memo{}, err
		}
		e, err := readEdges(r)
		if err != nil {
			return Memo{}, err
		}
		t, err := readUint8(r)
		if err != nil {
			return Memo{}, err
		}
		body.MatValues, body.MatRelations, body.MatEdges, body.MatType = v, rel, e, EntityType(t)
	case KindPeering:
		var target ID
		if _, err := readFull(r, target[:]); err != nil {
			return Memo{}, err
		}
		ent, err := readEntityIDPtr(r)
		if err != nil {
			return Memo{}, err
		}
		states, err := readPeerEntries(r)
		if err != nil {
			return Memo{}, err
		}
		body.PeeringTarget, body.PeeringEntity, body.PeerStates = target, ent, states
	case KindMemoRequest:
		n, err := readInt(r)
		if err != nil {
			return Memo{}, err
		}
		ids := make([]ID, n)
		for i := 0; i < n; i++ {
			if _, err := readFull(r, ids[i][:]); err != nil {
				return Memo{}, err
			}
		}
		requester, err := readPresence(r)
		if err != nil {
			return Memo{}, err
		}
		body.RequestedIDs, body.RequestingPeer = ids, requester
	default:
		return Memo{}, ErrDecodeFailed
	}

	m := Memo{Entity: entity, Owner: owner, Parents: parents, Body: body}
	m.id = computeID(m)
	if m.id != wantID {
		return Memo{}, ErrDecodeFailed
	}
	return m, nil
}

// EncodeHead returns the full wire encoding of a standalone Head, using
// the same entity/residency-preserving format writeFullHead gives a
// memo's parent head. context/rootindex.go persists entity heads this
// way so a restarted root index can reconstruct MemoRefs (not just bare
// memo ids) without re-deriving entity/residency from scratch.
func EncodeHead(h Head) []byte {
	var buf bytes.Buffer
	writeFullHead(&buf, h)
	return buf.Bytes()
}

// DecodeHead reconstructs a Head from bytes produced by EncodeHead.
func DecodeHead(data []byte) (Head, error) {
	return readFullHead(bytes.NewReader(data))
}
