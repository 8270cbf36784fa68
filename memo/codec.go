package memo

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/minio/highwayhash"
)

// idHashKey is the fixed 32-byte key used to derive a memo's content
// address via HighwayHash-256. It is a constant, not a secret: memo ids
// must be reproducible byte-for-byte by any encoder, so the key is baked
// into the wire format rather than configured per-slab.
var idHashKey = [32]byte{
	0x75, 0x6e, 0x62, 0x61, 0x73, 0x65, 0x2d, 0x6d,
	0x65, 0x6d, 0x6f, 0x2d, 0x69, 0x64, 0x65, 0x6e,
	0x74, 0x69, 0x74, 0x79, 0x2d, 0x68, 0x61, 0x73,
	0x68, 0x2d, 0x6b, 0x65, 0x79, 0x2d, 0x76, 0x31,
}

// computeID produces the canonical content hash of a memo, including its
// parent head's ids. It is the single source of truth for memo identity;
// Encode/Decode (wire.go) must agree with it bit for bit.
func computeID(m Memo) ID {
	var buf bytes.Buffer
	encodeMemoBody(&buf, m)

	h, err := highwayhash.New(idHashKey[:])
	if err != nil {
		panic("memo: highwayhash key must be 32 bytes: " + err.Error())
	}
	h.Write(buf.Bytes())

	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// --- canonical encoding primitives (little-endian, fixed field order) ---

func putUint8(buf *bytes.Buffer, v uint8) {
	buf.WriteByte(v)
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putInt(buf *bytes.Buffer, v int) {
	putUint64(buf, uint64(int64(v)))
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func putString(buf *bytes.Buffer, s string) {
	putBytes(buf, []byte(s))
}

func putEntityID(buf *bytes.Buffer, id *EntityID) {
	if id == nil {
		putUint8(buf, 0)
		return
	}
	putUint8(buf, 1)
	putUint8(buf, uint8(id.Type))
	buf.Write(id.Bits[:])
}

func putSlabID(buf *bytes.Buffer, id SlabID) {
	buf.Write(id[:])
}

func putAddress(buf *bytes.Buffer, a Address) {
	putString(buf, a.Transport)
	putString(buf, a.Value)
}

func putPresence(buf *bytes.Buffer, p SlabPresence) {
	putSlabID(buf, p.Peer)
	putInt(buf, len(p.Addresses))
	for _, a := range p.Addresses {
		putAddress(buf, a)
	}
	putUint8(buf, uint8(p.Lifetime))
	putUint8(buf, uint8(p.Liveness))
}

func putPeerEntries(buf *bytes.Buffer, entries []PeerEntry) {
	sorted := append([]PeerEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].Peer[:]) < string(sorted[j].Peer[:])
	})
	putInt(buf, len(sorted))
	for _, e := range sorted {
		putSlabID(buf, e.Peer)
		putUint8(buf, uint8(e.Status))
		putUint64(buf, e.Seq)
	}
}

func putValues(buf *bytes.Buffer, values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	putInt(buf, len(keys))
	for _, k := range keys {
		putString(buf, k)
		putString(buf, values[k])
	}
}

func putRelations(buf *bytes.Buffer, relations map[int]*EntityID) {
	keys := make([]int, 0, len(relations))
	for k := range relations {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	putInt(buf, len(keys))
	for _, k := range keys {
		putInt(buf, k)
		putEntityID(buf, relations[k])
	}
}

func putEdges(buf *bytes.Buffer, edges map[int]Head) {
	keys := make([]int, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	putInt(buf, len(keys))
	for _, k := range keys {
		putInt(buf, k)
		putHead(buf, edges[k])
	}
}

// putHead writes a head's canonical form: Null, Anonymous{[memoref...]},
// or Entity{entity id, [memoref...]}, the three variants a head can take
// on the wire.
func putHead(buf *bytes.Buffer, h Head) {
	switch h.kind {
	case headNull:
		putUint8(buf, 0)
	case headAnonymous:
		putUint8(buf, 1)
		putMemoRefs(buf, h.refs)
	case headEntity:
		putUint8(buf, 2)
		putEntityID(buf, &h.entity)
		putMemoRefs(buf, h.refs)
	}
}

func putMemoRefs(buf *bytes.Buffer, refs []MemoRef) {
	// A head is a set, not a sequence, so the canonical encoding sorts by
	// memo id to make two semantically-equal heads hash identically
	// regardless of apply order.
	sorted := append([]MemoRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].MemoID[:], sorted[j].MemoID[:]) < 0
	})
	putInt(buf, len(sorted))
	for _, r := range sorted {
		putMemoRefID(buf, r)
	}
}

// putMemoRefID writes only the identity-relevant portion of a MemoRef
// (its memo id) for inclusion in a parent head's hash. Residency and peer
// list are local bookkeeping, not part of any memo's content address.
func putMemoRefID(buf *bytes.Buffer, r MemoRef) {
	buf.Write(r.MemoID[:])
}

// encodeMemoBody writes the full canonical encoding of a memo (sans its
// own id, which is derived from this encoding), used for hashing by
// computeID. The wire codec peering/frame.go uses is Encode in wire.go.
func encodeMemoBody(buf *bytes.Buffer, m Memo) {
	putEntityID(buf, m.Entity)
	putSlabID(buf, m.Owner)
	putHead(buf, m.Parents)
	putUint8(buf, uint8(m.Body.Kind))

	switch m.Body.Kind {
	case KindSlabPresence:
		putPresence(buf, m.Body.Presence)
		putHead(buf, m.Body.PresenceSeed)
	case KindEdit:
		putValues(buf, m.Body.Values)
	case KindRelation:
		putRelations(buf, m.Body.Relations)
	case KindEdge:
		putEdges(buf, m.Body.Edges)
	case KindFullyMaterialized, KindPartiallyMaterialized:
		putValues(buf, m.Body.MatValues)
		putRelations(buf, m.Body.MatRelations)
		putEdges(buf, m.Body.MatEdges)
		putUint8(buf, uint8(m.Body.MatType))
	case KindPeering:
		buf.Write(m.Body.PeeringTarget[:])
		putEntityID(buf, m.Body.PeeringEntity)
		putPeerEntries(buf, m.Body.PeerStates)
	case KindMemoRequest:
		putInt(buf, len(m.Body.RequestedIDs))
		for _, id := range m.Body.RequestedIDs {
			buf.Write(id[:])
		}
		putPresence(buf, m.Body.RequestingPeer)
	}
}

// HashPreimage returns the exact bytes computeID hashes for m. It exists
// so tests (and alternate encoders, which must agree with this one
// bit-for-bit) can check canonical-encoding agreement directly, without
// recomputing a HighwayHash digest.
func HashPreimage(m Memo) []byte {
	var buf bytes.Buffer
	encodeMemoBody(&buf, m)
	return buf.Bytes()
}
