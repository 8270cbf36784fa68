package slab

import (
	"github.com/DataDog/zstd"
	"github.com/pkg/errors"
	db "github.com/tendermint/tm-db"

	"github.com/arcology-network/unbase/memo"
)

// store is the durable backing for a Slab's memo table: wire-encoded,
// zstd-compressed memo bytes keyed by memo id, plus a sibling keyspace
// for each memo's peering table. A tm-db db.DB is the only storage
// abstraction this package depends on, so swapping memdb for a
// goleveldb/badgerdb-backed db.DB (both satisfy the same interface) is a
// configuration change, not a code change.
type store struct {
	db db.DB
}

func newStore(backing db.DB) *store {
	return &store{db: backing}
}

var (
	memoPrefix    = []byte("m:")
	peersetPrefix = []byte("p:")
)

func memoKey(id memo.ID) []byte {
	return append(append([]byte(nil), memoPrefix...), id[:]...)
}

func peersetKey(id memo.ID) []byte {
	return append(append([]byte(nil), peersetPrefix...), id[:]...)
}

// putMemo compresses and persists m's wire encoding, returning the
// compressed bytes it wrote (so callers can size-check or relay them
// without re-reading from storage).
func (s *store) putMemo(m memo.Memo) ([]byte, error) {
	wire := memo.Encode(m)
	compressed, err := zstd.Compress(nil, wire)
	if err != nil {
		return nil, errors.Wrap(err, "slab: compressing memo")
	}
	if err := s.db.Set(memoKey(m.ID()), compressed); err != nil {
		return nil, errors.Wrap(err, "slab: writing memo")
	}
	return compressed, nil
}

// getMemo returns the decoded memo for id, or (zero, false, nil) if absent.
func (s *store) getMemo(id memo.ID) (memo.Memo, bool, error) {
	compressed, err := s.db.Get(memoKey(id))
	if err != nil {
		return memo.Memo{}, false, errors.Wrap(err, "slab: reading memo")
	}
	if compressed == nil {
		return memo.Memo{}, false, nil
	}
	wire, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return memo.Memo{}, false, errors.Wrap(err, "slab: decompressing memo")
	}
	m, err := memo.Decode(wire)
	if err != nil {
		return memo.Memo{}, false, errors.Wrap(err, "slab: decoding memo")
	}
	return m, true, nil
}

// hasMemo reports whether id is resident without paying for decompression.
func (s *store) hasMemo(id memo.ID) (bool, error) {
	ok, err := s.db.Has(memoKey(id))
	if err != nil {
		return false, errors.Wrap(err, "slab: checking memo residency")
	}
	return ok, nil
}

// deleteMemo removes a memo's compressed bytes, used by conditional_remove
// once a memo has been sufficiently peered elsewhere (remotization).
func (s *store) deleteMemo(id memo.ID) error {
	return errors.Wrap(s.db.Delete(memoKey(id)), "slab: deleting memo")
}

// count returns the number of resident memos by scanning the memo table.
// Metrics.MemosResident does not use it; PutMemo and ConditionalRemoveMemo
// adjust that gauge directly.
func (s *store) count() (int, error) {
	it, err := s.db.Iterator(memoPrefix, incrementPrefix(memoPrefix))
	if err != nil {
		return 0, errors.Wrap(err, "slab: iterating memo table")
	}
	defer it.Close()
	n := 0
	for ; it.Valid(); it.Next() {
		n++
	}
	return n, errors.Wrap(it.Error(), "slab: iterating memo table")
}

// putPeerSet persists the peering table for id. PeerSets are small and
// rewritten often (every peering assertion touches one), so they are
// stored uncompressed.
func (s *store) putPeerSet(id memo.ID, ps *memo.PeerSet) error {
	return errors.Wrap(s.db.Set(peersetKey(id), encodePeerSet(ps)), "slab: writing peerset")
}

// getPeerSet returns the persisted peering table for id, or an empty one
// if none has been recorded yet.
func (s *store) getPeerSet(id memo.ID) (*memo.PeerSet, error) {
	raw, err := s.db.Get(peersetKey(id))
	if err != nil {
		return nil, errors.Wrap(err, "slab: reading peerset")
	}
	if raw == nil {
		return memo.NewPeerSet(), nil
	}
	return decodePeerSet(raw), nil
}

func encodePeerSet(ps *memo.PeerSet) []byte {
	entries := ps.Entries()
	buf := make([]byte, 0, 4+len(entries)*25)
	var n [4]byte
	putU32(n[:], uint32(len(entries)))
	buf = append(buf, n[:]...)
	for _, e := range entries {
		buf = append(buf, e.Peer[:]...)
		buf = append(buf, byte(e.Status))
		var seq [8]byte
		putU64(seq[:], e.Seq)
		buf = append(buf, seq[:]...)
	}
	return buf
}

func decodePeerSet(raw []byte) *memo.PeerSet {
	ps := memo.NewPeerSet()
	if len(raw) < 4 {
		return ps
	}
	count := getU32(raw)
	raw = raw[4:]
	const entrySize = 16 + 1 + 8
	for i := uint32(0); i < count && len(raw) >= entrySize; i++ {
		var peer memo.PeerID
		copy(peer[:], raw[:16])
		status := memo.PeerStatus(raw[16])
		seq := getU64(raw[17:25])
		ps.Put(peer, status, seq)
		raw = raw[entrySize:]
	}
	return ps
}

func putU32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func incrementPrefix(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil // prefix was all 0xff: unbounded end
}
