package peering

import (
	"encoding/binary"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/pkg/errors"

	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/transport"
)

// ErrShortFrame is returned by DecodeFrame when the input is truncated.
var ErrShortFrame = errors.New("peering: frame truncated")

// EncodeFrame serializes f for the wire: From, To, the piggybacked peer
// table, then the carried memo using its own canonical wire codec. A
// pool.Buffer backs the encode; its bytes are handed to the caller and
// never returned to the pool.
func EncodeFrame(f transport.Frame) []byte {
	var buf pool.Buffer

	buf.Write(f.From[:])
	buf.Write(f.To[:])

	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(f.Peers)))
	buf.Write(n[:])
	for _, p := range f.Peers {
		buf.Write(p.Peer[:])
		buf.WriteByte(byte(p.Status))
		var seq [8]byte
		binary.LittleEndian.PutUint64(seq[:], p.Seq)
		buf.Write(seq[:])
	}

	body := memo.Encode(f.Memo)
	var bodyLen [4]byte
	binary.LittleEndian.PutUint32(bodyLen[:], uint32(len(body)))
	buf.Write(bodyLen[:])
	buf.Write(body)

	return buf.Bytes()
}

// DecodeFrame is EncodeFrame's inverse.
func DecodeFrame(data []byte) (transport.Frame, error) {
	var f transport.Frame

	const slabIDLen = 16
	if len(data) < 2*slabIDLen+4 {
		return f, ErrShortFrame
	}
	copy(f.From[:], data[:slabIDLen])
	data = data[slabIDLen:]
	copy(f.To[:], data[:slabIDLen])
	data = data[slabIDLen:]

	count := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]

	const entryLen = slabIDLen + 1 + 8
	if uint64(len(data)) < uint64(count)*entryLen+4 {
		return f, ErrShortFrame
	}
	f.Peers = make([]memo.PeerEntry, count)
	for i := range f.Peers {
		var e memo.PeerEntry
		copy(e.Peer[:], data[:slabIDLen])
		data = data[slabIDLen:]
		e.Status = memo.PeerStatus(data[0])
		data = data[1:]
		e.Seq = binary.LittleEndian.Uint64(data[:8])
		data = data[8:]
		f.Peers[i] = e
	}

	if len(data) < 4 {
		return f, ErrShortFrame
	}
	bodyLen := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(bodyLen) {
		return f, ErrShortFrame
	}

	m, err := memo.Decode(data[:bodyLen])
	if err != nil {
		return f, errors.Wrap(err, "peering: decode carried memo")
	}
	f.Memo = m
	return f, nil
}
