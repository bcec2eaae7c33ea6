package storage

import (
	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// packIndexKey folds one or more column values into the single uint64
// every B+Tree key must be (internal/btree.Key = uint64, per the
// delta-encoding requirement of spec.md §4.4). A composite or
// expression index's values are canonicalized and concatenated before
// hashing, so the tree itself stays ignorant of column types — matching
// the teacher's BTree, which never interprets a key's bytes either.
//
// Two independent CRC-32C passes (domain-separated by a trailing marker
// byte) fill the low and high 32 bits, reducing collision odds versus a
// single 32-bit hash widened by zero-extension. indexSeek callers must
// still tolerate a false-positive key match (IndexSeek re-checks each
// candidate row's value), since any hash can collide.
func packIndexKey(values ...record.Value) uint64 {
	var buf []byte
	for _, v := range values {
		cb := canonicalBytes(v)
		var tmp [codec.MaxVarintLen64]byte
		n := codec.PutUvarint(tmp[:], uint64(len(cb)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, cb...)
	}
	lo := codec.CRC32C(buf)
	hi := codec.CRC32C(append(append([]byte{}, buf...), 0xff))
	return uint64(hi)<<32 | uint64(lo)
}

// canonicalBytes renders v as a type-tagged byte sequence suitable for
// hashing into an index key. The tag byte keeps values of different
// kinds from colliding even when their payload bytes coincide.
func canonicalBytes(v record.Value) []byte {
	switch v.Kind {
	case record.Null:
		return []byte{0}
	case record.Int64:
		out := make([]byte, 9)
		out[0] = 1
		codec.PutUint64LE(out[1:], uint64(v.I64))
		return out
	case record.Float64:
		out := make([]byte, 9)
		out[0] = 2
		codec.PutFloat64LE(out[1:], v.F64)
		return out
	case record.Bool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return []byte{3, b}
	case record.Text:
		return append([]byte{4}, v.Text...)
	case record.Blob:
		return append([]byte{5}, v.Blob...)
	case record.Decimal:
		out := make([]byte, 10)
		out[0] = 6
		codec.PutUint64LE(out[1:9], uint64(v.DecimalUnscaled))
		out[9] = v.DecimalScale
		return out
	case record.Uuid:
		out := make([]byte, 1, 17)
		out[0] = 7
		return append(out, v.UUID[:]...)
	default:
		return []byte{0xff}
	}
}
