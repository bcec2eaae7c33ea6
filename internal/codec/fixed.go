package codec

import (
	"encoding/binary"
	"math"
)

// PutUint16LE, Uint16LE, etc. wrap encoding/binary.LittleEndian for the
// fixed-width fields of the DB header, WAL header, and page header — the
// on-disk formats in spec.md §3.1 are specified little-endian throughout
// (the teacher's page format, by contrast, is big-endian; this is a
// deliberate format change to match the specification, not an accident).

func PutUint16LE(buf []byte, v uint16) { binary.LittleEndian.PutUint16(buf, v) }
func Uint16LE(buf []byte) uint16       { return binary.LittleEndian.Uint16(buf) }

func PutUint32LE(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }
func Uint32LE(buf []byte) uint32       { return binary.LittleEndian.Uint32(buf) }

func PutUint64LE(buf []byte, v uint64) { binary.LittleEndian.PutUint64(buf, v) }
func Uint64LE(buf []byte) uint64       { return binary.LittleEndian.Uint64(buf) }

func PutFloat64LE(buf []byte, v float64) {
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
}

func Float64LE(buf []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}
