// Package record implements the row codec of spec.md §3.1/§4.5: a
// varint field count followed by (kind, varint length, payload) triples,
// with transparent overflow-chain and zlib-compression value kinds that
// decode back to one of eight logical base kinds. Grounded on the
// teacher's flat key/value byte-string storage (btree/btree.go never
// interprets a value's bytes at all) — this package is the layer the
// teacher doesn't have, built in the teacher's encode-to-`[]byte`,
// decode-from-`[]byte` style.
package record

import (
	"bytes"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"

	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// Kind is the logical, decompressed/dereferenced value kind surfaced to
// callers above this package — the storage layer never sees whether a
// Text value was stored compressed or with an overflow chain.
type Kind uint8

const (
	Null Kind = iota
	Int64
	Float64
	Bool
	Text
	Blob
	Decimal
	Uuid
)

// wireKind is the on-disk kind tag, one of the 14 values spec.md §3.1
// enumerates.
type wireKind uint8

const (
	wireNull                   wireKind = 0
	wireInt64                  wireKind = 1
	wireFloat64                wireKind = 2
	wireBool                   wireKind = 3
	wireText                   wireKind = 4
	wireBlob                   wireKind = 5
	wireTextOverflow           wireKind = 6
	wireBlobOverflow           wireKind = 7
	wireTextCompressed         wireKind = 8
	wireBlobCompressed         wireKind = 9
	wireTextCompressedOverflow wireKind = 10
	wireBlobCompressedOverflow wireKind = 11
	wireDecimal                wireKind = 12
	wireUuid                   wireKind = 13
)

// Value is one column's worth of data in a row, tagged by Kind.
type Value struct {
	Kind            Kind
	I64             int64
	F64             float64
	Bool            bool
	Text            string
	Blob            []byte
	DecimalUnscaled int64
	DecimalScale    uint8
	UUID            uuid.UUID
}

func NewNull() Value                { return Value{Kind: Null} }
func NewInt64(v int64) Value        { return Value{Kind: Int64, I64: v} }
func NewFloat64(v float64) Value    { return Value{Kind: Float64, F64: v} }
func NewBool(v bool) Value          { return Value{Kind: Bool, Bool: v} }
func NewText(v string) Value        { return Value{Kind: Text, Text: v} }
func NewBlob(v []byte) Value        { return Value{Kind: Blob, Blob: v} }
func NewUUID(v uuid.UUID) Value     { return Value{Kind: Uuid, UUID: v} }
func NewDecimal(unscaled int64, scale uint8) Value {
	return Value{Kind: Decimal, DecimalUnscaled: unscaled, DecimalScale: scale}
}

// compressionMinSize is the raw length a value must exceed (spec.md §4.5)
// before compression is even attempted.
const compressionMinSize = 128

// compressionMinSavings is the minimum fractional size reduction
// required for a compressed candidate to be kept over the raw bytes.
const compressionMinSavings = 0.10

// overflowReserve is the header/footer slack spec.md §4.5 reserves when
// deciding whether a Text/Blob payload needs an overflow chain.
const overflowReserve = 128

// EncodeRow encodes values into the wire format
// varint(fieldCount) || (kind:u8, varint(len), payload[len])*, writing
// any Text/Blob value too large to inline out to an overflow chain via
// store.
func EncodeRow(store btree.PageStore, values []Value) ([]byte, error) {
	var out []byte
	var tmp [codec.MaxVarintLen64]byte

	n := codec.PutUvarint(tmp[:], uint64(len(values)))
	out = append(out, tmp[:n]...)

	pageSize := int(store.PageSize())
	for _, v := range values {
		kind, payload, err := encodeValue(store, v, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(kind))
		n := codec.PutUvarint(tmp[:], uint64(len(payload)))
		out = append(out, tmp[:n]...)
		out = append(out, payload...)
	}
	return out, nil
}

func encodeValue(store btree.PageStore, v Value, pageSize int) (wireKind, []byte, error) {
	switch v.Kind {
	case Null:
		return wireNull, nil, nil
	case Int64:
		var tmp [codec.MaxVarintLen64]byte
		n := codec.PutVarint(tmp[:], v.I64)
		return wireInt64, append([]byte{}, tmp[:n]...), nil
	case Float64:
		buf := make([]byte, 8)
		codec.PutFloat64LE(buf, v.F64)
		return wireFloat64, buf, nil
	case Bool:
		if v.Bool {
			return wireBool, []byte{1}, nil
		}
		return wireBool, []byte{0}, nil
	case Decimal:
		var tmp [codec.MaxVarintLen64]byte
		n := codec.PutVarint(tmp[:], v.DecimalUnscaled)
		buf := append([]byte{}, tmp[:n]...)
		buf = append(buf, v.DecimalScale)
		return wireDecimal, buf, nil
	case Uuid:
		return wireUuid, append([]byte{}, v.UUID[:]...), nil
	case Text:
		return encodeTextOrBlob(store, []byte(v.Text), pageSize, true)
	case Blob:
		return encodeTextOrBlob(store, v.Blob, pageSize, false)
	default:
		return 0, nil, dberrors.New(dberrors.CodeInternal, "unknown value kind")
	}
}

func encodeTextOrBlob(store btree.PageStore, raw []byte, pageSize int, isText bool) (wireKind, []byte, error) {
	bytesToStore := raw
	compressed := false
	if len(raw) > compressionMinSize {
		if c, ok := tryCompress(raw); ok {
			bytesToStore = c
			compressed = true
		}
	}

	threshold := pageSize - overflowReserve
	if len(bytesToStore) <= threshold {
		if isText {
			if compressed {
				return wireTextCompressed, bytesToStore, nil
			}
			return wireText, bytesToStore, nil
		}
		if compressed {
			return wireBlobCompressed, bytesToStore, nil
		}
		return wireBlob, bytesToStore, nil
	}

	head, err := btree.WriteOverflow(store, bytesToStore)
	if err != nil {
		return 0, nil, err
	}
	payload := make([]byte, 8)
	codec.PutUint32LE(payload[0:], uint32(head))
	codec.PutUint32LE(payload[4:], uint32(len(bytesToStore)))

	if isText {
		if compressed {
			return wireTextCompressedOverflow, payload, nil
		}
		return wireTextOverflow, payload, nil
	}
	if compressed {
		return wireBlobCompressedOverflow, payload, nil
	}
	return wireBlobOverflow, payload, nil
}

// tryCompress zlib-compresses raw and reports ok=true only if the result
// saves at least compressionMinSavings of the original size.
func tryCompress(raw []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	compressed := buf.Bytes()
	if float64(len(raw)-len(compressed)) < float64(len(raw))*compressionMinSavings {
		return nil, false
	}
	return compressed, true
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeCorruption, "zlib decompress", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeCorruption, "zlib decompress", err)
	}
	return out, nil
}

// DecodeRow is decodeRecordWithOverflow: the single entry point the
// storage layer uses to turn row bytes back into Values, resolving
// overflow chains and decompressing transparently.
func DecodeRow(store btree.PageStore, data []byte) ([]Value, error) {
	count, n, err := codec.ReadUvarint(data)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeCorruption, "row field count", err)
	}
	off := n

	values := make([]Value, 0, count)
	for i := uint64(0); i < count; i++ {
		if off >= len(data) {
			return nil, dberrors.New(dberrors.CodeCorruption, "row truncated before field kind")
		}
		kind := wireKind(data[off])
		off++

		length, n, err := codec.ReadUvarint(data[off:])
		if err != nil {
			return nil, dberrors.Wrap(dberrors.CodeCorruption, "row field length", err)
		}
		off += n
		if off+int(length) > len(data) {
			return nil, dberrors.New(dberrors.CodeCorruption, "row field payload overruns buffer")
		}
		payload := data[off : off+int(length)]
		off += int(length)

		v, err := decodeValue(store, kind, payload)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func decodeValue(store btree.PageStore, kind wireKind, payload []byte) (Value, error) {
	switch kind {
	case wireNull:
		return NewNull(), nil
	case wireInt64:
		v, _, err := codec.ReadVarint(payload)
		if err != nil {
			return Value{}, dberrors.Wrap(dberrors.CodeCorruption, "decode int64 field", err)
		}
		return NewInt64(v), nil
	case wireFloat64:
		if len(payload) != 8 {
			return Value{}, dberrors.New(dberrors.CodeCorruption, "float64 field must be 8 bytes")
		}
		return NewFloat64(codec.Float64LE(payload)), nil
	case wireBool:
		if len(payload) != 1 {
			return Value{}, dberrors.New(dberrors.CodeCorruption, "bool field must be 1 byte")
		}
		return NewBool(payload[0] != 0), nil
	case wireDecimal:
		unscaled, n, err := codec.ReadVarint(payload)
		if err != nil {
			return Value{}, dberrors.Wrap(dberrors.CodeCorruption, "decode decimal field", err)
		}
		if n >= len(payload) {
			return Value{}, dberrors.New(dberrors.CodeCorruption, "decimal field missing scale byte")
		}
		return NewDecimal(unscaled, payload[n]), nil
	case wireUuid:
		if len(payload) != 16 {
			return Value{}, dberrors.New(dberrors.CodeCorruption, "uuid field must be 16 bytes")
		}
		var u uuid.UUID
		copy(u[:], payload)
		return NewUUID(u), nil
	case wireText:
		return NewText(string(payload)), nil
	case wireBlob:
		return NewBlob(append([]byte{}, payload...)), nil
	case wireTextCompressed:
		raw, err := decompress(payload)
		if err != nil {
			return Value{}, err
		}
		return NewText(string(raw)), nil
	case wireBlobCompressed:
		raw, err := decompress(payload)
		if err != nil {
			return Value{}, err
		}
		return NewBlob(raw), nil
	case wireTextOverflow, wireBlobOverflow, wireTextCompressedOverflow, wireBlobCompressedOverflow:
		return decodeOverflowValue(store, kind, payload)
	default:
		return Value{}, dberrors.New(dberrors.CodeCorruption, "unknown wire value kind")
	}
}

func decodeOverflowValue(store btree.PageStore, kind wireKind, payload []byte) (Value, error) {
	if len(payload) != 8 {
		return Value{}, dberrors.New(dberrors.CodeCorruption, "overflow field header must be 8 bytes")
	}
	head := codec.Uint32LE(payload[0:])
	totalLen := codec.Uint32LE(payload[4:])

	raw, err := btree.ReadOverflow(store, pageformat.PageID(head))
	if err != nil {
		return Value{}, err
	}
	if uint32(len(raw)) != totalLen {
		return Value{}, dberrors.New(dberrors.CodeCorruption, "overflow chain length mismatch")
	}

	switch kind {
	case wireTextOverflow:
		return NewText(string(raw)), nil
	case wireBlobOverflow:
		return NewBlob(raw), nil
	case wireTextCompressedOverflow:
		decoded, err := decompress(raw)
		if err != nil {
			return Value{}, err
		}
		return NewText(string(decoded)), nil
	case wireBlobCompressedOverflow:
		decoded, err := decompress(raw)
		if err != nil {
			return Value{}, err
		}
		return NewBlob(decoded), nil
	}
	return Value{}, dberrors.New(dberrors.CodeInternal, "unreachable overflow kind")
}
