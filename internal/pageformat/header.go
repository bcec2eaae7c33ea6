// Package pageformat defines the fixed, bit-exact on-disk layouts of
// spec.md §3.1: the 128-byte DB header on page 1, valid page sizes, page
// type tags, and the overflow/freelist page layouts. Grounded on the
// teacher's 16-byte Metadata page in btree/pager.go (MetadataOffsetMagic
// etc.), generalized to the specification's full 128-byte header with a
// CRC-32C checksum the teacher's metadata page never had.
package pageformat

import (
	"bytes"
	"fmt"

	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
)

// HeaderSize is the fixed size of the page-1 DB header.
const HeaderSize = 128

// Magic is the fixed 16-byte file signature.
var Magic = [16]byte{'D', 'E', 'C', 'E', 'N', 'T', 'D', 'B', 0, 0, 0, 0, 0, 0, 0, 0}

// FormatVersion is the current on-disk format version written by this
// implementation; openDb fails fast on a mismatched version (spec.md
// §6.1).
const FormatVersion = 1

// Header offsets, per spec.md §3.1.
const (
	OffMagic             = 0
	OffFormatVersion     = 16
	OffPageSize          = 20
	OffChecksum          = 24
	OffSchemaCookie      = 28
	OffCatalogRoot       = 32
	OffFreelistRoot      = 36
	OffFreelistHead      = 40
	OffFreelistCount     = 44
	OffLastCheckpointLSN = 48
	// bytes 56-127 reserved
)

// ValidPageSizes enumerates the page sizes spec.md §3.1 allows.
var ValidPageSizes = []uint32{512, 1024, 2048, 4096, 8192, 16384, 32768, 65536}

// IsValidPageSize reports whether size is one of the allowed page sizes.
func IsValidPageSize(size uint32) bool {
	for _, s := range ValidPageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// DefaultPageSize matches spec.md §6.2's documented default.
const DefaultPageSize = 4096

// Header is the decoded, in-memory form of the page-1 DB header.
type Header struct {
	FormatVersion     uint32
	PageSize          uint32
	SchemaCookie      uint32
	CatalogRoot       uint32
	FreelistRoot      uint32
	FreelistHead      uint32
	FreelistCount     uint32
	LastCheckpointLSN uint64
}

// Encode writes h into a fresh HeaderSize-byte buffer, computing and
// embedding the CRC-32C checksum.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[OffMagic:], Magic[:])
	codec.PutUint32LE(buf[OffFormatVersion:], h.FormatVersion)
	codec.PutUint32LE(buf[OffPageSize:], h.PageSize)
	codec.PutUint32LE(buf[OffSchemaCookie:], h.SchemaCookie)
	codec.PutUint32LE(buf[OffCatalogRoot:], h.CatalogRoot)
	codec.PutUint32LE(buf[OffFreelistRoot:], h.FreelistRoot)
	codec.PutUint32LE(buf[OffFreelistHead:], h.FreelistHead)
	codec.PutUint32LE(buf[OffFreelistCount:], h.FreelistCount)
	codec.PutUint64LE(buf[OffLastCheckpointLSN:], h.LastCheckpointLSN)

	sum := checksumOf(buf)
	codec.PutUint32LE(buf[OffChecksum:], sum)
	return buf
}

// checksumOf computes the CRC-32C over bytes 0-23 concatenated with
// bytes 28-127, per spec.md §3.1.
func checksumOf(buf []byte) uint32 {
	return codec.CRC32CMulti(buf[0:24], buf[28:HeaderSize])
}

// Decode parses buf (which must be exactly HeaderSize bytes) into a
// Header, validating the magic and checksum. Any mismatch is
// ErrCorruption, per spec.md's open-time invariant.
func Decode(buf []byte) (*Header, error) {
	if len(buf) != HeaderSize {
		return nil, dberrors.New(dberrors.CodeCorruption, fmt.Sprintf("header: expected %d bytes, got %d", HeaderSize, len(buf)))
	}
	if !bytes.Equal(buf[OffMagic:OffMagic+16], Magic[:]) {
		return nil, dberrors.New(dberrors.CodeCorruption, "header: bad magic")
	}

	want := codec.Uint32LE(buf[OffChecksum:])
	got := checksumOf(buf)
	if want != got {
		return nil, dberrors.New(dberrors.CodeCorruption, "header: checksum mismatch").
			WithContext("want", want).WithContext("got", got)
	}

	h := &Header{
		FormatVersion:     codec.Uint32LE(buf[OffFormatVersion:]),
		PageSize:          codec.Uint32LE(buf[OffPageSize:]),
		SchemaCookie:      codec.Uint32LE(buf[OffSchemaCookie:]),
		CatalogRoot:       codec.Uint32LE(buf[OffCatalogRoot:]),
		FreelistRoot:      codec.Uint32LE(buf[OffFreelistRoot:]),
		FreelistHead:      codec.Uint32LE(buf[OffFreelistHead:]),
		FreelistCount:     codec.Uint32LE(buf[OffFreelistCount:]),
		LastCheckpointLSN: codec.Uint64LE(buf[OffLastCheckpointLSN:]),
	}

	if h.FormatVersion != FormatVersion {
		return nil, dberrors.New(dberrors.CodeCorruption, fmt.Sprintf("header: unsupported format version %d", h.FormatVersion))
	}
	if !IsValidPageSize(h.PageSize) {
		return nil, dberrors.New(dberrors.CodeCorruption, fmt.Sprintf("header: invalid page size %d", h.PageSize))
	}

	return h, nil
}

// NewHeader builds a fresh header for a newly created database.
func NewHeader(pageSize uint32) *Header {
	return &Header{
		FormatVersion: FormatVersion,
		PageSize:      pageSize,
		CatalogRoot:   2, // page 1 is the header; page 2 is the first catalog root
		FreelistRoot:  0,
		FreelistHead:  0,
		FreelistCount: 0,
	}
}
