// Package wal implements the write-ahead log of spec.md §4.3: frame
// append, fsync, the snapshot overlay index, the reader registry,
// checkpointing, and crash recovery. Grounded on the physical-record
// structure of the teacher's btree/wal.go (a single os.File guarded by
// one sync.Mutex, an append-only offset, a magic+version header) but
// rewritten wholesale: the teacher's type+pageID+offset+length+data+CRC32
// record becomes spec.md's type+pageID header with a derived-length
// payload and a reserved zero trailer, and LSN is the frame's end-of-byte
// offset rather than a stored field. The teacher has no snapshot index,
// no reader registry, and no mmap write path — those are net-new,
// written in the teacher's file-handle-in-a-mutex idiom.
package wal

import (
	"fmt"

	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// Frame types, per spec.md §4.3.
const (
	FrameTypePage       uint8 = 1
	FrameTypeCommit     uint8 = 2
	FrameTypeCheckpoint uint8 = 3
)

// FrameHeaderSize is the fixed 5-byte frame header: type(1) + pageId(4).
const FrameHeaderSize = 5

// TrailerSize is the reserved 8-byte trailer (legacy checksum field, now
// always zero per spec.md §9's Open Questions resolution).
const TrailerSize = 8

// FileHeaderSize is the 32-byte WAL file header.
const FileHeaderSize = 32

// FileMagic is the fixed 8-byte WAL file signature.
var FileMagic = [8]byte{'D', 'D', 'B', 'W', 'A', 'L', '0', '1'}

// FileHeaderVersion is the current WAL file format version.
const FileHeaderVersion = 1

// WAL file header offsets (spec.md §4.3): magic(8) + version(4) +
// pageSize(4) + endOffset(8) + reserved(8) = 32 bytes.
const (
	fhOffMagic    = 0
	fhOffVersion  = 8
	fhOffPageSize = 12
	fhOffEndOff   = 16
	fhOffReserved = 24
)

// fileHeader is the decoded WAL file header.
type fileHeader struct {
	Version  uint32
	PageSize uint32
	EndOff   uint64
}

func encodeFileHeader(h fileHeader) []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[fhOffMagic:], FileMagic[:])
	codec.PutUint32LE(buf[fhOffVersion:], h.Version)
	codec.PutUint32LE(buf[fhOffPageSize:], h.PageSize)
	codec.PutUint64LE(buf[fhOffEndOff:], h.EndOff)
	return buf
}

func decodeFileHeader(buf []byte) (fileHeader, error) {
	if len(buf) != FileHeaderSize {
		return fileHeader{}, dberrors.New(dberrors.CodeCorruption, "wal header: wrong size")
	}
	for i, b := range FileMagic {
		if buf[fhOffMagic+i] != b {
			return fileHeader{}, dberrors.New(dberrors.CodeCorruption, "wal header: bad magic")
		}
	}
	h := fileHeader{
		Version:  codec.Uint32LE(buf[fhOffVersion:]),
		PageSize: codec.Uint32LE(buf[fhOffPageSize:]),
		EndOff:   codec.Uint64LE(buf[fhOffEndOff:]),
	}
	if h.Version != FileHeaderVersion {
		return fileHeader{}, dberrors.New(dberrors.CodeCorruption, fmt.Sprintf("wal header: unsupported version %d", h.Version))
	}
	return h, nil
}

// frame is one decoded WAL entry.
type frame struct {
	kind    uint8
	pageID  pageformat.PageID
	payload []byte // page image for Page frames, 8-byte safeLsn for Checkpoint, empty for Commit
}

// payloadLen returns the on-disk payload length for kind, given the DB
// page size (spec.md §4.3: "pageSize for Page frames, 0 for Commit, 8 for
// Checkpoint").
func payloadLen(kind uint8, pageSize uint32) (int, error) {
	switch kind {
	case FrameTypePage:
		return int(pageSize), nil
	case FrameTypeCommit:
		return 0, nil
	case FrameTypeCheckpoint:
		return 8, nil
	default:
		return 0, dberrors.New(dberrors.CodeCorruption, fmt.Sprintf("wal: unknown frame type %d", kind))
	}
}

// encodeFrame serializes f into a single contiguous frame buffer.
func encodeFrame(f frame) []byte {
	buf := make([]byte, FrameHeaderSize+len(f.payload)+TrailerSize)
	buf[0] = f.kind
	codec.PutUint32LE(buf[1:], uint32(f.pageID))
	copy(buf[FrameHeaderSize:], f.payload)
	// trailer bytes are left zero
	return buf
}

func frameSize(payloadSize int) int {
	return FrameHeaderSize + payloadSize + TrailerSize
}
