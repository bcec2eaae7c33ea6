package btree

import (
	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// pageStore is the narrow slice of Pager this package depends on, so
// internal/btree never needs to import internal/pager directly (same
// interface-seam style used to break the pager/wal cycle).
type pageStore interface {
	ReadPage(id pageformat.PageID) ([]byte, error)
	WritePage(id pageformat.PageID, data []byte) error
	AllocatePage() (pageformat.PageID, error)
	FreePage(id pageformat.PageID) error
	PageSize() uint32
}

// writeOverflow stores payload across a chain of overflow pages, each
// laid out [next_page:u32][data_len:u32][bytes...] per spec.md §3.1, and
// returns the head page id.
func writeOverflow(store pageStore, payload []byte) (pageformat.PageID, error) {
	pageSize := int(store.PageSize())
	chunkSize := pageSize - pageformat.OverflowHeaderSize

	var headID, prevID pageformat.PageID
	var prevBuf []byte

	remaining := payload
	for {
		chunk := remaining
		more := false
		if len(chunk) > chunkSize {
			chunk = remaining[:chunkSize]
			more = true
		}

		id, err := store.AllocatePage()
		if err != nil {
			return 0, err
		}
		if headID == 0 {
			headID = id
		}

		buf := make([]byte, pageSize)
		codec.PutUint32LE(buf[pageformat.OverflowOffLen:], uint32(len(chunk)))
		copy(buf[pageformat.OverflowHeaderSize:], chunk)

		if prevID != 0 {
			codec.PutUint32LE(prevBuf[pageformat.OverflowOffNext:], uint32(id))
			if err := store.WritePage(prevID, prevBuf); err != nil {
				return 0, err
			}
		}

		prevID, prevBuf = id, buf
		if !more {
			break
		}
		remaining = remaining[chunkSize:]
	}

	if err := store.WritePage(prevID, prevBuf); err != nil {
		return 0, err
	}
	return headID, nil
}

// readOverflow reconstructs the full payload starting at head.
func readOverflow(store pageStore, head pageformat.PageID) ([]byte, error) {
	var out []byte
	id := head
	for id != 0 {
		buf, err := store.ReadPage(id)
		if err != nil {
			return nil, err
		}
		n := codec.Uint32LE(buf[pageformat.OverflowOffLen:])
		if int(n) > len(buf)-pageformat.OverflowHeaderSize {
			return nil, dberrors.New(dberrors.CodeCorruption, "overflow page data length overruns page")
		}
		out = append(out, buf[pageformat.OverflowHeaderSize:pageformat.OverflowHeaderSize+int(n)]...)
		id = pageformat.PageID(codec.Uint32LE(buf[pageformat.OverflowOffNext:]))
	}
	return out, nil
}

// freeOverflow releases every page in the chain starting at head.
func freeOverflow(store pageStore, head pageformat.PageID) error {
	id := head
	for id != 0 {
		buf, err := store.ReadPage(id)
		if err != nil {
			return err
		}
		next := pageformat.PageID(codec.Uint32LE(buf[pageformat.OverflowOffNext:]))
		if err := store.FreePage(id); err != nil {
			return err
		}
		id = next
	}
	return nil
}
