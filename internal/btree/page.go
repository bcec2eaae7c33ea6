package btree

import (
	"sort"

	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// reservedTrailer leaves a little slack below pageSize so a split never
// has to round-trip through "almost full" pages; mirrors the teacher's
// page.go leaving FreePtr headroom rather than packing to the last byte.
const reservedTrailer = 4

// leafPage is the decoded, in-memory form of one leaf page. Per spec.md
// §4.4 pages are decoded into a cell vector on demand and the decode is
// cached per-operation; there is no in-place cell shifting like the
// teacher's InsertCell/DeleteCell byte-slice surgery, since delta
// encoding means every cell after an insertion point must be
// re-delta-computed against its new predecessor anyway.
type leafPage struct {
	id      pageformat.PageID
	next    pageformat.PageID // right sibling, 0 if none
	entries []leafEntry       // sorted ascending by key
}

type internalPage struct {
	id      pageformat.PageID
	rightmost pageformat.PageID // child for keys >= entries[len-1].key
	entries []internalEntry     // sorted ascending by key; entries[i].child holds keys in [entries[i-1].key, entries[i].key)
}

// decodeLeafPage parses a raw page buffer into a leafPage.
func decodeLeafPage(id pageformat.PageID, buf []byte) (*leafPage, error) {
	if buf[pageformat.BTreeOffType] != pageformat.PageTypeLeaf {
		return nil, dberrors.New(dberrors.CodeCorruption, "expected leaf page")
	}
	count := int(codec.Uint16LE(buf[pageformat.BTreeOffCellCount:]))
	next := pageformat.PageID(codec.Uint32LE(buf[pageformat.BTreeOffRightOrNext:]))

	lp := &leafPage{id: id, next: next, entries: make([]leafEntry, 0, count)}
	off := pageformat.BTreeHeaderSize
	var prev Key
	for i := 0; i < count; i++ {
		e, newOff, err := decodeLeafCell(buf, off, prev, i == 0)
		if err != nil {
			if dberr, ok := err.(*dberrors.Error); ok {
				return nil, dberr.WithContext("page", id)
			}
			return nil, err
		}
		off = newOff
		prev = e.key
		lp.entries = append(lp.entries, e)
	}
	return lp, nil
}

func decodeInternalPage(id pageformat.PageID, buf []byte) (*internalPage, error) {
	if buf[pageformat.BTreeOffType] != pageformat.PageTypeInternal {
		return nil, dberrors.New(dberrors.CodeCorruption, "expected internal page")
	}
	count := int(codec.Uint16LE(buf[pageformat.BTreeOffCellCount:]))
	rightmost := pageformat.PageID(codec.Uint32LE(buf[pageformat.BTreeOffRightOrNext:]))

	ip := &internalPage{id: id, rightmost: rightmost, entries: make([]internalEntry, 0, count)}
	off := pageformat.BTreeHeaderSize
	var prev Key
	for i := 0; i < count; i++ {
		e, newOff, err := decodeInternalCell(buf, off, prev, i == 0)
		if err != nil {
			return nil, err
		}
		off = newOff
		prev = e.key
		ip.entries = append(ip.entries, e)
	}
	return ip, nil
}

// encode serializes the leaf page back to a fresh pageSize-byte buffer.
func (lp *leafPage) encode(pageSize int) []byte {
	buf := make([]byte, pageformat.BTreeHeaderSize, pageSize)
	buf[pageformat.BTreeOffType] = pageformat.PageTypeLeaf
	buf[pageformat.BTreeOffFlags] = pageformat.FlagDeltaEncodedKeys
	codec.PutUint16LE(buf[pageformat.BTreeOffCellCount:], uint16(len(lp.entries)))
	codec.PutUint32LE(buf[pageformat.BTreeOffRightOrNext:], uint32(lp.next))

	var prev Key
	for i, e := range lp.entries {
		buf = encodeLeafCell(buf, prev, i == 0, e)
		prev = e.key
	}
	out := make([]byte, pageSize)
	copy(out, buf)
	return out
}

func (ip *internalPage) encode(pageSize int) []byte {
	buf := make([]byte, pageformat.BTreeHeaderSize, pageSize)
	buf[pageformat.BTreeOffType] = pageformat.PageTypeInternal
	buf[pageformat.BTreeOffFlags] = pageformat.FlagDeltaEncodedKeys
	codec.PutUint16LE(buf[pageformat.BTreeOffCellCount:], uint16(len(ip.entries)))
	codec.PutUint32LE(buf[pageformat.BTreeOffRightOrNext:], uint32(ip.rightmost))

	var prev Key
	for i, e := range ip.entries {
		buf = encodeInternalCell(buf, prev, i == 0, e)
		prev = e.key
	}
	out := make([]byte, pageSize)
	copy(out, buf)
	return out
}

// encodedSize returns the byte size the page would occupy if encoded now.
func (lp *leafPage) encodedSize() int {
	size := pageformat.BTreeHeaderSize
	var prev Key
	for i, e := range lp.entries {
		size += leafCellSize(prev, i == 0, e)
		prev = e.key
	}
	return size
}

func (ip *internalPage) encodedSize() int {
	size := pageformat.BTreeHeaderSize
	var prev Key
	for i, e := range ip.entries {
		size += internalCellSize(prev, i == 0, e)
		prev = e.key
	}
	return size
}

// find returns the index of the entry with the given key and whether it
// was found, via binary search (teacher's searchCell in btree/page.go,
// adapted to the decoded-vector representation).
func (lp *leafPage) find(key Key) (int, bool) {
	i := sort.Search(len(lp.entries), func(i int) bool { return lp.entries[i].key >= key })
	if i < len(lp.entries) && lp.entries[i].key == key {
		return i, true
	}
	return i, false
}

// findChild returns the index of the separator that bounds key, i.e. the
// child to descend into.
func (ip *internalPage) findChild(key Key) (childIdx int, child pageformat.PageID) {
	i := sort.Search(len(ip.entries), func(i int) bool { return ip.entries[i].key > key })
	if i == len(ip.entries) {
		return i, ip.rightmost
	}
	return i, ip.entries[i].child
}
