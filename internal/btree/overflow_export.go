package btree

import "github.com/sphildreth/decentdb-sub007/internal/pageformat"

// PageStore is the exported name of pageStore, for packages outside
// internal/btree (the record codec, storage layer) that need to write
// or resolve overflow chains without owning a Tree.
type PageStore = pageStore

// WriteOverflow stores payload across an overflow chain and returns its
// head page id. Exported for internal/record, whose TextOverflow/
// BlobOverflow value kinds reuse the same chain format as tree leaf
// values too large to inline (spec.md §3.1).
func WriteOverflow(store PageStore, payload []byte) (pageformat.PageID, error) {
	return writeOverflow(store, payload)
}

// ReadOverflow reconstructs the payload stored at head.
func ReadOverflow(store PageStore, head pageformat.PageID) ([]byte, error) {
	return readOverflow(store, head)
}

// FreeOverflow releases every page in the chain starting at head.
func FreeOverflow(store PageStore, head pageformat.PageID) error {
	return freeOverflow(store, head)
}
