package btree

import "github.com/sphildreth/decentdb-sub007/internal/pageformat"

// FreeTree walks every page reachable from root (including leaf overflow
// chains) and frees it. Used by internal/storage to drop or rebuild a
// secondary index, whose pages have no other owner once the index is
// dropped — the teacher has no equivalent (its BTree is never destroyed
// mid-process, only closed), so this is new, built directly on the
// decode helpers decodeLeafPage/decodeInternalPage already used by
// Insert/Delete.
func FreeTree(store PageStore, root pageformat.PageID) error {
	buf, err := store.ReadPage(root)
	if err != nil {
		return err
	}
	if buf[pageformat.BTreeOffType] == pageformat.PageTypeLeaf {
		lp, err := decodeLeafPage(root, buf)
		if err != nil {
			return err
		}
		for _, e := range lp.entries {
			if !e.inline {
				if err := freeOverflow(store, e.ovHead); err != nil {
					return err
				}
			}
		}
		return store.FreePage(root)
	}

	ip, err := decodeInternalPage(root, buf)
	if err != nil {
		return err
	}
	for _, e := range ip.entries {
		if err := FreeTree(store, e.child); err != nil {
			return err
		}
	}
	if err := FreeTree(store, ip.rightmost); err != nil {
		return err
	}
	return store.FreePage(root)
}
