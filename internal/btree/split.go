package btree

import "github.com/sphildreth/decentdb-sub007/internal/pageformat"

// splitLeaf splits a leaf page in two using a left-biased median: with an
// even entry count the lower of the two middle cells stays in the left
// page, and the right page's first (lowest) key is copied up as the
// separator — a leaf split duplicates the key into the parent rather
// than removing it, unlike splitInternal. Matches the teacher's
// splitLeaf in btree/split.go but operates on the decoded entry vector
// instead of raw cell bytes.
func splitLeaf(lp *leafPage, newID pageformat.PageID) (left, right *leafPage, sepKey Key) {
	mid := len(lp.entries) / 2 // left-biased: with an even count, the lower of
	// the two middle cells (index mid-1) ends up last in the left half.

	left = &leafPage{id: lp.id, next: newID, entries: append([]leafEntry{}, lp.entries[:mid]...)}
	right = &leafPage{id: newID, next: lp.next, entries: append([]leafEntry{}, lp.entries[mid:]...)}
	sepKey = right.entries[0].key
	return left, right, sepKey
}

// splitInternal splits an internal page. The middle separator key is
// promoted to the parent (not duplicated into either child, since
// internal separators are exclusive upper bounds), and its child becomes
// the left page's rightmost pointer.
func splitInternal(ip *internalPage, newID pageformat.PageID) (left, right *internalPage, sepKey Key) {
	mid := len(ip.entries) / 2

	left = &internalPage{id: ip.id, rightmost: ip.entries[mid].child, entries: append([]internalEntry{}, ip.entries[:mid]...)}
	right = &internalPage{id: newID, rightmost: ip.rightmost, entries: append([]internalEntry{}, ip.entries[mid+1:]...)}
	sepKey = ip.entries[mid].key
	return left, right, sepKey
}
