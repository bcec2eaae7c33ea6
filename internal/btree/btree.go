package btree

import (
	"sync"

	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// inlineFraction bounds how large a value can be before it is pushed out
// to an overflow chain instead of being stored inline in its leaf cell;
// this keeps a leaf page able to hold more than one or two cells even
// when a handful of values are large, per spec.md §3.1's inline-or-
// overflow split.
const inlineFraction = 4

// Tree is one on-disk B+Tree instance, rooted at RootID. It is used both
// for table row storage (Key = rowid) and for secondary/catalog/trigram
// indexes (Key = a computed uint64), per spec.md §4.4. Mutations
// serialize on mu; Find crab-latches its way down via latches in read
// mode, so lookups never block one another. Cursors and the writer take
// no page latches. Grounded on the teacher's btree.go BTree type and
// its Put/Get/Delete entry points, with the node-splitting machinery
// rewritten against the decoded-cell-vector representation in page.go.
type Tree struct {
	store   pageStore
	mu      sync.Mutex
	root    pageformat.PageID
	latches *latchManager
}

// New wraps an existing tree rooted at root.
func New(store pageStore, root pageformat.PageID) *Tree {
	return &Tree{store: store, root: root, latches: newLatchManager()}
}

// NewEmpty allocates a fresh, empty leaf page and returns a tree rooted
// there.
func NewEmpty(store pageStore) (*Tree, error) {
	id, err := store.AllocatePage()
	if err != nil {
		return nil, err
	}
	lp := &leafPage{id: id}
	if err := store.WritePage(id, lp.encode(int(store.PageSize()))); err != nil {
		return nil, err
	}
	return New(store, id), nil
}

// Root returns the current root page id. Callers that own the pointer to
// this tree (a table's root, the catalog root, an index root) must
// re-persist this after any Insert/Delete that might have split the
// root.
func (t *Tree) Root() pageformat.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

func (t *Tree) pageSize() int { return int(t.store.PageSize()) }

func (t *Tree) readType(id pageformat.PageID) ([]byte, bool, error) {
	buf, err := t.store.ReadPage(id)
	if err != nil {
		return nil, false, err
	}
	return buf, buf[pageformat.BTreeOffType] == pageformat.PageTypeLeaf, nil
}

// Find looks up key and returns its value (resolving an overflow chain
// if needed), or found=false if key is absent.
func (t *Tree) Find(key Key) (value []byte, found bool, err error) {
	coupling := newLatchCoupling(t.latches, LatchRead)
	defer coupling.releaseAll()

	id := t.Root()
	for {
		coupling.step(uint32(id))
		buf, isLeaf, err := t.readType(id)
		if err != nil {
			return nil, false, err
		}
		if isLeaf {
			lp, err := decodeLeafPage(id, buf)
			if err != nil {
				return nil, false, err
			}
			idx, ok := lp.find(key)
			if !ok {
				return nil, false, nil
			}
			e := lp.entries[idx]
			if e.inline {
				out := make([]byte, len(e.payload))
				copy(out, e.payload)
				return out, true, nil
			}
			val, err := readOverflow(t.store, e.ovHead)
			return val, true, err
		}
		ip, err := decodeInternalPage(id, buf)
		if err != nil {
			return nil, false, err
		}
		_, child := ip.findChild(key)
		id = child
	}
}

// Insert stores value under key, overwriting any existing value (freeing
// its overflow chain first if it had one).
func (t *Tree) Insert(key Key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, err := t.makeEntry(key, value)
	if err != nil {
		return err
	}

	sepKey, newRight, split, err := t.insertRec(t.root, entry)
	if err != nil {
		return err
	}
	if !split {
		return nil
	}

	newRootID, err := t.store.AllocatePage()
	if err != nil {
		return err
	}
	newRoot := &internalPage{
		id:        newRootID,
		rightmost: newRight,
		entries:   []internalEntry{{key: sepKey, child: t.root}},
	}
	if err := t.store.WritePage(newRootID, newRoot.encode(t.pageSize())); err != nil {
		return err
	}
	t.root = newRootID
	return nil
}

func (t *Tree) makeEntry(key Key, value []byte) (leafEntry, error) {
	if len(value) > t.pageSize()/inlineFraction {
		head, err := writeOverflow(t.store, value)
		if err != nil {
			return leafEntry{}, err
		}
		return leafEntry{key: key, inline: false, ovHead: head}, nil
	}
	payload := make([]byte, len(value))
	copy(payload, value)
	return leafEntry{key: key, inline: true, payload: payload}, nil
}

// insertRec descends to the leaf responsible for entry.key, inserts or
// replaces it there, and propagates a split upward as needed.
func (t *Tree) insertRec(id pageformat.PageID, entry leafEntry) (sepKey Key, newRight pageformat.PageID, split bool, err error) {
	buf, isLeaf, err := t.readType(id)
	if err != nil {
		return 0, 0, false, err
	}

	if isLeaf {
		lp, err := decodeLeafPage(id, buf)
		if err != nil {
			return 0, 0, false, err
		}
		idx, found := lp.find(entry.key)
		if found {
			old := lp.entries[idx]
			if !old.inline {
				if err := freeOverflow(t.store, old.ovHead); err != nil {
					return 0, 0, false, err
				}
			}
			lp.entries[idx] = entry
		} else {
			entries := make([]leafEntry, 0, len(lp.entries)+1)
			entries = append(entries, lp.entries[:idx]...)
			entries = append(entries, entry)
			entries = append(entries, lp.entries[idx:]...)
			lp.entries = entries
		}

		if lp.encodedSize()+reservedTrailer <= t.pageSize() {
			return 0, 0, false, t.store.WritePage(id, lp.encode(t.pageSize()))
		}

		newID, err := t.store.AllocatePage()
		if err != nil {
			return 0, 0, false, err
		}
		left, right, sep := splitLeaf(lp, newID)
		if err := t.store.WritePage(left.id, left.encode(t.pageSize())); err != nil {
			return 0, 0, false, err
		}
		if err := t.store.WritePage(right.id, right.encode(t.pageSize())); err != nil {
			return 0, 0, false, err
		}
		return sep, newID, true, nil
	}

	ip, err := decodeInternalPage(id, buf)
	if err != nil {
		return 0, 0, false, err
	}
	idx, child := ip.findChild(entry.key)
	childSep, childRight, childSplit, err := t.insertRec(child, entry)
	if err != nil {
		return 0, 0, false, err
	}
	if !childSplit {
		return 0, 0, false, nil
	}

	insertSeparator(ip, idx, childSep, child, childRight)

	if ip.encodedSize()+reservedTrailer <= t.pageSize() {
		return 0, 0, false, t.store.WritePage(id, ip.encode(t.pageSize()))
	}

	newID, err := t.store.AllocatePage()
	if err != nil {
		return 0, 0, false, err
	}
	left, right, sep := splitInternal(ip, newID)
	if err := t.store.WritePage(left.id, left.encode(t.pageSize())); err != nil {
		return 0, 0, false, err
	}
	if err := t.store.WritePage(right.id, right.encode(t.pageSize())); err != nil {
		return 0, 0, false, err
	}
	return sep, newID, true, nil
}

// insertSeparator inserts a new (sepKey -> leftID) entry into ip at idx,
// the position findChild returned when descending into leftID before it
// split, and repoints whatever previously referenced leftID to rightID —
// that slot now covers the upper half of the original range.
func insertSeparator(ip *internalPage, idx int, sepKey Key, leftID, rightID pageformat.PageID) {
	entries := make([]internalEntry, 0, len(ip.entries)+1)
	entries = append(entries, ip.entries[:idx]...)
	entries = append(entries, internalEntry{key: sepKey, child: leftID})
	entries = append(entries, ip.entries[idx:]...)
	ip.entries = entries

	if idx+1 < len(ip.entries) {
		ip.entries[idx+1].child = rightID
	} else {
		ip.rightmost = rightID
	}
}

// Delete removes key, freeing its overflow chain if it had one. This
// baseline implementation never merges or rebalances underfull pages
// (per spec.md's stated baseline), so deletes can only shrink a tree's
// occupancy, never its height.
func (t *Tree) Delete(key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteRec(t.root, key)
}

func (t *Tree) deleteRec(id pageformat.PageID, key Key) error {
	buf, isLeaf, err := t.readType(id)
	if err != nil {
		return err
	}
	if isLeaf {
		lp, err := decodeLeafPage(id, buf)
		if err != nil {
			return err
		}
		idx, found := lp.find(key)
		if !found {
			return dberrors.New(dberrors.CodeSQL, "key not found")
		}
		e := lp.entries[idx]
		if !e.inline {
			if err := freeOverflow(t.store, e.ovHead); err != nil {
				return err
			}
		}
		lp.entries = append(lp.entries[:idx], lp.entries[idx+1:]...)
		return t.store.WritePage(id, lp.encode(t.pageSize()))
	}

	ip, err := decodeInternalPage(id, buf)
	if err != nil {
		return err
	}
	_, child := ip.findChild(key)
	return t.deleteRec(child, key)
}
