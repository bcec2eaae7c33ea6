package btree

// Cursor streams ordered (key, value) pairs across leaf pages, following
// the leaf chain's next pointer rather than re-descending from the root
// for every step. Grounded on the teacher's btree/iterator.go Iterator,
// adapted to the decoded-cell-vector leaf representation and to resolve
// overflow chains transparently.
type Cursor struct {
	tree   *Tree
	leaf   *leafPage
	idx    int
	endKey Key
	hasEnd bool
	done   bool
	err    error
}

// OpenCursor returns a cursor positioned at the first key in the tree.
func (t *Tree) OpenCursor() (*Cursor, error) {
	return t.OpenCursorAt(0)
}

// OpenCursorAt returns a cursor positioned at the first key >= from.
func (t *Tree) OpenCursorAt(from Key) (*Cursor, error) {
	c := &Cursor{tree: t}
	if err := c.seek(from); err != nil {
		return nil, err
	}
	return c, nil
}

// SetEnd bounds the cursor to keys < end (exclusive), for range scans.
func (c *Cursor) SetEnd(end Key) {
	c.endKey = end
	c.hasEnd = true
}

func (c *Cursor) seek(from Key) error {
	id := c.tree.Root()
	for {
		buf, isLeaf, err := c.tree.readType(id)
		if err != nil {
			return err
		}
		if isLeaf {
			lp, err := decodeLeafPage(id, buf)
			if err != nil {
				return err
			}
			idx, _ := lp.find(from)
			c.leaf = lp
			c.idx = idx
			if err := c.advancePastExhaustedLeaf(); err != nil {
				return err
			}
			c.checkDone()
			return nil
		}
		ip, err := decodeInternalPage(id, buf)
		if err != nil {
			return err
		}
		_, child := ip.findChild(from)
		id = child
	}
}

// advancePastExhaustedLeaf rolls forward across empty/exhausted leaves
// until a live entry is found or the chain ends.
func (c *Cursor) advancePastExhaustedLeaf() error {
	for c.leaf != nil && c.idx >= len(c.leaf.entries) {
		next := c.leaf.next
		if next == 0 {
			c.done = true
			return nil
		}
		buf, err := c.tree.store.ReadPage(next)
		if err != nil {
			return err
		}
		lp, err := decodeLeafPage(next, buf)
		if err != nil {
			return err
		}
		c.leaf = lp
		c.idx = 0
	}
	return nil
}

func (c *Cursor) checkDone() {
	if c.leaf == nil || c.idx >= len(c.leaf.entries) {
		c.done = c.leaf != nil && c.leaf.next == 0
		return
	}
	if c.hasEnd && c.leaf.entries[c.idx].key >= c.endKey {
		c.done = true
	}
}

// Valid reports whether the cursor is positioned at a live entry.
func (c *Cursor) Valid() bool {
	if c.err != nil || c.done {
		return false
	}
	return c.leaf != nil && c.idx < len(c.leaf.entries)
}

// Err returns the first error encountered during traversal, if any.
func (c *Cursor) Err() error { return c.err }

// Key returns the current entry's key. Valid must be true.
func (c *Cursor) Key() Key { return c.leaf.entries[c.idx].key }

// Value returns the current entry's value, resolving overflow if needed.
func (c *Cursor) Value() ([]byte, error) {
	e := c.leaf.entries[c.idx]
	if e.inline {
		out := make([]byte, len(e.payload))
		copy(out, e.payload)
		return out, nil
	}
	return readOverflow(c.tree.store, e.ovHead)
}

// Next advances the cursor, crossing into the next leaf page via its
// next pointer when the current leaf is exhausted.
func (c *Cursor) Next() bool {
	if !c.Valid() {
		return false
	}
	c.idx++
	if err := c.advancePastExhaustedLeaf(); err != nil {
		c.err = err
		return false
	}
	c.checkDone()
	return c.Valid()
}
