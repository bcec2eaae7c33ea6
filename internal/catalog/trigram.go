package catalog

import (
	"sort"

	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
)

// postingsChunkBudget is the approximate per-chunk byte budget spec.md
// §4.6 specifies ("chunked at ≤ 400 B per B+Tree value").
const postingsChunkBudget = 400

// trigramKey packs a trigram and a chunk id into one postings B+Tree
// key, per spec.md §4.6 ("key = (trigram<<16) | chunk_id").
func trigramKey(trigram uint32, chunkID uint32) uint64 {
	return (uint64(trigram) << 16) | uint64(chunkID)
}

// TrigramAdd records a pending posting addition for (index, trigram),
// held in memory until the next checkpoint flush (spec.md §4.6: trigram
// index durability is checkpoint-bounded, not commit-bounded).
func (c *Catalog) TrigramAdd(index string, trigram uint32, rowid uint64) {
	c.trigramMu.Lock()
	defer c.trigramMu.Unlock()
	d := c.deltaLocked(index, trigram)
	delete(d.removed, rowid)
	d.added[rowid] = struct{}{}
}

// TrigramRemove records a pending posting removal.
func (c *Catalog) TrigramRemove(index string, trigram uint32, rowid uint64) {
	c.trigramMu.Lock()
	defer c.trigramMu.Unlock()
	d := c.deltaLocked(index, trigram)
	delete(d.added, rowid)
	d.removed[rowid] = struct{}{}
}

func (c *Catalog) deltaLocked(index string, trigram uint32) *trigramDelta {
	k := trigramBufferKey{index: index, trigram: trigram}
	d, ok := c.trigram[k]
	if !ok {
		d = &trigramDelta{added: make(map[uint64]struct{}), removed: make(map[uint64]struct{})}
		c.trigram[k] = d
	}
	return d
}

// GetTrigramPostingsWithDeltasUpTo returns up to limit rowids for
// (index, trigram), merging on-disk postings with any still-pending
// delta buffer entries. truncated reports whether more rowids exist
// beyond limit. limit <= 0 means unbounded.
func (c *Catalog) GetTrigramPostingsWithDeltasUpTo(tree *btree.Tree, index string, trigram uint32, limit int) (rowids []uint64, truncated bool, err error) {
	set, err := readAllPostings(tree, trigram)
	if err != nil {
		return nil, false, err
	}

	c.trigramMu.Lock()
	if d, ok := c.trigram[trigramBufferKey{index: index, trigram: trigram}]; ok {
		for id := range d.added {
			set[id] = struct{}{}
		}
		for id := range d.removed {
			delete(set, id)
		}
	}
	c.trigramMu.Unlock()

	sorted := sortedSet(set)
	if limit > 0 && len(sorted) > limit {
		return sorted[:limit], true, nil
	}
	return sorted, false, nil
}

// FlushTrigramDeltas merges every pending delta for index into the
// on-disk postings tree and clears the in-memory buffer. Called at
// checkpoint, per spec.md §4.6.
func (c *Catalog) FlushTrigramDeltas(index string, tree *btree.Tree) error {
	c.trigramMu.Lock()
	pending := make(map[uint32]*trigramDelta)
	for k, d := range c.trigram {
		if k.index == index {
			pending[k.trigram] = d
		}
	}
	c.trigramMu.Unlock()

	for trigram, d := range pending {
		set, err := readAllPostings(tree, trigram)
		if err != nil {
			return err
		}
		for id := range d.added {
			set[id] = struct{}{}
		}
		for id := range d.removed {
			delete(set, id)
		}
		if err := writeAllPostings(tree, trigram, set); err != nil {
			return err
		}
		c.trigramMu.Lock()
		delete(c.trigram, trigramBufferKey{index: index, trigram: trigram})
		c.trigramMu.Unlock()
	}
	return nil
}

func sortedSet(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// readAllPostings reads every rowid currently persisted for trigram,
// from the legacy single-key fallback (if present) plus every chunked
// key, per spec.md §4.6's read-compatibility note.
func readAllPostings(tree *btree.Tree, trigram uint32) (map[uint64]struct{}, error) {
	out := make(map[uint64]struct{})

	if data, found, err := tree.Find(uint64(trigram)); err != nil {
		return nil, err
	} else if found {
		ids, err := decodePostingsChunk(data)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}

	for chunkID := uint32(0); ; chunkID++ {
		data, found, err := tree.Find(trigramKey(trigram, chunkID))
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		ids, err := decodePostingsChunk(data)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// writeAllPostings rewrites trigram's postings from scratch as chunked
// entries, removing the legacy single key and any now-unused trailing
// chunk keys.
func writeAllPostings(tree *btree.Tree, trigram uint32, set map[uint64]struct{}) error {
	deleteIfExists(tree, uint64(trigram))

	sorted := sortedSet(set)
	chunks := encodePostingsChunks(sorted)

	chunkID := uint32(0)
	for ; chunkID < uint32(len(chunks)); chunkID++ {
		if err := tree.Insert(trigramKey(trigram, chunkID), chunks[chunkID]); err != nil {
			return err
		}
	}
	for {
		key := trigramKey(trigram, chunkID)
		_, found, err := tree.Find(key)
		if err != nil {
			return err
		}
		if !found {
			break
		}
		if err := tree.Delete(key); err != nil {
			return err
		}
		chunkID++
	}
	return nil
}

func deleteIfExists(tree *btree.Tree, key uint64) {
	if _, found, err := tree.Find(key); err == nil && found {
		_ = tree.Delete(key)
	}
}

// encodePostingsChunks delta-encodes sorted (ascending) rowids and packs
// them into ≤postingsChunkBudget-byte chunks.
func encodePostingsChunks(sorted []uint64) [][]byte {
	if len(sorted) == 0 {
		return nil
	}

	var chunks [][]byte
	var cur []byte
	var tmp [codec.MaxVarintLen64]byte
	var prev uint64

	for i, id := range sorted {
		var n int
		if i == 0 || len(cur) == 0 {
			n = codec.PutUvarint(tmp[:], id)
		} else {
			n = codec.PutUvarint(tmp[:], id-prev)
		}
		if len(cur)+n > postingsChunkBudget && len(cur) > 0 {
			chunks = append(chunks, cur)
			cur = nil
			n = codec.PutUvarint(tmp[:], id) // first entry of a new chunk is absolute
		}
		cur = append(cur, tmp[:n]...)
		prev = id
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func decodePostingsChunk(buf []byte) ([]uint64, error) {
	var out []uint64
	var prev uint64
	off := 0
	for off < len(buf) {
		delta, n, err := codec.ReadUvarint(buf[off:])
		if err != nil {
			return nil, dberrors.Wrap(dberrors.CodeCorruption, "decode trigram posting chunk", err)
		}
		off += n
		var id uint64
		if len(out) == 0 {
			id = delta
		} else {
			id = prev + delta
		}
		out = append(out, id)
		prev = id
	}
	return out, nil
}
