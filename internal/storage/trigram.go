package storage

import (
	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// trigramsOf packs every overlapping 3-byte window of text into a uint32
// by treating it as a little-endian triple, giving a cheap, allocation-
// free trigram identity consistent with the catalog package's
// chunked-postings key scheme (internal/catalog/trigram.go).
func trigramsOf(text string) []uint32 {
	if len(text) < 3 {
		return nil
	}
	out := make([]uint32, 0, len(text)-2)
	for i := 0; i+3 <= len(text); i++ {
		t := uint32(text[i]) | uint32(text[i+1])<<8 | uint32(text[i+2])<<16
		out = append(out, t)
	}
	return out
}

// HashTrigram folds a raw byte-triple into the same 32-bit keyspace
// trigramsOf produces, for callers (e.g. LIKE '%abc%' search) that start
// from a literal substring rather than a stored column.
func HashTrigram(triple string) uint32 {
	if len(triple) != 3 {
		return codec.CRC32C([]byte(triple))
	}
	return uint32(triple[0]) | uint32(triple[1])<<8 | uint32(triple[2])<<16
}

func (e *Engine) addTrigramEntries(idx *catalog.IndexDef, def *catalog.TableDef, values []record.Value, rowid uint64) error {
	if len(idx.Columns) != 1 {
		return nil
	}
	ci := columnIndex(def.Columns, idx.Columns[0])
	if ci < 0 || values[ci].Kind != record.Text {
		return nil
	}
	for _, t := range trigramsOf(values[ci].Text) {
		e.cat.TrigramAdd(idx.Name, t, rowid)
	}
	return nil
}

func (e *Engine) removeTrigramEntries(idx *catalog.IndexDef, def *catalog.TableDef, values []record.Value, rowid uint64) {
	if len(idx.Columns) != 1 {
		return
	}
	ci := columnIndex(def.Columns, idx.Columns[0])
	if ci < 0 || values[ci].Kind != record.Text {
		return
	}
	for _, t := range trigramsOf(values[ci].Text) {
		e.cat.TrigramRemove(idx.Name, t, rowid)
	}
}

// GetTrigramPostingsWithDeltasUpTo exposes spec.md §6.2's named
// operation at the storage layer, merging the trigram index's on-disk
// postings with its pending in-memory delta buffer.
func (e *Engine) GetTrigramPostingsWithDeltasUpTo(indexName string, trigram uint32, limit int) (rowids []uint64, truncated bool, err error) {
	idx, found, err := e.cat.GetIndex(indexName)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	tree := e.indexTree(idx.Name, idx)
	return e.cat.GetTrigramPostingsWithDeltasUpTo(tree, indexName, trigram, limit)
}

// FlushTrigramDeltas is called at checkpoint to durably merge every
// trigram index's pending delta buffer into its on-disk postings.
func (e *Engine) FlushTrigramDeltas() error {
	indexes, err := e.allIndexes()
	if err != nil {
		return err
	}
	for i := range indexes {
		if indexes[i].Kind != catalog.IndexKindTrigram {
			continue
		}
		idx := &indexes[i]
		tree := e.indexTree(idx.Name, idx)
		if err := e.cat.FlushTrigramDeltas(idx.Name, tree); err != nil {
			return err
		}
		if err := e.persistIndexRootIfChanged(idx, tree); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) allIndexes() ([]catalog.IndexDef, error) {
	tables, err := e.cat.ListTables()
	if err != nil {
		return nil, err
	}
	var out []catalog.IndexDef
	for _, t := range tables {
		idxs, err := e.cat.ListIndexesForTable(t.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, idxs...)
	}
	return out, nil
}
