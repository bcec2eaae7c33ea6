package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

const exprColumnPrefix = "expr:"

// PredicateEvaluator resolves a partial index's predicate SQL against one
// row. Evaluating arbitrary SQL is the external SQL layer's job, not the
// storage engine's (the expression evaluator is explicitly out of scope
// here) — Engine only calls this hook if the SQL layer wired one in with
// SetPredicateEvaluator; otherwise a partial index's predicate is treated
// as always-true, matching a non-partial index.
type PredicateEvaluator interface {
	Eval(predicate string, cols []catalog.ColumnDef, values []record.Value) (bool, error)
}

// ExpressionEvaluator resolves an "expr:<sql>" index column against one
// row, for the same reason PredicateEvaluator exists. Without one wired
// in, expression-index maintenance is skipped for that column.
type ExpressionEvaluator interface {
	Eval(expr string, cols []catalog.ColumnDef, values []record.Value) (record.Value, error)
}

func (e *Engine) SetPredicateEvaluator(p PredicateEvaluator)   { e.predicateEval = p }
func (e *Engine) SetExpressionEvaluator(x ExpressionEvaluator) { e.exprEval = x }

func columnIndex(cols []catalog.ColumnDef, name string) int {
	for i, c := range cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// shouldIncludeInIndex evaluates idx's partial predicate (if any) for one
// row, per spec.md §4.7.
func (e *Engine) shouldIncludeInIndex(def *catalog.TableDef, idx *catalog.IndexDef, values []record.Value) (bool, error) {
	if idx.Partial == "" {
		return true, nil
	}
	if e.predicateEval == nil {
		return true, nil
	}
	return e.predicateEval.Eval(idx.Partial, def.Columns, values)
}

// indexKeyValues resolves idx's key columns (plain names or a single
// "expr:<sql>" token) against one row. ok is false when an expression
// column can't be resolved (no evaluator wired), meaning the caller
// should skip maintaining this index for this row.
func (e *Engine) indexKeyValues(def *catalog.TableDef, idx *catalog.IndexDef, values []record.Value) (keyVals []record.Value, ok bool, err error) {
	for _, col := range idx.Columns {
		if strings.HasPrefix(col, exprColumnPrefix) {
			if e.exprEval == nil {
				return nil, false, nil
			}
			v, eerr := e.exprEval.Eval(strings.TrimPrefix(col, exprColumnPrefix), def.Columns, values)
			if eerr != nil {
				return nil, false, eerr
			}
			keyVals = append(keyVals, v)
			continue
		}
		ci := columnIndex(def.Columns, col)
		if ci < 0 {
			return nil, false, dberrors.New(dberrors.CodeInternal, "index references unknown column: "+col)
		}
		keyVals = append(keyVals, values[ci])
	}
	return keyVals, true, nil
}

func (e *Engine) maintainIndexesOnInsert(def *catalog.TableDef, values []record.Value, rowid uint64) error {
	if !e.indexMaintenanceEnabled() {
		return nil
	}
	indexes, err := e.cat.ListIndexesForTable(def.Name)
	if err != nil {
		return err
	}
	for i := range indexes {
		idx := &indexes[i]
		include, ierr := e.shouldIncludeInIndex(def, idx, values)
		if ierr != nil {
			return ierr
		}
		if !include {
			continue
		}
		if idx.Kind == catalog.IndexKindTrigram {
			if err := e.addTrigramEntries(idx, def, values, rowid); err != nil {
				return err
			}
			continue
		}
		keyVals, ok, kerr := e.indexKeyValues(def, idx, values)
		if kerr != nil {
			return kerr
		}
		if !ok {
			continue
		}
		if err := e.addBTreeIndexEntry(idx, keyVals, rowid); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) maintainIndexesOnDelete(def *catalog.TableDef, values []record.Value, rowid uint64) error {
	if !e.indexMaintenanceEnabled() {
		return nil
	}
	indexes, err := e.cat.ListIndexesForTable(def.Name)
	if err != nil {
		return err
	}
	for i := range indexes {
		idx := &indexes[i]
		include, ierr := e.shouldIncludeInIndex(def, idx, values)
		if ierr != nil {
			return ierr
		}
		if !include {
			continue
		}
		if idx.Kind == catalog.IndexKindTrigram {
			e.removeTrigramEntries(idx, def, values, rowid)
			continue
		}
		keyVals, ok, kerr := e.indexKeyValues(def, idx, values)
		if kerr != nil {
			return kerr
		}
		if !ok {
			continue
		}
		if err := e.removeBTreeIndexEntry(idx, keyVals, rowid); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) maintainIndexesOnUpdate(def *catalog.TableDef, oldValues, newValues []record.Value, rowid uint64) error {
	if !e.indexMaintenanceEnabled() {
		return nil
	}
	indexes, err := e.cat.ListIndexesForTable(def.Name)
	if err != nil {
		return err
	}
	for i := range indexes {
		idx := &indexes[i]
		wasIn, werr := e.shouldIncludeInIndex(def, idx, oldValues)
		if werr != nil {
			return werr
		}
		isIn, ierr := e.shouldIncludeInIndex(def, idx, newValues)
		if ierr != nil {
			return ierr
		}

		if idx.Kind == catalog.IndexKindTrigram {
			if wasIn {
				e.removeTrigramEntries(idx, def, oldValues, rowid)
			}
			if isIn {
				if err := e.addTrigramEntries(idx, def, newValues, rowid); err != nil {
					return err
				}
			}
			continue
		}

		switch {
		case wasIn && isIn:
			oldKeys, ok1, _ := e.indexKeyValues(def, idx, oldValues)
			newKeys, ok2, _ := e.indexKeyValues(def, idx, newValues)
			if ok1 {
				if err := e.removeBTreeIndexEntry(idx, oldKeys, rowid); err != nil {
					return err
				}
			}
			if ok2 {
				if err := e.addBTreeIndexEntry(idx, newKeys, rowid); err != nil {
					return err
				}
			}
		case wasIn && !isIn:
			if keys, ok, _ := e.indexKeyValues(def, idx, oldValues); ok {
				if err := e.removeBTreeIndexEntry(idx, keys, rowid); err != nil {
					return err
				}
			}
		case !wasIn && isIn:
			if keys, ok, _ := e.indexKeyValues(def, idx, newValues); ok {
				if err := e.addBTreeIndexEntry(idx, keys, rowid); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Engine) addBTreeIndexEntry(idx *catalog.IndexDef, keyVals []record.Value, rowid uint64) error {
	tree := e.indexTree(idx.Name, idx)
	key := packIndexKey(keyVals...)
	existing, found, err := tree.Find(key)
	if err != nil {
		return err
	}
	if idx.Unique && found {
		return dberrors.New(dberrors.CodeSQL, fmt.Sprintf("Unique constraint failed: %s", idx.Name))
	}
	var newVal []byte
	if found {
		newVal, err = postingsAdd(existing, rowid)
		if err != nil {
			return err
		}
	} else {
		newVal = encodePostings([]uint64{rowid})
	}
	if err := tree.Insert(key, newVal); err != nil {
		return err
	}
	return e.persistIndexRootIfChanged(idx, tree)
}

func (e *Engine) removeBTreeIndexEntry(idx *catalog.IndexDef, keyVals []record.Value, rowid uint64) error {
	tree := e.indexTree(idx.Name, idx)
	key := packIndexKey(keyVals...)
	existing, found, err := tree.Find(key)
	if err != nil || !found {
		return err
	}
	newVal, empty, rerr := postingsRemove(existing, rowid)
	if rerr != nil {
		return rerr
	}
	if empty {
		if err := tree.Delete(key); err != nil {
			return err
		}
	} else if err := tree.Insert(key, newVal); err != nil {
		return err
	}
	return e.persistIndexRootIfChanged(idx, tree)
}

func (e *Engine) persistIndexRootIfChanged(idx *catalog.IndexDef, tree *btree.Tree) error {
	if tree.Root() == idx.RootPage {
		return nil
	}
	idx.RootPage = tree.Root()
	if err := e.cat.PutIndex(*idx); err != nil {
		return err
	}
	return e.persistCatalogRootIfChanged()
}

// CreateIndex builds a new index from a table's existing rows, per
// spec.md §4.7's buildIndexForColumn[s]/buildTrigramIndexForColumn:
// scan, emit sorted (key, value) pairs, bulk-load a fresh tree.
func (e *Engine) CreateIndex(table, name string, columns []string, unique bool, kind catalog.IndexKind, partial string) error {
	return e.withWriteTxn(func() error {
		def, found, err := e.cat.GetTable(table)
		if err != nil {
			return err
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such table: "+table)
		}

		idx := catalog.IndexDef{Name: name, Table: table, Kind: kind, Unique: unique, Columns: columns, Partial: partial}
		root, berr := e.buildIndexFromTable(def, &idx)
		if berr != nil {
			return berr
		}
		idx.RootPage = root
		if err := e.cat.CreateIndex(idx); err != nil {
			return err
		}
		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}

// buildIndexFromTable scans table's rows and bulk-constructs a fresh
// B+Tree (or, for a trigram index, flushes postings into one) for idx,
// returning the new root page.
func (e *Engine) buildIndexFromTable(def *catalog.TableDef, idx *catalog.IndexDef) (pageformat.PageID, error) {
	if idx.Kind == catalog.IndexKindTrigram {
		return e.buildTrigramIndex(def, idx)
	}

	type kv struct {
		key uint64
		ids []uint64
	}
	buckets := make(map[uint64][]uint64)

	tree := e.tableTree(def.Name, def)
	cur, err := tree.OpenCursor()
	if err != nil {
		return 0, err
	}
	for cur.Valid() {
		data, verr := cur.Value()
		if verr != nil {
			return 0, verr
		}
		values, derr := record.DecodeRow(e.pager, data)
		if derr != nil {
			return 0, derr
		}
		include, ierr := e.shouldIncludeInIndex(def, idx, values)
		if ierr != nil {
			return 0, ierr
		}
		if include {
			if keyVals, ok, kerr := e.indexKeyValues(def, idx, values); kerr != nil {
				return 0, kerr
			} else if ok {
				key := packIndexKey(keyVals...)
				buckets[key] = append(buckets[key], uint64(cur.Key()))
			}
		}
		cur.Next()
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}

	var entries []kv
	for key, ids := range buckets {
		if idx.Unique && len(ids) > 1 {
			return 0, dberrors.New(dberrors.CodeSQL, fmt.Sprintf("Unique constraint failed: %s", idx.Name))
		}
		entries = append(entries, kv{key: key, ids: ids})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	sorted := make([]struct {
		Key   btree.Key
		Value []byte
	}, len(entries))
	for i, en := range entries {
		sorted[i] = struct {
			Key   btree.Key
			Value []byte
		}{Key: en.key, Value: encodePostings(en.ids)}
	}
	return btree.BuildFromSorted(e.pager, sorted)
}

func (e *Engine) buildTrigramIndex(def *catalog.TableDef, idx *catalog.IndexDef) (pageformat.PageID, error) {
	root, err := btree.NewEmpty(e.pager)
	if err != nil {
		return 0, err
	}
	tree := root

	cur, err := e.tableTree(def.Name, def).OpenCursor()
	if err != nil {
		return 0, err
	}
	for cur.Valid() {
		data, verr := cur.Value()
		if verr != nil {
			return 0, verr
		}
		values, derr := record.DecodeRow(e.pager, data)
		if derr != nil {
			return 0, derr
		}
		include, ierr := e.shouldIncludeInIndex(def, idx, values)
		if ierr != nil {
			return 0, ierr
		}
		if include {
			if err := e.addTrigramEntries(idx, def, values, uint64(cur.Key())); err != nil {
				return 0, err
			}
		}
		cur.Next()
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	if err := e.cat.FlushTrigramDeltas(idx.Name, tree); err != nil {
		return 0, err
	}
	return tree.Root(), nil
}

// DropIndex removes an index's catalog entry and frees its pages.
func (e *Engine) DropIndex(name string) error {
	return e.withWriteTxn(func() error {
		idx, found, err := e.cat.GetIndex(name)
		if err != nil {
			return err
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such index: "+name)
		}
		if berr := btree.FreeTree(e.pager, idx.RootPage); berr != nil {
			return berr
		}
		e.invalidateIndexTree(name)
		if derr := e.cat.DropIndex(name); derr != nil {
			return derr
		}
		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}

// RebuildIndex discards an index's current pages and rebuilds it from
// scratch against the table's present rows (spec.md §4.7's rebuildIndex).
func (e *Engine) RebuildIndex(name string) error {
	return e.withWriteTxn(func() error {
		idx, found, err := e.cat.GetIndex(name)
		if err != nil {
			return err
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such index: "+name)
		}
		def, found, derr := e.cat.GetTable(idx.Table)
		if derr != nil {
			return derr
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such table: "+idx.Table)
		}

		oldRoot := idx.RootPage
		newRoot, berr := e.buildIndexFromTable(def, idx)
		if berr != nil {
			return berr
		}
		if ferr := btree.FreeTree(e.pager, oldRoot); ferr != nil {
			return ferr
		}
		idx.RootPage = newRoot
		e.invalidateIndexTree(name)
		if perr := e.cat.PutIndex(*idx); perr != nil {
			return perr
		}
		return e.persistCatalogRootIfChanged()
	})
}

// IndexSeek looks up every rowid whose column value matches value,
// via the single-column (non-expression, non-partial) index on column if
// one exists. Hash collisions in packIndexKey are filtered out by
// re-reading each candidate row and comparing its actual column value.
func (e *Engine) IndexSeek(table, column string, value record.Value) ([]uint64, error) {
	def, found, err := e.cat.GetTable(table)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dberrors.New(dberrors.CodeSQL, "no such table: "+table)
	}
	indexes, err := e.cat.ListIndexesForTable(table)
	if err != nil {
		return nil, err
	}
	var idx *catalog.IndexDef
	for i := range indexes {
		if indexes[i].Kind == catalog.IndexKindBTree && len(indexes[i].Columns) == 1 && indexes[i].Columns[0] == column && indexes[i].Partial == "" {
			idx = &indexes[i]
			break
		}
	}
	if idx == nil {
		return nil, dberrors.New(dberrors.CodeSQL, fmt.Sprintf("no index on %s.%s", table, column))
	}

	tree := e.indexTree(idx.Name, idx)
	data, found, err := tree.Find(packIndexKey(value))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	candidates, err := decodePostings(data)
	if err != nil {
		return nil, err
	}

	ci := columnIndex(def.Columns, column)
	var out []uint64
	for _, rid := range candidates {
		values, rerr := e.ReadRowAt(table, rid)
		if rerr != nil {
			return nil, rerr
		}
		if ci >= 0 && ci < len(values) && valuesEqual(values[ci], value) {
			out = append(out, rid)
		}
	}
	return out, nil
}
