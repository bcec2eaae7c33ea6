package storage

import (
	"bytes"
	"fmt"

	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

func findPKColumn(cols []catalog.ColumnDef) int {
	for i, c := range cols {
		if c.PK {
			return i
		}
	}
	return -1
}

func valuesEqual(a, b record.Value) bool {
	return bytes.Equal(canonicalBytes(a), canonicalBytes(b))
}

// InsertRow implements spec.md §4.7's insertRow: rowid assignment
// (explicit INTEGER PK or auto-increment from nextRowId, backfilled into
// the PK column), uniqueness check, and secondary/trigram index
// maintenance.
func (e *Engine) InsertRow(table string, values []record.Value) (rowid uint64, err error) {
	err = e.withWriteTxn(func() error {
		def, found, gerr := e.cat.GetTable(table)
		if gerr != nil {
			return gerr
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such table: "+table)
		}
		if len(values) != len(def.Columns) {
			return dberrors.New(dberrors.CodeSQL, fmt.Sprintf("table %s expects %d columns, got %d", table, len(def.Columns), len(values)))
		}

		pkIdx := findPKColumn(def.Columns)
		var rid uint64
		if pkIdx >= 0 && def.Columns[pkIdx].Type == record.Int64 && values[pkIdx].Kind == record.Int64 {
			rid = uint64(values[pkIdx].I64)
		} else {
			rid = def.NextRowID
			if pkIdx >= 0 {
				values[pkIdx] = record.NewInt64(int64(rid))
			}
		}

		tree := e.tableTree(table, def)
		if _, exists, ferr := tree.Find(rid); ferr != nil {
			return ferr
		} else if exists {
			return dberrors.New(dberrors.CodeSQL, fmt.Sprintf("Unique constraint failed: %s.rowid", table))
		}

		data, eerr := record.EncodeRow(e.pager, values)
		if eerr != nil {
			return eerr
		}
		if ierr := tree.Insert(rid, data); ierr != nil {
			return ierr
		}

		if merr := e.maintainIndexesOnInsert(def, values, rid); merr != nil {
			return merr
		}

		changed := false
		if rid+1 > def.NextRowID {
			def.NextRowID = rid + 1
			changed = true
		}
		if tree.Root() != def.RootPage {
			def.RootPage = tree.Root()
			changed = true
		}
		if changed {
			if perr := e.cat.PutTable(*def); perr != nil {
				return perr
			}
			if perr := e.persistCatalogRootIfChanged(); perr != nil {
				return perr
			}
		}

		rowid = rid
		return nil
	})
	return rowid, err
}

// ReadRowAt returns one row's decoded values by rowid.
func (e *Engine) ReadRowAt(table string, rowid uint64) ([]record.Value, error) {
	def, found, err := e.cat.GetTable(table)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dberrors.New(dberrors.CodeSQL, "no such table: "+table)
	}
	tree := e.tableTree(table, def)
	data, found, err := tree.Find(rowid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dberrors.New(dberrors.CodeSQL, fmt.Sprintf("no such row: %s.%d", table, rowid))
	}
	return record.DecodeRow(e.pager, data)
}

// UpdateRow implements spec.md §4.7's updateRow. A PK-column change is a
// delete-then-insert at the new rowid under a uniqueness check;
// otherwise every index is kept correct via its old/new inclusion
// state (both included → re-key, only-old → remove, only-new → insert).
func (e *Engine) UpdateRow(table string, rowid uint64, values []record.Value) error {
	return e.withWriteTxn(func() error {
		def, found, gerr := e.cat.GetTable(table)
		if gerr != nil {
			return gerr
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such table: "+table)
		}
		if len(values) != len(def.Columns) {
			return dberrors.New(dberrors.CodeSQL, fmt.Sprintf("table %s expects %d columns, got %d", table, len(def.Columns), len(values)))
		}

		tree := e.tableTree(table, def)
		oldData, found, ferr := tree.Find(rowid)
		if ferr != nil {
			return ferr
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, fmt.Sprintf("no such row: %s.%d", table, rowid))
		}
		oldValues, derr := record.DecodeRow(e.pager, oldData)
		if derr != nil {
			return derr
		}

		pkIdx := findPKColumn(def.Columns)
		newRowid := rowid
		if pkIdx >= 0 && values[pkIdx].Kind == record.Int64 {
			newRowid = uint64(values[pkIdx].I64)
		}

		if newRowid != rowid {
			if _, exists, xerr := tree.Find(newRowid); xerr != nil {
				return xerr
			} else if exists {
				return dberrors.New(dberrors.CodeSQL, fmt.Sprintf("Unique constraint failed: %s.rowid", table))
			}
			if merr := e.maintainIndexesOnDelete(def, oldValues, rowid); merr != nil {
				return merr
			}
			if derr := tree.Delete(rowid); derr != nil {
				return derr
			}
			data, eerr := record.EncodeRow(e.pager, values)
			if eerr != nil {
				return eerr
			}
			if ierr := tree.Insert(newRowid, data); ierr != nil {
				return ierr
			}
			if merr := e.maintainIndexesOnInsert(def, values, newRowid); merr != nil {
				return merr
			}
		} else {
			if merr := e.maintainIndexesOnUpdate(def, oldValues, values, rowid); merr != nil {
				return merr
			}
			data, eerr := record.EncodeRow(e.pager, values)
			if eerr != nil {
				return eerr
			}
			if ierr := tree.Insert(rowid, data); ierr != nil {
				return ierr
			}
		}

		if tree.Root() != def.RootPage {
			def.RootPage = tree.Root()
			if perr := e.cat.PutTable(*def); perr != nil {
				return perr
			}
			if perr := e.persistCatalogRootIfChanged(); perr != nil {
				return perr
			}
		}
		return nil
	})
}

// DeleteRow implements spec.md §4.7's deleteRow: index entries are
// removed before the row itself.
func (e *Engine) DeleteRow(table string, rowid uint64) error {
	return e.withWriteTxn(func() error {
		def, found, gerr := e.cat.GetTable(table)
		if gerr != nil {
			return gerr
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such table: "+table)
		}

		tree := e.tableTree(table, def)
		data, found, ferr := tree.Find(rowid)
		if ferr != nil {
			return ferr
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, fmt.Sprintf("no such row: %s.%d", table, rowid))
		}
		values, derr := record.DecodeRow(e.pager, data)
		if derr != nil {
			return derr
		}

		if merr := e.maintainIndexesOnDelete(def, values, rowid); merr != nil {
			return merr
		}
		if err := tree.Delete(rowid); err != nil {
			return err
		}

		if tree.Root() != def.RootPage {
			def.RootPage = tree.Root()
			if perr := e.cat.PutTable(*def); perr != nil {
				return perr
			}
			if perr := e.persistCatalogRootIfChanged(); perr != nil {
				return perr
			}
		}
		return nil
	})
}

// RowCursor iterates a table's rows in rowid order.
type RowCursor struct {
	cur   *btree.Cursor
	store btree.PageStore
}

func (e *Engine) ScanTable(table string) (*RowCursor, error) {
	def, found, err := e.cat.GetTable(table)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dberrors.New(dberrors.CodeSQL, "no such table: "+table)
	}
	tree := e.tableTree(table, def)
	cur, err := tree.OpenCursor()
	if err != nil {
		return nil, err
	}
	return &RowCursor{cur: cur, store: e.pager}, nil
}

func (c *RowCursor) Valid() bool   { return c.cur.Valid() }
func (c *RowCursor) RowID() uint64 { return uint64(c.cur.Key()) }
func (c *RowCursor) Values() ([]record.Value, error) {
	data, err := c.cur.Value()
	if err != nil {
		return nil, err
	}
	return record.DecodeRow(c.store, data)
}
func (c *RowCursor) Next() bool { return c.cur.Next() }
func (c *RowCursor) Err() error { return c.cur.Err() }
