package storage

import (
	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
)

// DescribeTable returns one table's catalog definition, for the CLI's
// `describe` and `bulk-load` commands.
func (e *Engine) DescribeTable(name string) (*catalog.TableDef, bool, error) {
	return e.cat.GetTable(name)
}

// ListTables returns every table's catalog definition, for the CLI's
// `list-tables` command.
func (e *Engine) ListTables() ([]catalog.TableDef, error) {
	return e.cat.ListTables()
}

// ListIndexesForTable returns a table's indexes, for the CLI's `describe`.
func (e *Engine) ListIndexesForTable(table string) ([]catalog.IndexDef, error) {
	return e.cat.ListIndexesForTable(table)
}

// CreateTable implements spec.md §4.7's createTable: a fresh empty row
// tree plus a catalog entry, schema cookie bumped per invariant 2.
func (e *Engine) CreateTable(name string, cols []catalog.ColumnDef) error {
	return e.withWriteTxn(func() error {
		if _, err := e.cat.CreateTable(name, cols); err != nil {
			return err
		}
		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}

// DropTable frees a table's row tree and every one of its indexes, then
// removes its catalog entry.
func (e *Engine) DropTable(name string) error {
	return e.withWriteTxn(func() error {
		def, found, err := e.cat.GetTable(name)
		if err != nil {
			return err
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such table: "+name)
		}
		indexes, ierr := e.cat.ListIndexesForTable(name)
		if ierr != nil {
			return ierr
		}
		for i := range indexes {
			if err := btree.FreeTree(e.pager, indexes[i].RootPage); err != nil {
				return err
			}
			e.invalidateIndexTree(indexes[i].Name)
			if err := e.cat.DropIndex(indexes[i].Name); err != nil {
				return err
			}
		}
		if err := btree.FreeTree(e.pager, def.RootPage); err != nil {
			return err
		}
		e.invalidateTableTree(name)
		if err := e.cat.DropTable(name); err != nil {
			return err
		}
		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}

// CreateView, DropView, and RenameView persist opaque SQL text; the
// storage layer never parses or evaluates a view's query, matching how
// it treats TriggerDef.Body and index predicate/expression strings.
func (e *Engine) CreateView(name, query string) error {
	return e.withWriteTxn(func() error {
		if err := e.cat.CreateView(name, query); err != nil {
			return err
		}
		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}

func (e *Engine) DropView(name string) error {
	return e.withWriteTxn(func() error {
		if err := e.cat.DropView(name); err != nil {
			return err
		}
		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}

func (e *Engine) RenameView(oldName, newName string) error {
	return e.withWriteTxn(func() error {
		if err := e.cat.RenameView(oldName, newName); err != nil {
			return err
		}
		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}
