// Package storage implements spec.md §4.7: row CRUD, secondary-index
// maintenance, index build/rebuild, and ALTER TABLE rewrites, layered on
// internal/btree, internal/record, and internal/catalog. New relative to
// the teacher, whose Put/Get/Delete are raw byte-string KV with no row,
// column, or index model at all — built against the teacher's top-level
// BTree struct shape (config + pager + wal + stats + closed flag) as the
// template for Engine, and against its WAL-wrapped write path for
// transaction boundaries.
package storage

import (
	"sync"

	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/pager"
	"github.com/sphildreth/decentdb-sub007/internal/wal"
)

// Engine is the row/catalog storage layer for one open database. It owns
// no file handles directly (the Pager/Wal do); it owns the policy of
// turning row and DDL operations into B+Tree and catalog calls inside a
// WAL write transaction.
type Engine struct {
	pager *pager.Pager
	wal   *wal.Wal

	mu      sync.Mutex
	cat     *catalog.Catalog
	txn     *wal.WriteTxn // non-nil while an explicit BEGIN...COMMIT is open
	tables  map[string]*btree.Tree
	indexes map[string]*btree.Tree

	predicateEval PredicateEvaluator
	exprEval      ExpressionEvaluator

	indexMaintenanceDisabled bool // set by bulk-load sessions (spec.md §6.2 bulkLoad.disableIndexes)
}

// SetIndexMaintenanceEnabled toggles whether InsertRow/UpdateRow/DeleteRow
// maintain secondary/trigram indexes as they go. A bulk-load session
// disables it for throughput, then must call RebuildIndex on every index
// of the loaded table before re-enabling it.
func (e *Engine) SetIndexMaintenanceEnabled(enabled bool) {
	e.mu.Lock()
	e.indexMaintenanceDisabled = !enabled
	e.mu.Unlock()
}

func (e *Engine) indexMaintenanceEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.indexMaintenanceDisabled
}

// Stats mirrors dbInfo's storage-facing counters (spec.md §6.2).
type Stats struct {
	Pager pager.Stats
}

// Create initializes a brand-new database's catalog (called once, right
// after the Pager/Wal have created a fresh file).
func Create(p *pager.Pager, w *wal.Wal) (*Engine, error) {
	cat, err := catalog.Create(p)
	if err != nil {
		return nil, err
	}
	if err := p.SetCatalogRoot(cat.Root()); err != nil {
		return nil, err
	}
	return newEngine(p, w, cat), nil
}

// Open wraps an existing database's catalog, read from the DB header's
// catalog root pointer.
func Open(p *pager.Pager, w *wal.Wal) *Engine {
	return newEngine(p, w, catalog.Open(p, p.CatalogRoot()))
}

func newEngine(p *pager.Pager, w *wal.Wal, cat *catalog.Catalog) *Engine {
	return &Engine{
		pager:   p,
		wal:     w,
		cat:     cat,
		tables:  make(map[string]*btree.Tree),
		indexes: make(map[string]*btree.Tree),
	}
}

func (e *Engine) Stats() Stats { return Stats{Pager: e.pager.Stats()} }

// BeginTransaction opens an explicit write transaction spanning multiple
// row/DDL operations until CommitTransaction or RollbackTransaction
// (spec.md §6.2). Only one writer may be active at a time; this blocks
// until the WAL's single-writer lock is free.
func (e *Engine) BeginTransaction() error {
	e.mu.Lock()
	if e.txn != nil {
		e.mu.Unlock()
		return dberrors.New(dberrors.CodeTransaction, "transaction already active")
	}
	e.mu.Unlock()

	txn := e.wal.BeginWrite(e.pager) // blocks until wal.lock is free

	e.mu.Lock()
	e.txn = txn
	e.mu.Unlock()
	e.pager.SetWalBackend(txn)
	return nil
}

// CommitTransaction flushes every page the explicit transaction dirtied
// and commits it durably.
func (e *Engine) CommitTransaction() error {
	e.mu.Lock()
	txn := e.txn
	e.mu.Unlock()
	if txn == nil {
		return dberrors.New(dberrors.CodeTransaction, "no active transaction")
	}

	e.pager.ForEachDirty(func(id pageformat.PageID, data []byte) { txn.WritePage(id, data) })
	_, err := txn.Commit()
	e.pager.SetWalBackend(nil)

	e.mu.Lock()
	e.txn = nil
	e.mu.Unlock()
	return err
}

// RollbackTransaction discards every page the explicit transaction
// dirtied and drops this Engine's in-memory tree caches, since their
// cached root pointers may reflect work that is being undone.
func (e *Engine) RollbackTransaction() error {
	e.mu.Lock()
	txn := e.txn
	e.mu.Unlock()
	if txn == nil {
		return dberrors.New(dberrors.CodeTransaction, "no active transaction")
	}

	txn.Rollback()
	e.pager.SetWalBackend(nil)

	e.mu.Lock()
	e.txn = nil
	e.cat = catalog.Open(e.pager, e.pager.CatalogRoot())
	e.tables = make(map[string]*btree.Tree)
	e.indexes = make(map[string]*btree.Tree)
	e.mu.Unlock()
	return nil
}

// withWriteTxn runs fn inside a write transaction: the caller's own one,
// if BeginTransaction is already open (autocommit is deferred to the
// caller's eventual CommitTransaction), otherwise a fresh implicit one
// that this call commits or rolls back on fn's return.
func (e *Engine) withWriteTxn(fn func() error) error {
	e.mu.Lock()
	implicit := e.txn == nil
	e.mu.Unlock()

	if !implicit {
		return fn()
	}

	txn := e.wal.BeginWrite(e.pager)
	e.pager.SetWalBackend(txn)

	err := fn()

	if err != nil {
		txn.Rollback()
		e.pager.SetWalBackend(nil)
		e.mu.Lock()
		e.cat = catalog.Open(e.pager, e.pager.CatalogRoot())
		e.tables = make(map[string]*btree.Tree)
		e.indexes = make(map[string]*btree.Tree)
		e.mu.Unlock()
		return err
	}

	e.pager.ForEachDirty(func(id pageformat.PageID, data []byte) { txn.WritePage(id, data) })
	_, err = txn.Commit()
	e.pager.SetWalBackend(nil)
	return err
}

// tableTree returns (creating if necessary) the cached *btree.Tree for
// table's row keyspace, rooted at whatever the catalog currently records.
func (e *Engine) tableTree(name string, def *catalog.TableDef) *btree.Tree {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tables[name]; ok {
		return t
	}
	t := btree.New(e.pager, def.RootPage)
	e.tables[name] = t
	return t
}

func (e *Engine) indexTree(name string, def *catalog.IndexDef) *btree.Tree {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.indexes[name]; ok {
		return t
	}
	t := btree.New(e.pager, def.RootPage)
	e.indexes[name] = t
	return t
}

func (e *Engine) invalidateIndexTree(name string) {
	e.mu.Lock()
	delete(e.indexes, name)
	e.mu.Unlock()
}

func (e *Engine) invalidateTableTree(name string) {
	e.mu.Lock()
	delete(e.tables, name)
	e.mu.Unlock()
}

// persistCatalogRootIfChanged rewrites the DB header's catalog root
// pointer if a preceding catalog mutation split the catalog tree.
func (e *Engine) persistCatalogRootIfChanged() error {
	root := e.cat.Root()
	if root != e.pager.CatalogRoot() {
		return e.pager.SetCatalogRoot(root)
	}
	return nil
}
