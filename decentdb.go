// Package decentdb is the public entry point for the embedded relational
// storage core: Db, Options, and the operations external collaborators
// (a SQL layer, the CLI, language bindings) call against an open database.
// Everything under internal/ is composed here; nothing below this file is
// importable outside this module.
package decentdb

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/pager"
	"github.com/sphildreth/decentdb-sub007/internal/record"
	"github.com/sphildreth/decentdb-sub007/internal/storage"
	"github.com/sphildreth/decentdb-sub007/internal/vfs"
	"github.com/sphildreth/decentdb-sub007/internal/wal"
	"github.com/sphildreth/decentdb-sub007/logging"
)

// WalSyncMode selects the WAL's fsync discipline (spec.md §6.2). Off is
// test-only: it trades durability for throughput and must never be the
// default for a production Options value.
type WalSyncMode int

const (
	WalSyncFull WalSyncMode = iota
	WalSyncNormal
	WalSyncOff
)

// BulkLoadDurability trades per-row fsync discipline for throughput
// during a bulk-load session (spec.md §6.2).
type BulkLoadDurability int

const (
	BulkLoadDurabilityFull BulkLoadDurability = iota
	BulkLoadDurabilityDeferred
	BulkLoadDurabilityNone
)

// BulkLoadOptions configures the CLI's bulk-load command (cmd/decentdb).
type BulkLoadOptions struct {
	BatchSize          int                `yaml:"batchSize"`
	SyncInterval       int                `yaml:"syncInterval"`
	DisableIndexes     bool               `yaml:"disableIndexes"`
	Durability         BulkLoadDurability `yaml:"durability"`
	CheckpointOnComplete bool             `yaml:"checkpointOnComplete"`
}

// Options configures an open Db, following the teacher's
// Config/DefaultConfig pattern (btree/btree.go) generalized to spec.md
// §6.2's full surface, with an optional gopkg.in/yaml.v3 override file.
type Options struct {
	CachePages int `yaml:"cachePages"`
	PageSize   uint32 `yaml:"pageSize"` // only honored at DB creation

	CheckpointEveryBytes     uint64 `yaml:"checkpointEveryBytes"`
	CheckpointEveryMs        int64  `yaml:"checkpointEveryMs"`
	CheckpointMemoryThreshold uint64 `yaml:"checkpointMemoryThreshold"`

	ReaderWarnMs           int64  `yaml:"readerWarnMs"`
	ReaderTimeoutMs        int64  `yaml:"readerTimeoutMs"`
	MaxWalBytesPerReader   uint64 `yaml:"maxWalBytesPerReader"`
	ReaderCheckIntervalMs  int64  `yaml:"readerCheckIntervalMs"`

	WalSyncMode WalSyncMode      `yaml:"walSyncMode"`
	BulkLoad    BulkLoadOptions  `yaml:"bulkLoad"`

	Logger logging.Logger `yaml:"-"`
}

// DefaultOptions mirrors the teacher's DefaultConfig(dataDir) in spirit:
// sensible defaults a caller rarely needs to override, matching spec.md
// §6.2's documented default values.
func DefaultOptions() Options {
	return Options{
		CachePages:                1024,
		PageSize:                  pageformat.DefaultPageSize,
		CheckpointEveryBytes:      64 * 1024 * 1024,
		CheckpointEveryMs:         5000,
		CheckpointMemoryThreshold: 16 * 1024 * 1024,
		ReaderWarnMs:              2000,
		ReaderTimeoutMs:           10000,
		MaxWalBytesPerReader:      256 * 1024 * 1024,
		ReaderCheckIntervalMs:     1000,
		WalSyncMode:               WalSyncFull,
		BulkLoad: BulkLoadOptions{
			BatchSize:            1000,
			SyncInterval:         10,
			DisableIndexes:       false,
			Durability:           BulkLoadDurabilityFull,
			CheckpointOnComplete: true,
		},
		Logger: logging.NoOp(),
	}
}

// LoadOptionsFile reads a yaml Options override file, layered on top of
// DefaultOptions.
func LoadOptionsFile(path string) (Options, error) {
	opts := DefaultOptions()
	buf, err := os.ReadFile(path)
	if err != nil {
		return opts, dberrors.Wrap(dberrors.CodeIO, "read options file "+path, err)
	}
	if err := yaml.Unmarshal(buf, &opts); err != nil {
		return opts, dberrors.Wrap(dberrors.CodeCorruption, "parse options file "+path, err)
	}
	return opts, nil
}

// SaveOptionsFile dumps opts as yaml.
func SaveOptionsFile(path string, opts Options) error {
	buf, err := yaml.Marshal(opts)
	if err != nil {
		return dberrors.Wrap(dberrors.CodeInternal, "marshal options", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "write options file "+path, err)
	}
	return nil
}

// Db is one open database: its Pager, WAL, and storage Engine, plus the
// Options it was opened with.
type Db struct {
	opts   Options
	vfs    vfs.Vfs
	pager  *pager.Pager
	wal    *wal.Wal
	engine *storage.Engine
}

// OpenDb implements spec.md §6.2's openDb(path, options) → Db: opens (or
// creates) the database file and its WAL, running WAL recovery if needed.
func OpenDb(path string, opts Options) (*Db, error) {
	return OpenDbWithVfs(vfs.NewOS(), path, opts)
}

// OpenDbWithVfs is OpenDb with an explicit Vfs, letting external tooling
// wrap a *vfs.FaultyVfs around the real OS Vfs to drive the failpoint
// protocol of spec.md §6.4.
func OpenDbWithVfs(v vfs.Vfs, path string, opts Options) (*Db, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NoOp()
	}
	if opts.PageSize == 0 {
		opts.PageSize = pageformat.DefaultPageSize
	}

	existed, err := v.Exists(path)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeIO, "stat db file", err)
	}

	p, err := pager.Open(v, path, opts.PageSize, pager.Options{
		CachePages: opts.CachePages,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(v, path+".wal", opts.PageSize, wal.Options{
		CheckpointEveryBytes:      opts.CheckpointEveryBytes,
		CheckpointEveryMs:         opts.CheckpointEveryMs,
		CheckpointMemoryThreshold: opts.CheckpointMemoryThreshold,
		CheckpointCheckInterval:   1,
		ReaderWarnMs:              opts.ReaderWarnMs,
		ReaderTimeoutMs:           opts.ReaderTimeoutMs,
		MaxWalBytesPerReader:      opts.MaxWalBytesPerReader,
		Logger:                    opts.Logger,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	w.SetFsyncOnCommit(opts.WalSyncMode != WalSyncOff)

	var engine *storage.Engine
	if existed {
		engine = storage.Open(p, w)
	} else {
		engine, err = storage.Create(p, w)
		if err != nil {
			w.Close()
			p.Close()
			return nil, err
		}
	}

	return &Db{opts: opts, vfs: v, pager: p, wal: w, engine: engine}, nil
}

// CloseDb implements spec.md §6.2's closeDb(db).
func CloseDb(db *Db) error {
	werr := db.wal.Close()
	perr := db.pager.Close()
	if werr != nil {
		return werr
	}
	return perr
}

// Transactions.

func (db *Db) BeginTransaction() error    { return db.engine.BeginTransaction() }
func (db *Db) CommitTransaction() error   { return db.engine.CommitTransaction() }
func (db *Db) RollbackTransaction() error { return db.engine.RollbackTransaction() }

// Catalog mutations.

func (db *Db) CreateTable(name string, cols []catalog.ColumnDef) error {
	return db.engine.CreateTable(name, cols)
}
func (db *Db) DropTable(name string) error { return db.engine.DropTable(name) }
func (db *Db) CreateIndex(table, name string, columns []string, unique bool, kind catalog.IndexKind, partial string) error {
	return db.engine.CreateIndex(table, name, columns, unique, kind, partial)
}
func (db *Db) DropIndex(name string) error { return db.engine.DropIndex(name) }
func (db *Db) AlterTable(table string, actions []storage.AlterAction) error {
	return db.engine.AlterTable(table, actions)
}
func (db *Db) DescribeTable(name string) (*catalog.TableDef, bool, error) {
	return db.engine.DescribeTable(name)
}
func (db *Db) ListTables() ([]catalog.TableDef, error) { return db.engine.ListTables() }
func (db *Db) ListIndexesForTable(table string) ([]catalog.IndexDef, error) {
	return db.engine.ListIndexesForTable(table)
}
func (db *Db) CreateView(name, query string) error       { return db.engine.CreateView(name, query) }
func (db *Db) DropView(name string) error                { return db.engine.DropView(name) }
func (db *Db) RenameView(oldName, newName string) error  { return db.engine.RenameView(oldName, newName) }

// Row operations.

func (db *Db) InsertRow(table string, values []record.Value) (uint64, error) {
	return db.engine.InsertRow(table, values)
}
func (db *Db) UpdateRow(table string, rowid uint64, values []record.Value) error {
	return db.engine.UpdateRow(table, rowid, values)
}
func (db *Db) DeleteRow(table string, rowid uint64) error {
	return db.engine.DeleteRow(table, rowid)
}
func (db *Db) ReadRowAt(table string, rowid uint64) ([]record.Value, error) {
	return db.engine.ReadRowAt(table, rowid)
}
func (db *Db) ScanTable(table string) (*storage.RowCursor, error) {
	return db.engine.ScanTable(table)
}
func (db *Db) IndexSeek(table, column string, value record.Value) ([]uint64, error) {
	return db.engine.IndexSeek(table, column, value)
}

// Trigram search.

func (db *Db) GetTrigramPostingsWithDeltasUpTo(index string, trigram uint32, limit int) ([]uint64, bool, error) {
	return db.engine.GetTrigramPostingsWithDeltasUpTo(index, trigram, limit)
}

// Operational.

// Checkpoint implements spec.md §6.2's checkpoint(db): flushes trigram
// deltas then runs the WAL checkpoint protocol against the pager.
func (db *Db) Checkpoint() error {
	if err := db.engine.FlushTrigramDeltas(); err != nil {
		return err
	}
	return db.wal.Checkpoint(db.pager)
}

func (db *Db) RebuildIndex(indexName string) error { return db.engine.RebuildIndex(indexName) }

// SetFsyncOnCommit backs BulkLoadOptions.Durability's None tier: a
// bulk-load session that opts out of durability disables the WAL's
// per-commit fsync for the load, then must re-enable it once done. Full
// and Deferred are both treated as fsync-every-commit, the safe
// conservative default this was already doing.
func (db *Db) SetFsyncOnCommit(enabled bool) { db.wal.SetFsyncOnCommit(enabled) }

// SetIndexMaintenanceEnabled backs BulkLoadOptions.DisableIndexes: a
// bulk-load session disables per-row index maintenance for throughput,
// then must RebuildIndex every index of the loaded table before turning
// it back on.
func (db *Db) SetIndexMaintenanceEnabled(enabled bool) { db.engine.SetIndexMaintenanceEnabled(enabled) }

// DbInfo is dbInfo(db)'s stats payload (spec.md §6.2), also what the
// CLI's `dbinfo` command prints (as JSON).
type DbInfo struct {
	FormatVersion     uint32       `yaml:"formatVersion"`
	PageSize          uint32       `yaml:"pageSize"`
	SchemaCookie      uint32       `yaml:"schemaCookie"`
	NumPages          uint32       `yaml:"numPages"`
	LastCheckpointLSN uint64       `yaml:"lastCheckpointLsn"`
	WalEnd            uint64       `yaml:"walEnd"`
	Pager             pager.Stats  `yaml:"pagerStats"`
}

func (db *Db) DbInfo() DbInfo {
	h := db.pager.Header()
	return DbInfo{
		FormatVersion:     h.FormatVersion,
		PageSize:          h.PageSize,
		SchemaCookie:      h.SchemaCookie,
		NumPages:          db.pager.NumPages(),
		LastCheckpointLSN: db.pager.LastCheckpointLSN(),
		WalEnd:            db.wal.WalEnd(),
		Pager:             db.pager.Stats(),
	}
}

// SetPredicateEvaluator and SetExpressionEvaluator wire in the external
// SQL layer's partial-index predicate and expression-index evaluators;
// the storage core has no expression evaluator of its own (spec.md §1
// non-goals exclude a query planner/optimizer from this module).
func (db *Db) SetPredicateEvaluator(p storage.PredicateEvaluator)   { db.engine.SetPredicateEvaluator(p) }
func (db *Db) SetExpressionEvaluator(x storage.ExpressionEvaluator) { db.engine.SetExpressionEvaluator(x) }
