// Package pager implements the paged file I/O layer of spec.md §4.2: page
// allocation, the free-list, the sharded LRU page cache, and the rollback
// lock. Grounded on btree/pager.go's createPager/loadPager/GetPage/
// NewPage/Flush/Close structure in the teacher engine, generalized from
// the teacher's 16-byte fixed metadata page to the full 128-byte checksum
// header of spec.md §3.1, and from a single unsharded LRU to the sharded
// design of spec.md §4.2. The teacher's free-list allocation was a
// "// TODO: Implement free list allocation" stub in NewPage — this
// package completes it per spec.md §3.3/§4.2 rather than adapting an
// unfinished path.
package pager

import (
	"fmt"
	"sync"

	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/vfs"
	"github.com/sphildreth/decentdb-sub007/logging"
)

// WalBackend is the narrow, non-owning view of the WAL the Pager needs to
// flush dirty pages under cache pressure (spec.md §4.2, §9's note on
// resolving the Pager<->WAL cycle with a non-owning back-reference rather
// than a stored field like the teacher's Pager.wal *WAL in btree/pager.go).
type WalBackend interface {
	// FlushPage appends pid's current bytes as a Page frame to the active
	// writer's pending list (not yet committed) and returns the WAL file
	// offset of the frame's payload, recorded for cache bookkeeping.
	FlushPage(pid pageformat.PageID, data []byte) (lsn uint64, err error)
}

// flushedPageLookup is implemented by wal.WriteTxn to let ReadPage serve a
// page this transaction already evicted from cache and flushed early, but
// hasn't committed yet.
type flushedPageLookup interface {
	LookupFlushed(id pageformat.PageID) ([]byte, bool)
}

// Pager owns the DB file handle, the page cache, and the free-list.
type Pager struct {
	file     vfs.File
	vfsImpl  vfs.Vfs
	path     string
	log      logging.Logger

	mu     sync.Mutex // guards header + freelist + file growth
	header *pageformat.Header
	pageSize uint32
	numPages uint32 // total allocated pages, including header page

	cache *cache
	wal   WalBackend // set by SetWalBackend once a write transaction is active

	// rollbackLock: writers hold it in write mode during rollback cache
	// scrubbing; readers take it in read mode at critical page-fetch
	// moments (spec.md §4.2, §5).
	rollbackLock sync.RWMutex

	stats Stats
}

// Stats mirrors the teacher's inline pager.stats struct in btree/pager.go,
// exposed publicly for dbInfo (spec.md §6.2).
type Stats struct {
	PageReads    int64
	PageWrites   int64
	CacheHits    int64
	BytesWritten int64
}

// Options configures a new or reopened Pager.
type Options struct {
	CachePages int
	Logger     logging.Logger
}

// Open opens (or creates) the database file at path through the given
// Vfs, returning a ready Pager. If the file is empty, a fresh header is
// written with the given page size.
func Open(v vfs.Vfs, path string, pageSize uint32, opts Options) (*Pager, error) {
	if opts.CachePages <= 0 {
		opts.CachePages = 1024
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOp()
	}

	existed, err := v.Exists(path)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeIO, "stat db file", err)
	}

	f, err := v.Open(path, true)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeIO, "open db file", err)
	}

	p := &Pager{
		file:    f,
		vfsImpl: v,
		path:    path,
		log:     opts.Logger,
		cache:   newCache(opts.CachePages),
	}

	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, dberrors.Wrap(dberrors.CodeIO, "stat open db file", err)
	}

	if !existed || size == 0 {
		if !pageformat.IsValidPageSize(pageSize) {
			f.Close()
			return nil, dberrors.New(dberrors.CodeInternal, fmt.Sprintf("invalid page size %d", pageSize))
		}
		p.pageSize = pageSize
		p.header = pageformat.NewHeader(pageSize)
		p.numPages = 2 // header page + first catalog root page
		if err := p.writeHeaderLocked(); err != nil {
			f.Close()
			return nil, err
		}
		// Allocate page 2 as an empty catalog-root leaf; callers (the
		// catalog package) format it on first use.
		blank := make([]byte, pageSize)
		if _, err := f.WriteAt(blank, int64(pageSize)); err != nil {
			f.Close()
			return nil, dberrors.Wrap(dberrors.CodeIO, "write initial catalog page", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, dberrors.Wrap(dberrors.CodeIO, "sync new db file", err)
		}
		return p, nil
	}

	// Reopen: page size is unknown until we've read the header, but the
	// header lives in the first HeaderSize bytes of page 1 regardless of
	// page size, so read it at a fixed offset first.
	hdrBuf := make([]byte, pageformat.HeaderSize)
	if err := vfs.ReadFull(f, hdrBuf, 0); err != nil {
		f.Close()
		return nil, dberrors.Wrap(dberrors.CodeCorruption, "read db header", err)
	}
	hdr, err := pageformat.Decode(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.header = hdr
	p.pageSize = hdr.PageSize
	p.numPages = uint32(size / int64(hdr.PageSize))

	return p, nil
}

// PageSize returns the database's fixed page size.
func (p *Pager) PageSize() uint32 {
	return p.pageSize
}

// SetWalBackend attaches the active write transaction's WAL flush target.
// Called by the write-transaction layer at beginWrite and cleared at
// commit/rollback (spec.md §9's non-owning back-reference).
func (p *Pager) SetWalBackend(w WalBackend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wal = w
}

// Header returns a copy of the current in-memory header.
func (p *Pager) Header() pageformat.Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.header
}

// SchemaCookie returns the header's current schema cookie.
func (p *Pager) SchemaCookie() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.SchemaCookie
}

// BumpSchemaCookie increments the schema cookie and rewrites the header,
// per spec.md invariant 2 ("schemaCookie strictly increases on any
// catalog mutation").
func (p *Pager) BumpSchemaCookie() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.SchemaCookie++
	return p.writeHeaderLocked()
}

// CatalogRoot / SetCatalogRoot expose the header's catalog root pointer.
func (p *Pager) CatalogRoot() pageformat.PageID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pageformat.PageID(p.header.CatalogRoot)
}

func (p *Pager) SetCatalogRoot(id pageformat.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.CatalogRoot = uint32(id)
	return p.writeHeaderLocked()
}

// LastCheckpointLSN / SetLastCheckpointLSN expose the header's checkpoint
// watermark (spec.md invariant 3).
func (p *Pager) LastCheckpointLSN() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.LastCheckpointLSN
}

func (p *Pager) SetLastCheckpointLSN(lsn uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.LastCheckpointLSN = lsn
	return p.writeHeaderLocked()
}

// writeHeaderLocked rewrites and fsyncs the full header; callers must
// hold p.mu. Per spec.md §3.1: "Any mutation must rewrite the full header
// and fsync."
func (p *Pager) writeHeaderLocked() error {
	buf := p.header.Encode()
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "write db header", err)
	}
	if err := p.file.Sync(); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "fsync db header", err)
	}
	p.stats.PageWrites++
	p.stats.BytesWritten += int64(len(buf))
	return nil
}

// NumPages returns the current highest allocated page count.
func (p *Pager) NumPages() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPages
}

// ReadPage loads id from cache or disk as a fresh copy (callers own the
// returned slice and may mutate it freely; it is not aliased to the
// cache, matching spec.md §9's "callers borrow an immutable view under
// the shard lock or take a short-lived clone").
func (p *Pager) ReadPage(id pageformat.PageID) ([]byte, error) {
	p.rollbackLock.RLock()
	defer p.rollbackLock.RUnlock()

	if e := p.cache.get(id); e != nil {
		p.stats.CacheHits++
		out := make([]byte, len(e.data))
		copy(out, e.data)
		return out, nil
	}

	p.mu.Lock()
	wal := p.wal
	p.mu.Unlock()
	if lookup, ok := wal.(flushedPageLookup); ok {
		if data, found := lookup.LookupFlushed(id); found {
			p.stats.CacheHits++
			out := make([]byte, len(data))
			copy(out, data)
			return out, nil
		}
	}

	data, err := p.readPageFromFile(id)
	if err != nil {
		return nil, err
	}

	p.cache.put(id, data, p.evictFlush)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (p *Pager) readPageFromFile(id pageformat.PageID) ([]byte, error) {
	buf := make([]byte, p.pageSize)
	off := int64(id-1) * int64(p.pageSize)
	if err := vfs.ReadFull(p.file, buf, off); err != nil {
		return nil, dberrors.Wrap(dberrors.CodeIO, fmt.Sprintf("read page %d", id), err)
	}
	p.stats.PageReads++
	return buf, nil
}

// WritePage stages new contents for id in cache and marks it dirty; it
// never writes the file itself. A dirty page reaches disk through the
// WAL (at commit, or early on eviction) and later through checkpoint.
func (p *Pager) WritePage(id pageformat.PageID, data []byte) error {
	if uint32(len(data)) != p.pageSize {
		return dberrors.New(dberrors.CodeInternal, fmt.Sprintf("WritePage: page %d has wrong size %d", id, len(data)))
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	p.cache.put(id, cp, p.evictFlush)
	p.cache.markDirty(id, 0)
	return nil
}

// evictFlush is the cache's eviction hook: when every LRU candidate is
// dirty, flush the victim through the active WAL backend rather than
// losing an uncommitted write (spec.md §4.2).
func (p *Pager) evictFlush(victim *cacheEntry) bool {
	p.mu.Lock()
	wal := p.wal
	p.mu.Unlock()
	if wal == nil {
		return false
	}
	lsn, err := wal.FlushPage(victim.id, victim.data)
	if err != nil {
		p.log.Warnw("pager: flush-through-WAL failed during eviction", "page", victim.id, "error", err)
		return false
	}
	victim.walLSN = lsn
	return true
}

// AllocatePage pops a page id from the free-list, or grows the file by
// one page if the free-list is empty, per spec.md §3.3/§4.2.
func (p *Pager) AllocatePage() (pageformat.PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.header.FreelistHead != 0 {
		return p.popFreelistLocked()
	}

	id := pageformat.PageID(p.numPages + 1)
	p.numPages++
	blank := make([]byte, p.pageSize)
	p.cache.put(id, blank, p.evictFlush)
	p.cache.markDirty(id, 0)
	return id, nil
}

// popFreelistLocked pops the head entry of the current freelist page,
// decrementing its count and advancing freelistHead if that page empties
// (spec.md §3.3). Caller must hold p.mu.
func (p *Pager) popFreelistLocked() (pageformat.PageID, error) {
	headID := pageformat.PageID(p.header.FreelistHead)
	buf, err := p.pageBytesLocked(headID)
	if err != nil {
		return 0, err
	}

	count := codec.Uint32LE(buf[pageformat.FreelistOffCount:])
	if count == 0 {
		// The head page is itself empty and has no next; this should
		// only happen if FreelistHead was left dangling.
		return 0, dberrors.New(dberrors.CodeCorruption, "freelist head page has zero count")
	}

	lastOff := pageformat.FreelistOffEntries + int(count-1)*4
	popped := pageformat.PageID(codec.Uint32LE(buf[lastOff:]))
	count--
	codec.PutUint32LE(buf[pageformat.FreelistOffCount:], count)

	if count == 0 {
		next := codec.Uint32LE(buf[pageformat.FreelistOffNext:])
		p.header.FreelistHead = next
		p.header.FreelistCount--
		p.cache.invalidate(headID)
		if next != 0 {
			// headID is now a bare, structure-free page; recycle it onto
			// the new head instead of leaking it.
			if err := p.freePageLocked(headID); err != nil {
				return 0, err
			}
			return popped, nil
		}
		if err := p.writeHeaderLocked(); err != nil {
			return 0, err
		}
		return popped, nil
	}

	p.header.FreelistCount--
	if err := p.writeHeaderLocked(); err != nil {
		return 0, err
	}

	p.cache.put(headID, buf, p.evictFlush)
	p.cache.markDirty(headID, 0)

	return popped, nil
}

// FreePage pushes id onto the head of the free-list, allocating a new
// free-list page if the current head is full (spec.md §3.3).
func (p *Pager) FreePage(id pageformat.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freePageLocked(id)
}

// freePageLocked is FreePage's lock-free core, reusable by
// popFreelistLocked (already holding p.mu) to reclaim a freelist page that
// just emptied out.
func (p *Pager) freePageLocked(id pageformat.PageID) error {
	capacity := pageformat.FreelistCapacity(p.pageSize)

	if p.header.FreelistHead == 0 {
		return p.pushNewFreelistPageLocked(id, 0)
	}

	headID := pageformat.PageID(p.header.FreelistHead)
	buf, err := p.pageBytesLocked(headID)
	if err != nil {
		return err
	}
	count := codec.Uint32LE(buf[pageformat.FreelistOffCount:])

	if int(count) >= capacity {
		return p.pushNewFreelistPageLocked(id, headID)
	}

	off := pageformat.FreelistOffEntries + int(count)*4
	codec.PutUint32LE(buf[off:], uint32(id))
	count++
	codec.PutUint32LE(buf[pageformat.FreelistOffCount:], count)

	p.cache.put(headID, buf, p.evictFlush)
	p.cache.markDirty(headID, 0)
	p.header.FreelistCount++
	p.cache.invalidate(id) // id is now a free page, not a live structure page
	return p.writeHeaderLocked()
}

// pageBytesLocked fetches id's bytes from cache-or-file; caller holds p.mu.
func (p *Pager) pageBytesLocked(id pageformat.PageID) ([]byte, error) {
	if e := p.cache.get(id); e != nil {
		out := make([]byte, len(e.data))
		copy(out, e.data)
		return out, nil
	}
	return p.readPageFromFile(id)
}

// pushNewFreelistPageLocked allocates a brand-new freelist page, chains
// it to next (0 meaning "this becomes the new head with no next"),
// and records id as its sole entry.
func (p *Pager) pushNewFreelistPageLocked(id pageformat.PageID, next pageformat.PageID) error {
	newID := pageformat.PageID(p.numPages + 1)
	p.numPages++

	buf := make([]byte, p.pageSize)
	codec.PutUint32LE(buf[pageformat.FreelistOffNext:], uint32(next))
	codec.PutUint32LE(buf[pageformat.FreelistOffCount:], 1)
	codec.PutUint32LE(buf[pageformat.FreelistOffEntries:], uint32(id))

	p.cache.put(newID, buf, p.evictFlush)
	p.cache.markDirty(newID, 0)
	p.cache.invalidate(id)

	p.header.FreelistHead = uint32(newID)
	p.header.FreelistCount++
	return p.writeHeaderLocked()
}

// InvalidateAfterCheckpoint drops id from cache after checkpoint has
// written its authoritative image into the main file, forcing the next
// read to reload (spec.md §4.2).
func (p *Pager) InvalidateAfterCheckpoint(id pageformat.PageID) {
	p.cache.invalidate(id)
}

// ClearDirty marks id clean without invalidating, used when a commit's
// pages have been durably placed in the WAL and the cache copy remains
// valid for subsequent reads before the next checkpoint.
func (p *Pager) ClearDirty(id pageformat.PageID) {
	p.cache.clearDirty(id)
}

// WriteRawAt writes raw bytes directly to the file at a page-aligned
// offset, bypassing the cache. Used by checkpoint to place WAL-resident
// page images into the main file.
func (p *Pager) WriteRawAt(id pageformat.PageID, data []byte) error {
	off := int64(id-1) * int64(p.pageSize)
	if _, err := p.file.WriteAt(data, off); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, fmt.Sprintf("write page %d", id), err)
	}
	p.stats.PageWrites++
	p.stats.BytesWritten += int64(len(data))
	return nil
}

// Fsync fsyncs the main DB file (used by checkpoint phase 4).
func (p *Pager) Fsync() error {
	if err := p.file.Sync(); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "fsync db file", err)
	}
	return nil
}

// ForEachDirty visits every currently-dirty cached page.
func (p *Pager) ForEachDirty(fn func(id pageformat.PageID, data []byte)) {
	p.cache.forEachDirty(func(e *cacheEntry) {
		fn(e.id, e.data)
	})
}

// RollbackLock exposes the rollback RW-lock for the transaction layer
// (spec.md §4.2, §5): writers take it in write mode during rollback cache
// scrubbing, readers may take it in read mode at critical page-fetch
// moments.
func (p *Pager) RollbackLock() *sync.RWMutex {
	return &p.rollbackLock
}

// Stats returns a snapshot of pager I/O counters for dbInfo.
func (p *Pager) Stats() Stats {
	return p.stats
}

// Close flushes nothing on its own (the WAL/commit path is responsible
// for durability) but closes the underlying file handle.
func (p *Pager) Close() error {
	if err := p.file.Close(); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "close db file", err)
	}
	return nil
}
