package wal

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/vfs"
	"github.com/sphildreth/decentdb-sub007/logging"
)

// PagerBackend is the narrow, non-owning view of the Pager the WAL needs
// during checkpoint (spec.md §9's cyclic-reference resolution: "WAL reads
// from pager during checkpoint" via a back-reference passed into the
// call, not a stored field). internal/pager.Pager satisfies this
// interface directly.
type PagerBackend interface {
	WriteRawAt(id pageformat.PageID, data []byte) error
	Fsync() error
	InvalidateAfterCheckpoint(id pageformat.PageID)
	SetLastCheckpointLSN(lsn uint64) error
}

// indexEntry is one (lsn, offset) version record for a page.
type indexEntry struct {
	lsn    uint64
	offset int64 // file offset of the frame's payload
}

// ReadTxn is a reader's handle: a captured snapshot plus abort state the
// checkpoint goroutine can flip asynchronously (spec.md §5).
type ReadTxn struct {
	id           uint64
	snapshot     uint64
	started      time.Time
	bytesAtStart uint64
	aborted      atomic.Bool
	lastWarnAt   atomic.Int64 // unix ms, 0 if never warned
}

// Snapshot returns the reader's captured walEnd.
func (r *ReadTxn) Snapshot() uint64 { return r.snapshot }

// Aborted reports whether checkpoint has flagged this reader for abort.
func (r *ReadTxn) Aborted() bool { return r.aborted.Load() }

// Options configures checkpoint trigger thresholds (spec.md §4.3, §6.2).
type Options struct {
	CheckpointEveryBytes     uint64
	CheckpointEveryMs        int64
	CheckpointMemoryThreshold uint64
	CheckpointCheckInterval  uint64
	ReaderWarnMs             int64
	ReaderTimeoutMs          int64
	MaxWalBytesPerReader     uint64
	Logger                   logging.Logger
}

func DefaultOptions() Options {
	return Options{
		CheckpointEveryBytes:     64 * 1024 * 1024,
		CheckpointEveryMs:        5000,
		CheckpointMemoryThreshold: 16 * 1024 * 1024,
		CheckpointCheckInterval:  1,
		ReaderWarnMs:             2000,
		ReaderTimeoutMs:          30000,
		MaxWalBytesPerReader:     256 * 1024 * 1024,
	}
}

// Wal implements spec.md §4.3.
type Wal struct {
	v        vfs.Vfs
	file     vfs.File
	path     string
	pageSize uint32
	log      logging.Logger
	opts     Options

	lock sync.Mutex // wal.lock: single writer, also held by checkpoint phases 1 & 3

	endOffset int64 // next write position; guarded by lock
	walEnd    atomic.Uint64

	// skipFsync, when set, makes Commit skip fsync entirely (spec.md
	// §6.2's WalSyncOff / BulkLoadDurabilityNone). Zero value is false,
	// so a Wal fsyncs every commit unless a caller explicitly opts out.
	skipFsync atomic.Bool

	indexLock            sync.Mutex
	index                map[pageformat.PageID][]indexEntry
	dirtySinceCheckpoint map[pageformat.PageID]uint64

	readerLock   sync.Mutex
	readers      map[uint64]*ReadTxn
	nextReaderID uint64

	lastCheckpointLSN uint64
	lastCommit        uint64
	lastCheckpointAt  time.Time
	commitsSinceCheck uint64

	mmap vfs.MmapRegion
}

// SetFsyncOnCommit controls whether Commit fsyncs the WAL file after
// writing a transaction's frames. Disabling it (spec.md §6.2's
// WalSyncOff and BulkLoadDurabilityNone) trades durability for
// throughput: a crash can lose committed-but-unsynced data. The default
// is enabled.
func (w *Wal) SetFsyncOnCommit(enabled bool) {
	w.skipFsync.Store(!enabled)
}

// Open opens or creates the WAL file at path.
func Open(v vfs.Vfs, path string, pageSize uint32, opts Options) (*Wal, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NoOp()
	}

	existed, err := v.Exists(path)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeIO, "stat wal file", err)
	}
	f, err := v.Open(path, true)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CodeIO, "open wal file", err)
	}

	w := &Wal{
		v:                    v,
		file:                 f,
		path:                 path,
		pageSize:             pageSize,
		log:                  opts.Logger,
		opts:                 opts,
		index:                make(map[pageformat.PageID][]indexEntry),
		dirtySinceCheckpoint: make(map[pageformat.PageID]uint64),
		readers:              make(map[uint64]*ReadTxn),
		lastCheckpointAt:     time.Now(),
	}

	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, dberrors.Wrap(dberrors.CodeIO, "stat wal file", err)
	}

	if !existed || size == 0 {
		hdr := encodeFileHeader(fileHeader{Version: FileHeaderVersion, PageSize: pageSize, EndOff: 0})
		if _, err := f.WriteAt(hdr, 0); err != nil {
			f.Close()
			return nil, dberrors.Wrap(dberrors.CodeIO, "write wal header", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, dberrors.Wrap(dberrors.CodeIO, "sync new wal file", err)
		}
		w.endOffset = FileHeaderSize
		return w, nil
	}

	hdrBuf := make([]byte, FileHeaderSize)
	if err := vfs.ReadFull(f, hdrBuf, 0); err != nil {
		f.Close()
		return nil, dberrors.Wrap(dberrors.CodeCorruption, "read wal header", err)
	}
	fh, err := decodeFileHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.pageSize = fh.PageSize
	w.endOffset = FileHeaderSize

	if fh.EndOff != 0 {
		if err := w.recover(fh.EndOff); err != nil {
			f.Close()
			return nil, err
		}
	}

	w.walEnd.Store(w.lastCommit)
	return w, nil
}

// WalEnd returns the published, snapshot-visible end-of-log LSN.
func (w *Wal) WalEnd() uint64 {
	return w.walEnd.Load()
}

// BeginRead captures a new reader snapshot and registers it.
func (w *Wal) BeginRead() *ReadTxn {
	w.readerLock.Lock()
	defer w.readerLock.Unlock()

	w.nextReaderID++
	r := &ReadTxn{
		id:           w.nextReaderID,
		snapshot:     w.walEnd.Load(),
		started:      time.Now(),
		bytesAtStart: 0,
	}
	w.readers[r.id] = r
	return r
}

// EndRead unregisters a reader.
func (w *Wal) EndRead(r *ReadTxn) {
	w.readerLock.Lock()
	defer w.readerLock.Unlock()
	delete(w.readers, r.id)
}

// minReaderSnapshot scans the reader registry for the oldest active
// snapshot; returns walEnd (i.e. "no constraint") if there are no readers.
func (w *Wal) minReaderSnapshot() uint64 {
	w.readerLock.Lock()
	defer w.readerLock.Unlock()

	min := w.walEnd.Load()
	for _, r := range w.readers {
		if r.snapshot < min {
			min = r.snapshot
		}
	}
	return min
}

// GetPageAtOrBefore implements the snapshot overlay lookup of spec.md
// §4.3: the largest indexed version of pid with lsn <= snap. ok is false
// if no WAL version exists and the caller should fall back to the main
// DB file.
func (w *Wal) GetPageAtOrBefore(pid pageformat.PageID, snap uint64) (data []byte, ok bool, err error) {
	w.indexLock.Lock()
	entries := w.index[pid]
	w.indexLock.Unlock()

	if len(entries) == 0 {
		return nil, false, nil
	}

	// entries are append-ordered (ascending lsn); binary search for the
	// rightmost entry with lsn <= snap.
	i := sort.Search(len(entries), func(i int) bool { return entries[i].lsn > snap })
	if i == 0 {
		return nil, false, nil
	}
	e := entries[i-1]

	buf := make([]byte, w.pageSize)
	if err := vfs.ReadFull(w.file, buf, e.offset); err != nil {
		return nil, false, dberrors.Wrap(dberrors.CodeIO, fmt.Sprintf("read wal page frame for page %d", pid), err)
	}
	return buf, true, nil
}

// WriteTxn is the handle returned by BeginWrite; callers issue WritePage
// any number of times before exactly one of Commit or Rollback.
type WriteTxn struct {
	w       *Wal
	pager   RollbackPager
	pending map[pageformat.PageID][]byte
	order   []pageformat.PageID // preserves first-write order for determinism

	// flushedOffset records, per page, the payload offset of an early
	// physical flush (FlushPage) that Commit can still rely on. WritePage
	// invalidates a page's entry here since its on-disk bytes are stale
	// the moment the page is written again.
	flushedOffset map[pageformat.PageID]int64
	// tail is the next physical write position for an early flush. It
	// starts at w.endOffset and only this transaction advances it, since
	// w.lock is held for the transaction's whole lifetime.
	tail int64
}

// RollbackPager is the subset of the Pager the WriteTxn needs to scrub
// uncommitted dirty pages on rollback.
type RollbackPager interface {
	ForEachDirty(fn func(id pageformat.PageID, data []byte))
	ClearDirty(id pageformat.PageID)
	RollbackLock() *sync.RWMutex
	InvalidateAfterCheckpoint(id pageformat.PageID)
}

// BeginWrite acquires the WAL's single-writer lock and returns a fresh
// write transaction handle.
func (w *Wal) BeginWrite(pager RollbackPager) *WriteTxn {
	w.lock.Lock()
	return &WriteTxn{
		w:             w,
		pager:         pager,
		pending:       make(map[pageformat.PageID][]byte),
		flushedOffset: make(map[pageformat.PageID]int64),
		tail:          w.endOffset,
	}
}

// WritePage stages pid's new bytes for the pending commit. Any earlier
// FlushPage write of this page is now stale and must be re-encoded by
// Commit rather than relied on.
func (t *WriteTxn) WritePage(pid pageformat.PageID, data []byte) {
	if _, seen := t.pending[pid]; !seen {
		t.order = append(t.order, pid)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	t.pending[pid] = cp
	delete(t.flushedOffset, pid)
}

// FlushPage implements pager.WalBackend: an early, uncommitted physical
// write of a dirty page evicted from cache under memory pressure
// (spec.md §4.3 "Commit-time flushed pages"), letting the Pager drop the
// cache entry without waiting for Commit. The frame is appended to the
// file immediately, past the transaction's current physical tail, but is
// not fsynced and not indexed until Commit finalizes it, so it has no
// snapshot-visible effect unless this transaction later commits; a
// crash before Commit updates the WAL header leaves it outside the
// recoverable range and it is discarded like any other uncommitted tail.
func (t *WriteTxn) FlushPage(pid pageformat.PageID, data []byte) (uint64, error) {
	t.WritePage(pid, data)

	f := frame{kind: FrameTypePage, pageID: pid, payload: data}
	encoded := encodeFrame(f)
	if err := t.w.writeAt(encoded, t.tail); err != nil {
		return 0, err
	}
	payloadOffset := t.tail + FrameHeaderSize
	t.flushedOffset[pid] = payloadOffset
	t.tail += int64(len(encoded))
	return uint64(payloadOffset), nil
}

// LookupFlushed returns this transaction's pending bytes for pid, if any
// — used by the Pager to serve reads of a page it just evicted mid-
// transaction.
func (t *WriteTxn) LookupFlushed(pid pageformat.PageID) ([]byte, bool) {
	b, ok := t.pending[pid]
	return b, ok
}

// Commit encodes every pending page that wasn't already physically
// flushed by FlushPage, plus a terminating Commit frame, writes that tail
// in a single call right after whatever this transaction already flushed
// early, fsyncs, and publishes the new walEnd. Pages with a still-valid
// flushedOffset contribute no bytes here — their frame is already on
// disk, contiguous with this tail, from their earlier FlushPage call.
func (t *WriteTxn) Commit() (uint64, error) {
	w := t.w
	defer w.lock.Unlock()

	if len(t.order) == 0 {
		return w.walEnd.Load(), nil
	}

	startOffset := t.tail
	var buf []byte
	offsets := make(map[pageformat.PageID]int64, len(t.order))

	for _, pid := range t.order {
		if off, ok := t.flushedOffset[pid]; ok {
			offsets[pid] = off
			continue
		}
		data := t.pending[pid]
		f := frame{kind: FrameTypePage, pageID: pid, payload: data}
		offsets[pid] = startOffset + int64(len(buf)) + FrameHeaderSize
		buf = append(buf, encodeFrame(f)...)
	}
	commitLSN := startOffset + int64(len(buf)) + int64(frameSize(0))
	buf = append(buf, encodeFrame(frame{kind: FrameTypeCommit})...)

	if err := w.writeAt(buf, startOffset); err != nil {
		return 0, err
	}

	newEnd := startOffset + int64(len(buf))
	w.endOffset = newEnd

	hdr := encodeFileHeader(fileHeader{Version: FileHeaderVersion, PageSize: w.pageSize, EndOff: uint64(newEnd)})
	if _, err := w.file.WriteAt(hdr, 0); err != nil {
		return 0, dberrors.Wrap(dberrors.CodeIO, "update wal header end-offset", err)
	}
	if !w.skipFsync.Load() {
		if ff, ok := vfs.Labeled(w.file); ok {
			if err := ff.SyncLabeled("wal_fsync"); err != nil {
				return 0, err
			}
		} else if err := w.file.Sync(); err != nil {
			return 0, dberrors.Wrap(dberrors.CodeIO, "fsync wal", err)
		}
	}

	w.indexLock.Lock()
	for _, pid := range t.order {
		w.index[pid] = append(w.index[pid], indexEntry{lsn: uint64(commitLSN), offset: offsets[pid]})
		w.dirtySinceCheckpoint[pid] = uint64(commitLSN)
	}
	w.indexLock.Unlock()

	w.lastCommit = uint64(commitLSN)
	w.walEnd.Store(uint64(commitLSN)) // release store: publishes this commit to future readers

	for _, pid := range t.order {
		t.pager.ClearDirty(pid)
	}

	w.commitsSinceCheck++
	return uint64(commitLSN), nil
}

// writeAt writes buf at offset, through the mmap path when available and
// large enough, otherwise with a single WriteAt call (spec.md §4.3).
func (w *Wal) writeAt(buf []byte, offset int64) error {
	if w.mmap != nil {
		region := w.mmap.Bytes()
		if int64(len(region)) >= offset+int64(len(buf)) {
			copy(region[offset:], buf)
			return w.mmap.Flush()
		}
	}
	if ff, ok := vfs.Labeled(w.file); ok {
		if _, err := ff.WriteLabeled("wal_write_frame", buf, offset); err != nil {
			return err
		}
		return nil
	}
	if _, err := w.file.WriteAt(buf, offset); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "write wal frames", err)
	}
	return nil
}

// Rollback discards the pending write set, scrubbing any dirty pages the
// Pager already staged in cache under the short rollback lock (spec.md
// §4.2, §5).
func (t *WriteTxn) Rollback() {
	w := t.w
	defer w.lock.Unlock()

	rl := t.pager.RollbackLock()
	rl.Lock()
	t.pager.ForEachDirty(func(id pageformat.PageID, _ []byte) {
		t.pager.InvalidateAfterCheckpoint(id)
	})
	rl.Unlock()
}

// EnsureMmap installs an mmap-backed write path if v supports it
// (spec.md §9's "ensureWalMmapCapacity" preallocation note).
func (w *Wal) EnsureMmap(capacity int64) error {
	if !w.v.SupportsMmap() {
		return nil
	}
	region, err := w.v.MapWritable(w.file, capacity)
	if err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "map wal for writing", err)
	}
	w.mmap = region
	return nil
}

// Close unmaps the mmap region, if any, and closes the underlying WAL
// file; it does not fsync.
func (w *Wal) Close() error {
	if w.mmap != nil {
		w.mmap.Unmap()
	}
	return w.file.Close()
}

// ShouldCheckpoint evaluates the auto-checkpoint triggers of spec.md
// §4.3. Time/memory checks are deferred to every Nth commit per
// CheckpointCheckInterval to avoid evaluating them on every commit.
func (w *Wal) ShouldCheckpoint() bool {
	if uint64(w.endOffset) >= w.opts.CheckpointEveryBytes {
		return true
	}
	if w.opts.CheckpointCheckInterval > 0 && w.commitsSinceCheck < w.opts.CheckpointCheckInterval {
		return false
	}
	w.commitsSinceCheck = 0
	if time.Since(w.lastCheckpointAt).Milliseconds() >= w.opts.CheckpointEveryMs {
		return true
	}
	if w.estimateIndexMemoryUsage() >= w.opts.CheckpointMemoryThreshold {
		return true
	}
	return false
}

func (w *Wal) estimateIndexMemoryUsage() uint64 {
	w.indexLock.Lock()
	defer w.indexLock.Unlock()
	const perEntryBytes = 24
	var n uint64
	for _, entries := range w.index {
		n += uint64(len(entries)) * perEntryBytes
	}
	return n
}

// Checkpoint runs the six-phase protocol of spec.md §4.3.
func (w *Wal) Checkpoint(pager PagerBackend) error {
	// Phase 1: planning, under wal.lock.
	w.lock.Lock()
	lastCommit := w.walEnd.Load()
	w.applyReaderPolicy()
	safeLsn := lastCommit
	if m := w.minReaderSnapshot(); m < safeLsn {
		safeLsn = m
	}
	w.lock.Unlock()

	// Phase 2: I/O, without wal.lock so writers may continue.
	w.indexLock.Lock()
	toFlush := make(map[pageformat.PageID]uint64, len(w.dirtySinceCheckpoint))
	for pid, lsn := range w.dirtySinceCheckpoint {
		if lsn <= safeLsn {
			toFlush[pid] = lsn
		}
	}
	w.indexLock.Unlock()

	for pid, lsn := range toFlush {
		data, ok, err := w.GetPageAtOrBefore(pid, lsn)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := pager.WriteRawAt(pid, data); err != nil {
			return err
		}
		pager.InvalidateAfterCheckpoint(pid)
	}

	if err := pager.Fsync(); err != nil {
		return err
	}
	if err := pager.SetLastCheckpointLSN(safeLsn); err != nil {
		return err
	}

	// Phase 3: finalize, under wal.lock again.
	w.lock.Lock()
	cpPayload := make([]byte, 8)
	codec.PutUint64LE(cpPayload, safeLsn)
	cpFrame := encodeFrame(frame{kind: FrameTypeCheckpoint, payload: cpPayload})
	if err := w.writeAt(cpFrame, w.endOffset); err != nil {
		w.lock.Unlock()
		return err
	}
	w.endOffset += int64(len(cpFrame))
	hdr := encodeFileHeader(fileHeader{Version: FileHeaderVersion, PageSize: w.pageSize, EndOff: uint64(w.endOffset)})
	if _, err := w.file.WriteAt(hdr, 0); err != nil {
		w.lock.Unlock()
		return dberrors.Wrap(dberrors.CodeIO, "update wal header after checkpoint", err)
	}
	if ff, ok := vfs.Labeled(w.file); ok {
		if err := ff.SyncLabeled("checkpoint_wal_fsync"); err != nil {
			w.lock.Unlock()
			return err
		}
	} else if err := w.file.Sync(); err != nil {
		w.lock.Unlock()
		return dberrors.Wrap(dberrors.CodeIO, "fsync wal after checkpoint", err)
	}

	w.lastCheckpointLSN = safeLsn
	w.lastCheckpointAt = time.Now()

	noNewCommits := w.walEnd.Load() == lastCommit
	noActiveOrPastReaders := w.allReadersPast(lastCommit)

	if noNewCommits && noActiveOrPastReaders {
		if err := w.truncateLocked(); err != nil {
			w.lock.Unlock()
			return err
		}
	} else {
		w.pruneLocked(safeLsn, toFlush)
	}
	w.lock.Unlock()

	return nil
}

// applyReaderPolicy implements the "long-reader policy" of spec.md
// §4.3's checkpoint phase 2: warn or abort readers overstaying their
// welcome.
func (w *Wal) applyReaderPolicy() {
	w.readerLock.Lock()
	defer w.readerLock.Unlock()

	now := time.Now()
	for id, r := range w.readers {
		elapsed := now.Sub(r.started).Milliseconds()
		if w.opts.ReaderTimeoutMs > 0 && elapsed >= w.opts.ReaderTimeoutMs {
			r.aborted.Store(true)
			delete(w.readers, id)
			continue
		}
		if w.opts.MaxWalBytesPerReader > 0 {
			pinned := uint64(w.endOffset) - r.snapshot
			if pinned > w.opts.MaxWalBytesPerReader {
				r.aborted.Store(true)
				delete(w.readers, id)
				continue
			}
		}
		if w.opts.ReaderWarnMs > 0 && elapsed >= w.opts.ReaderWarnMs {
			last := r.lastWarnAt.Load()
			nowMs := now.UnixMilli()
			if nowMs-last >= 60000 {
				r.lastWarnAt.Store(nowMs)
				w.log.Warnw("wal: long-running reader", "reader_id", id, "elapsed_ms", elapsed)
			}
		}
	}
}

func (w *Wal) allReadersPast(lastCommit uint64) bool {
	w.readerLock.Lock()
	defer w.readerLock.Unlock()
	for _, r := range w.readers {
		if r.snapshot < lastCommit {
			return false
		}
	}
	return true
}

func (w *Wal) truncateLocked() error {
	if err := w.file.Truncate(FileHeaderSize); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "truncate wal", err)
	}
	hdr := encodeFileHeader(fileHeader{Version: FileHeaderVersion, PageSize: w.pageSize, EndOff: 0})
	if _, err := w.file.WriteAt(hdr, 0); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "rewrite wal header after truncate", err)
	}
	if err := w.file.Sync(); err != nil {
		return dberrors.Wrap(dberrors.CodeIO, "fsync wal after truncate", err)
	}

	w.endOffset = FileHeaderSize
	w.indexLock.Lock()
	w.index = make(map[pageformat.PageID][]indexEntry)
	w.dirtySinceCheckpoint = make(map[pageformat.PageID]uint64)
	w.indexLock.Unlock()
	w.walEnd.Store(0)
	return nil
}

func (w *Wal) pruneLocked(safeLsn uint64, checkpointed map[pageformat.PageID]uint64) {
	w.indexLock.Lock()
	defer w.indexLock.Unlock()

	for pid := range checkpointed {
		if lsn, ok := w.dirtySinceCheckpoint[pid]; ok && lsn <= safeLsn {
			delete(w.dirtySinceCheckpoint, pid)
		}
		entries := w.index[pid]
		i := sort.Search(len(entries), func(i int) bool { return entries[i].lsn > safeLsn })
		if i > 0 {
			w.index[pid] = entries[i:]
		}
	}
}

// recover replays frames from offset 32 up to endOff, per spec.md §4.3's
// recovery procedure.
func (w *Wal) recover(endOff uint64) error {
	type pendingEntry struct {
		pid    pageformat.PageID
		offset int64
	}

	offset := int64(FileHeaderSize)
	var pending []pendingEntry

	for uint64(offset) < endOff {
		hdrBuf := make([]byte, FrameHeaderSize)
		if err := vfs.ReadFull(w.file, hdrBuf, offset); err != nil {
			break // truncated tail: stop scan, not an error (spec.md §4.3 fail semantics)
		}
		kind := hdrBuf[0]
		pid := pageformat.PageID(codec.Uint32LE(hdrBuf[1:]))

		plen, err := payloadLen(kind, w.pageSize)
		if err != nil {
			return err
		}

		total := frameSize(plen)
		if uint64(offset)+uint64(total) > endOff+ /*allow exact end*/ 0 && uint64(offset+int64(total)) > endOff {
			break
		}

		switch kind {
		case FrameTypePage:
			pending = append(pending, pendingEntry{pid: pid, offset: offset + FrameHeaderSize})
		case FrameTypeCommit:
			commitLSN := uint64(offset + int64(total))
			for _, pe := range pending {
				w.index[pe.pid] = append(w.index[pe.pid], indexEntry{lsn: commitLSN, offset: pe.offset})
				w.dirtySinceCheckpoint[pe.pid] = commitLSN
			}
			pending = nil
			w.lastCommit = commitLSN
		case FrameTypeCheckpoint:
			cpBuf := make([]byte, 8)
			if err := vfs.ReadFull(w.file, cpBuf, offset+FrameHeaderSize); err == nil {
				w.lastCheckpointLSN = codec.Uint64LE(cpBuf)
			}
			pending = nil
		default:
			return dberrors.New(dberrors.CodeCorruption, fmt.Sprintf("wal recovery: unknown frame type %d at offset %d", kind, offset))
		}

		offset += int64(total)
	}

	if len(pending) > 0 {
		w.log.Warnw("wal: uncommitted frames discarded at recovery", "count", len(pending))
	}
	if w.lastCheckpointLSN > w.lastCommit {
		return dberrors.New(dberrors.CodeCorruption, "wal recovery: lastCheckpointLsn exceeds lastCommit")
	}

	w.endOffset = offset
	return nil
}
