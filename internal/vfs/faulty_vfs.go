package vfs

import (
	"sync"

	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
)

// FailMode selects a failpoint's behavior for its next matching call.
type FailMode int

const (
	// FailNone passes calls through unmodified.
	FailNone FailMode = iota
	// FailError makes the next N matching calls fail with ErrIO.
	FailError
	// FailPartial truncates the next N matching writes to exactly
	// Bytes bytes, simulating a torn write.
	FailPartial
)

// failpoint holds one named hook's configuration. Consumed atomically:
// each matching call decrements Remaining, and once it reaches zero the
// failpoint reverts to FailNone.
type failpoint struct {
	mode      FailMode
	remaining int
	bytes     int
}

// FaultyVfs wraps a Vfs with named failpoints for crash/torn-write testing
// (spec.md §4.1). The stable label set: wal_write_frame, wal_fsync,
// checkpoint_write_page, checkpoint_fsync, checkpoint_wal_fsync,
// header_write (spec.md §6.4). The WAL fires wal_write_frame, wal_fsync
// and checkpoint_wal_fsync; checkpoint_write_page, checkpoint_fsync and
// header_write can be set, but no code path fires them, because the
// Pager's writes and fsyncs use the plain, unlabeled File methods.
type FaultyVfs struct {
	inner Vfs

	mu         sync.Mutex
	failpoints map[string]*failpoint
}

// NewFaulty wraps inner with fault injection support.
func NewFaulty(inner Vfs) *FaultyVfs {
	return &FaultyVfs{inner: inner, failpoints: make(map[string]*failpoint)}
}

// SetFailpoint configures label to behave per mode for the next n matching
// fires. bytes is only meaningful for FailPartial.
func (f *FaultyVfs) SetFailpoint(label string, mode FailMode, n int, bytes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failpoints[label] = &failpoint{mode: mode, remaining: n, bytes: bytes}
}

// ClearFailpoint resets label to FailNone.
func (f *FaultyVfs) ClearFailpoint(label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failpoints, label)
}

// Fire consumes one occurrence of label, reporting whether the call
// should fail outright and, if not, how many bytes of a write (if any)
// should actually land (0 meaning "no truncation").
func (f *FaultyVfs) Fire(label string) (fail bool, truncateTo int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, ok := f.failpoints[label]
	if !ok || fp.mode == FailNone || fp.remaining <= 0 {
		return false, 0
	}

	fp.remaining--
	mode := fp.mode
	bytes := fp.bytes
	if fp.remaining == 0 {
		fp.mode = FailNone
	}

	switch mode {
	case FailError:
		return true, 0
	case FailPartial:
		return false, bytes
	default:
		return false, 0
	}
}

func (f *FaultyVfs) Open(path string, create bool) (File, error) {
	file, err := f.inner.Open(path, create)
	if err != nil {
		return nil, err
	}
	return &faultyFile{inner: file, owner: f}, nil
}

func (f *FaultyVfs) Remove(path string) error      { return f.inner.Remove(path) }
func (f *FaultyVfs) Exists(path string) (bool, error) { return f.inner.Exists(path) }
func (f *FaultyVfs) SupportsMmap() bool             { return f.inner.SupportsMmap() }

func (f *FaultyVfs) MapWritable(file File, length int64) (MmapRegion, error) {
	ff, ok := file.(*faultyFile)
	if !ok {
		return f.inner.MapWritable(file, length)
	}
	return f.inner.MapWritable(ff.inner, length)
}

// faultyFile is the File view handed back by FaultyVfs.Open; its label
// namespace is the caller-supplied string passed through WriteLabeled /
// SyncLabeled, letting the WAL and checkpoint code identify which
// operation is failing (the plain ReadAt/WriteAt/Sync methods below pass
// through unlabeled, for code paths that don't care about fault
// injection, e.g. the Pager's ordinary page I/O).
type faultyFile struct {
	inner File
	owner *FaultyVfs
}

func (f *faultyFile) ReadAt(buf []byte, offset int64) (int, error) {
	return f.inner.ReadAt(buf, offset)
}

func (f *faultyFile) WriteAt(buf []byte, offset int64) (int, error) {
	return f.inner.WriteAt(buf, offset)
}

func (f *faultyFile) Sync() error                { return f.inner.Sync() }
func (f *faultyFile) Truncate(size int64) error  { return f.inner.Truncate(size) }
func (f *faultyFile) Size() (int64, error)        { return f.inner.Size() }
func (f *faultyFile) Close() error                { return f.inner.Close() }

// WriteLabeled performs a write through the named failpoint: an Error
// failpoint returns ErrIO without touching the file; a Partial failpoint
// writes only the configured byte count.
func (f *faultyFile) WriteLabeled(label string, buf []byte, offset int64) (int, error) {
	fail, truncateTo := f.owner.Fire(label)
	if fail {
		return 0, dberrors.Wrap(dberrors.CodeIO, "injected failure at "+label, nil)
	}
	if truncateTo > 0 && truncateTo < len(buf) {
		buf = buf[:truncateTo]
	}
	return f.inner.WriteAt(buf, offset)
}

// SyncLabeled performs an fsync through the named failpoint.
func (f *faultyFile) SyncLabeled(label string) error {
	fail, _ := f.owner.Fire(label)
	if fail {
		return dberrors.Wrap(dberrors.CodeIO, "injected fsync failure at "+label, nil)
	}
	return f.inner.Sync()
}

// Labeled unwraps a File into its underlying *faultyFile if the Vfs chain
// includes fault injection, otherwise returns nil. The WAL and checkpoint
// code call this once at open time to decide whether to route writes
// through WriteLabeled/SyncLabeled or straight through the File interface.
func Labeled(f File) (*faultyFile, bool) {
	ff, ok := f.(*faultyFile)
	return ff, ok
}
