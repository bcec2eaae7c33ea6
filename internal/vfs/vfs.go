// Package vfs defines the virtual file system the storage core runs on
// (spec.md §4.1): a small interface every page read/write, fsync, and
// truncate passes through, plus a fault-injecting decorator for crash and
// torn-write testing. Grounded on the teacher's direct *os.File use in
// btree/pager.go and btree/wal.go (ReadAt/WriteAt/Sync/Close), lifted
// behind an interface so tests can inject failures the teacher's engine
// has no way to simulate.
package vfs

import "io"

// File is a single open handle. Offsets are absolute from the start of
// the file, matching os.File's ReadAt/WriteAt semantics.
type File interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	Sync() error
	Truncate(size int64) error
	Size() (int64, error)
	Close() error
}

// MmapRegion is a writable memory-mapped view of a file, used by the WAL's
// mmap write path (spec.md §4.3, §9) when the backing Vfs supports it.
type MmapRegion interface {
	// Bytes returns the mapped region. Writes through the returned slice
	// are visible to other readers of the file once flushed/synced.
	Bytes() []byte
	Flush() error
	Unmap() error
}

// Vfs is the full virtual file system surface (spec.md §4.1).
type Vfs interface {
	Open(path string, create bool) (File, error)
	Remove(path string) error
	Exists(path string) (bool, error)

	// MapWritable maps the first length bytes of file for writing. Callers
	// must check SupportsMmap first; implementations that can't mmap
	// return an error here rather than silently degrading.
	MapWritable(file File, length int64) (MmapRegion, error)
	SupportsMmap() bool
}

// ReadFull reads exactly len(buf) bytes at offset, turning a short read
// into io.ErrUnexpectedEOF the way the teacher's readPage/readMetadata do
// by hand-checking n against PageSize (btree/pager.go).
func ReadFull(f File, buf []byte, offset int64) error {
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrUnexpectedEOF
	}
	return nil
}
