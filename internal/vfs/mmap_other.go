//go:build !unix

package vfs

import (
	"errors"
	"os"
)

const mmapSupported = false

var errNotOSFile = errors.New("vfs: MapWritable called with a non-OS file")

// mapWritable has no portable implementation outside unix; the WAL write
// path falls back to buffered write()+fsync() whenever SupportsMmap is
// false, per spec.md §4.1/§4.3.
func mapWritable(_ *os.File, _ int64) (MmapRegion, error) {
	return nil, errors.New("vfs: mmap not supported on this platform")
}
