//go:build unix

package vfs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

var errNotOSFile = errors.New("vfs: MapWritable called with a non-OS file")

type unixMmap struct {
	data []byte
}

func (m *unixMmap) Bytes() []byte { return m.data }

func (m *unixMmap) Flush() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *unixMmap) Unmap() error {
	return unix.Munmap(m.data)
}

// mapWritable maps the first length bytes of f for read-write access,
// extending the file first if it's shorter than length so the mapping
// covers the WAL's preallocated capacity (ensureWalMmapCapacity in
// spec.md §9).
func mapWritable(f *os.File, length int64) (MmapRegion, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() < length {
		if err := f.Truncate(length); err != nil {
			return nil, err
		}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &unixMmap{data: data}, nil
}
