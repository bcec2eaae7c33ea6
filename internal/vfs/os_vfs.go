package vfs

import (
	"os"
)

// OSVfs is the production Vfs backed directly by the operating system,
// generalizing the bare os.OpenFile/os.Create calls scattered through the
// teacher's createPager/loadPager/NewWAL (btree/pager.go, btree/wal.go)
// into one reusable implementation.
type OSVfs struct{}

// NewOS returns the production, OS-backed Vfs.
func NewOS() *OSVfs { return &OSVfs{} }

func (OSVfs) Open(path string, create bool) (File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

func (OSVfs) Remove(path string) error {
	return os.Remove(path)
}

func (OSVfs) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (OSVfs) SupportsMmap() bool { return mmapSupported }

func (OSVfs) MapWritable(file File, length int64) (MmapRegion, error) {
	of, ok := file.(*osFile)
	if !ok {
		return nil, errNotOSFile
	}
	return mapWritable(of.f, length)
}

type osFile struct {
	f *os.File
}

func (o *osFile) ReadAt(buf []byte, offset int64) (int, error)  { return o.f.ReadAt(buf, offset) }
func (o *osFile) WriteAt(buf []byte, offset int64) (int, error) { return o.f.WriteAt(buf, offset) }
func (o *osFile) Sync() error                                   { return o.f.Sync() }
func (o *osFile) Truncate(size int64) error                     { return o.f.Truncate(size) }
func (o *osFile) Close() error                                  { return o.f.Close() }

func (o *osFile) Size() (int64, error) {
	st, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}
