package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// memStore is an in-memory pageStore for exercising the tree without a
// real Pager, mirroring the teacher's in-test fake-page-store style.
type memStore struct {
	pages    map[pageformat.PageID][]byte
	nextID   pageformat.PageID
	pageSize uint32
}

func newMemStore(pageSize uint32) *memStore {
	return &memStore{pages: make(map[pageformat.PageID][]byte), nextID: 1, pageSize: pageSize}
}

func (s *memStore) ReadPage(id pageformat.PageID) ([]byte, error) {
	buf, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %d not found", id)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (s *memStore) WritePage(id pageformat.PageID, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.pages[id] = cp
	return nil
}

func (s *memStore) AllocatePage() (pageformat.PageID, error) {
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *memStore) FreePage(id pageformat.PageID) error {
	delete(s.pages, id)
	return nil
}

func (s *memStore) PageSize() uint32 { return s.pageSize }

func TestTreeInsertAndFindSmall(t *testing.T) {
	store := newMemStore(512)
	tree, err := NewEmpty(store)
	require.NoError(t, err)

	require.NoError(t, tree.Insert(10, []byte("ten")))
	require.NoError(t, tree.Insert(5, []byte("five")))
	require.NoError(t, tree.Insert(20, []byte("twenty")))

	v, found, err := tree.Find(10)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("ten"), v)

	_, found, err = tree.Find(999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTreeInsertCausesSplitsAndStaysOrdered(t *testing.T) {
	store := newMemStore(256) // small page forces splits quickly
	tree, err := NewEmpty(store)
	require.NoError(t, err)

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Insert(Key(i), []byte(fmt.Sprintf("value-%d", i))))
	}

	for i := 0; i < n; i++ {
		v, found, err := tree.Find(Key(i))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		require.Equal(t, fmt.Sprintf("value-%d", i), string(v))
	}

	c, err := tree.OpenCursor()
	require.NoError(t, err)
	var seen []Key
	for c.Valid() {
		seen = append(seen, c.Key())
		c.Next()
	}
	require.NoError(t, c.Err())
	require.Len(t, seen, n)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i])
	}
}

func TestTreeOverflowValuesRoundTrip(t *testing.T) {
	store := newMemStore(512)
	tree, err := NewEmpty(store)
	require.NoError(t, err)

	big := make([]byte, 2000)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, tree.Insert(1, big))

	v, found, err := tree.Find(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, big, v)
}

func TestTreeUpdateReplacesValueAndFreesOldOverflow(t *testing.T) {
	store := newMemStore(512)
	tree, err := NewEmpty(store)
	require.NoError(t, err)

	big := make([]byte, 2000)
	require.NoError(t, tree.Insert(1, big))
	require.NoError(t, tree.Insert(1, []byte("small now")))

	v, found, err := tree.Find(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("small now"), v)
	// Only the root leaf remains; every page of the old overflow chain was freed.
	require.Len(t, store.pages, 1)
}

func TestTreeDeleteRemovesKey(t *testing.T) {
	store := newMemStore(512)
	tree, err := NewEmpty(store)
	require.NoError(t, err)

	require.NoError(t, tree.Insert(1, []byte("a")))
	require.NoError(t, tree.Insert(2, []byte("b")))
	require.NoError(t, tree.Delete(1))

	_, found, err := tree.Find(1)
	require.NoError(t, err)
	require.False(t, found)

	v, found, err := tree.Find(2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("b"), v)
}

func TestCursorRangeEnd(t *testing.T) {
	store := newMemStore(256)
	tree, err := NewEmpty(store)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, tree.Insert(Key(i), []byte(fmt.Sprintf("v%d", i))))
	}

	c, err := tree.OpenCursorAt(10)
	require.NoError(t, err)
	c.SetEnd(20)

	var got []Key
	for c.Valid() {
		got = append(got, c.Key())
		c.Next()
	}
	require.NoError(t, c.Err())
	require.Equal(t, 10, len(got))
	require.Equal(t, Key(10), got[0])
	require.Equal(t, Key(19), got[len(got)-1])
}

func TestBuildFromSortedProducesOrderedTree(t *testing.T) {
	store := newMemStore(256)
	entries := make([]struct {
		Key   Key
		Value []byte
	}, 100)
	for i := range entries {
		entries[i].Key = Key(i)
		entries[i].Value = []byte(fmt.Sprintf("bulk-%d", i))
	}

	root, err := BuildFromSorted(store, entries)
	require.NoError(t, err)

	tree := New(store, root)
	for i := range entries {
		v, found, err := tree.Find(Key(i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, entries[i].Value, v)
	}
}
