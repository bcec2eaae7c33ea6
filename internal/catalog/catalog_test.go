package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

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

func TestCreateAndGetTable(t *testing.T) {
	store := newMemStore(4096)
	cat, err := Create(store)
	require.NoError(t, err)

	cols := []ColumnDef{
		{Name: "id", Type: record.Int64, PK: true},
		{Name: "name", Type: record.Text, Nullable: true},
	}
	def, err := cat.CreateTable("users", cols)
	require.NoError(t, err)
	require.Equal(t, "users", def.Name)

	got, found, err := cat.GetTable("users")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "users", got.Name)
	require.Len(t, got.Columns, 2)
	require.Equal(t, "id", got.Columns[0].Name)
	require.True(t, got.Columns[0].PK)
	require.True(t, got.Columns[1].Nullable)

	_, err = cat.CreateTable("users", cols)
	require.Error(t, err)
}

func TestListTables(t *testing.T) {
	store := newMemStore(4096)
	cat, err := Create(store)
	require.NoError(t, err)

	_, err = cat.CreateTable("a", []ColumnDef{{Name: "x", Type: record.Int64}})
	require.NoError(t, err)
	_, err = cat.CreateTable("b", []ColumnDef{{Name: "y", Type: record.Text}})
	require.NoError(t, err)

	tables, err := cat.ListTables()
	require.NoError(t, err)
	require.Len(t, tables, 2)
}

func TestCreateAndGetIndex(t *testing.T) {
	store := newMemStore(4096)
	cat, err := Create(store)
	require.NoError(t, err)

	idx := IndexDef{Name: "idx_name", Table: "users", Kind: IndexKindBTree, Unique: true, Columns: []string{"name"}}
	require.NoError(t, cat.CreateIndex(idx))

	got, found, err := cat.GetIndex("idx_name")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "users", got.Table)
	require.True(t, got.Unique)
	require.Equal(t, []string{"name"}, got.Columns)

	indexes, err := cat.ListIndexesForTable("users")
	require.NoError(t, err)
	require.Len(t, indexes, 1)
}

func TestViewCreateRenameDrop(t *testing.T) {
	store := newMemStore(4096)
	cat, err := Create(store)
	require.NoError(t, err)

	require.NoError(t, cat.CreateView("v1", "SELECT * FROM users"))
	v, found, err := cat.GetView("v1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "SELECT * FROM users", v.Query)

	require.NoError(t, cat.RenameView("v1", "v2"))
	_, found, err = cat.GetView("v1")
	require.NoError(t, err)
	require.False(t, found)

	v2, found, err := cat.GetView("v2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "SELECT * FROM users", v2.Query)

	require.NoError(t, cat.DropView("v2"))
	_, found, err = cat.GetView("v2")
	require.NoError(t, err)
	require.False(t, found)
}

func TestTrigramDeltaMergeAndFlush(t *testing.T) {
	store := newMemStore(4096)
	cat, err := Create(store)
	require.NoError(t, err)

	postingsTree, err := btree.NewEmpty(store)
	require.NoError(t, err)

	const trigram = uint32(12345)
	cat.TrigramAdd("idx_trgm", trigram, 1)
	cat.TrigramAdd("idx_trgm", trigram, 2)
	cat.TrigramAdd("idx_trgm", trigram, 3)

	ids, truncated, err := cat.GetTrigramPostingsWithDeltasUpTo(postingsTree, "idx_trgm", trigram, 0)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, []uint64{1, 2, 3}, ids)

	require.NoError(t, cat.FlushTrigramDeltas("idx_trgm", postingsTree))

	// After flush, the delta buffer is empty but the merged result still
	// reads back the same from disk.
	ids, _, err = cat.GetTrigramPostingsWithDeltasUpTo(postingsTree, "idx_trgm", trigram, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, ids)

	cat.TrigramRemove("idx_trgm", trigram, 2)
	ids, _, err = cat.GetTrigramPostingsWithDeltasUpTo(postingsTree, "idx_trgm", trigram, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, ids)

	require.NoError(t, cat.FlushTrigramDeltas("idx_trgm", postingsTree))
	ids, _, err = cat.GetTrigramPostingsWithDeltasUpTo(postingsTree, "idx_trgm", trigram, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, ids)
}

func TestTrigramPostingsChunkingManyRowids(t *testing.T) {
	store := newMemStore(4096)
	cat, err := Create(store)
	require.NoError(t, err)
	postingsTree, err := btree.NewEmpty(store)
	require.NoError(t, err)

	const trigram = uint32(7)
	const n = 500
	for i := uint64(0); i < n; i++ {
		cat.TrigramAdd("idx", trigram, i)
	}
	require.NoError(t, cat.FlushTrigramDeltas("idx", postingsTree))

	ids, truncated, err := cat.GetTrigramPostingsWithDeltasUpTo(postingsTree, "idx", trigram, 0)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Len(t, ids, n)

	limited, truncated, err := cat.GetTrigramPostingsWithDeltasUpTo(postingsTree, "idx", trigram, 10)
	require.NoError(t, err)
	require.True(t, truncated)
	require.Len(t, limited, 10)
}
