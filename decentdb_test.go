package decentdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

func openTestDb(t *testing.T) *Db {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ddb")
	db, err := OpenDb(path, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { CloseDb(db) })
	return db
}

func personCols() []catalog.ColumnDef {
	return []catalog.ColumnDef{
		{Name: "id", Type: record.Int64, PK: true},
		{Name: "name", Type: record.Text},
		{Name: "age", Type: record.Int64},
	}
}

func TestOpenDbCreatesThenReopensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ddb")

	db, err := OpenDb(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, db.CreateTable("people", personCols()))
	rid, err := db.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)
	require.NoError(t, db.Checkpoint())
	require.NoError(t, CloseDb(db))

	reopened, err := OpenDb(path, DefaultOptions())
	require.NoError(t, err)
	defer CloseDb(reopened)

	values, err := reopened.ReadRowAt("people", rid)
	require.NoError(t, err)
	require.Equal(t, "Ada", values[1].Text)
}

func TestDbCreateIndexAndSeek(t *testing.T) {
	db := openTestDb(t)
	require.NoError(t, db.CreateTable("people", personCols()))
	_, err := db.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	require.NoError(t, db.CreateIndex("people", "idx_people_name", []string{"name"}, false, catalog.IndexKindBTree, ""))

	rowids, err := db.IndexSeek("people", "name", record.NewText("Ada"))
	require.NoError(t, err)
	require.Len(t, rowids, 1)
}

func TestDbDropTableRemovesIt(t *testing.T) {
	db := openTestDb(t)
	require.NoError(t, db.CreateTable("people", personCols()))
	require.NoError(t, db.DropTable("people"))

	_, found, err := db.DescribeTable("people")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDbBulkLoadIndexToggle(t *testing.T) {
	db := openTestDb(t)
	require.NoError(t, db.CreateTable("people", personCols()))
	require.NoError(t, db.CreateIndex("people", "idx_people_name", []string{"name"}, false, catalog.IndexKindBTree, ""))

	db.SetIndexMaintenanceEnabled(false)
	_, err := db.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Grace"), record.NewInt64(40)})
	require.NoError(t, err)

	rowids, err := db.IndexSeek("people", "name", record.NewText("Grace"))
	require.NoError(t, err)
	require.Len(t, rowids, 0)

	db.SetIndexMaintenanceEnabled(true)
	require.NoError(t, db.RebuildIndex("idx_people_name"))

	rowids, err = db.IndexSeek("people", "name", record.NewText("Grace"))
	require.NoError(t, err)
	require.Len(t, rowids, 1)
}

func TestDbInfoReportsHeaderAndPagerStats(t *testing.T) {
	db := openTestDb(t)
	require.NoError(t, db.CreateTable("people", personCols()))

	info := db.DbInfo()
	require.Equal(t, DefaultOptions().PageSize, info.PageSize)
	require.NotZero(t, info.SchemaCookie)
	require.NotZero(t, info.NumPages)
}

func TestOptionsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	opts := DefaultOptions()
	opts.CachePages = 2048
	opts.BulkLoad.BatchSize = 500

	require.NoError(t, SaveOptionsFile(path, opts))

	loaded, err := LoadOptionsFile(path)
	require.NoError(t, err)
	require.Equal(t, 2048, loaded.CachePages)
	require.Equal(t, 500, loaded.BulkLoad.BatchSize)
}

func TestCreateAndDropViewRoundTrip(t *testing.T) {
	db := openTestDb(t)
	require.NoError(t, db.CreateView("adults", "SELECT * FROM people WHERE age >= 18"))
	require.NoError(t, db.RenameView("adults", "grown_ups"))
	require.NoError(t, db.DropView("grown_ups"))
}
