package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/pager"
	"github.com/sphildreth/decentdb-sub007/internal/record"
	"github.com/sphildreth/decentdb-sub007/internal/vfs"
	"github.com/sphildreth/decentdb-sub007/internal/wal"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	v := vfs.NewOS()
	p, err := pager.Open(v, filepath.Join(dir, "test.ddb"), 4096, pager.Options{CachePages: 64})
	require.NoError(t, err)
	w, err := wal.Open(v, filepath.Join(dir, "test.wal"), 4096, wal.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close(); p.Close() })

	e, err := Create(p, w)
	require.NoError(t, err)
	return e
}

func personCols() []catalog.ColumnDef {
	return []catalog.ColumnDef{
		{Name: "id", Type: record.Int64, PK: true},
		{Name: "name", Type: record.Text},
		{Name: "age", Type: record.Int64},
	}
}

func TestInsertReadUpdateDeleteRow(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))

	rid, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)
	require.Equal(t, uint64(1), rid)

	values, err := e.ReadRowAt("people", rid)
	require.NoError(t, err)
	require.Equal(t, "Ada", values[1].Text)
	require.Equal(t, int64(30), values[2].I64)

	require.NoError(t, e.UpdateRow("people", rid, []record.Value{record.NewInt64(1), record.NewText("Ada Lovelace"), record.NewInt64(31)}))
	values, err = e.ReadRowAt("people", rid)
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", values[1].Text)
	require.Equal(t, int64(31), values[2].I64)

	require.NoError(t, e.DeleteRow("people", rid))
	_, err = e.ReadRowAt("people", rid)
	require.Error(t, err)
}

func TestInsertAutoIncrementRowID(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))

	rid1, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("A"), record.NewInt64(1)})
	require.NoError(t, err)
	rid2, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("B"), record.NewInt64(2)})
	require.NoError(t, err)
	require.Equal(t, rid1+1, rid2)
}

func TestScanTable(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	for i := 0; i < 5; i++ {
		_, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText(fmt.Sprintf("p%d", i)), record.NewInt64(int64(i))})
		require.NoError(t, err)
	}

	cur, err := e.ScanTable("people")
	require.NoError(t, err)
	count := 0
	for cur.Valid() {
		_, err := cur.Values()
		require.NoError(t, err)
		count++
		cur.Next()
	}
	require.NoError(t, cur.Err())
	require.Equal(t, 5, count)
}

func TestCreateIndexAndSeek(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	r1, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)
	_, err = e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Grace"), record.NewInt64(40)})
	require.NoError(t, err)

	require.NoError(t, e.CreateIndex("people", "idx_name", []string{"name"}, false, catalog.IndexKindBTree, ""))

	rowids, err := e.IndexSeek("people", "name", record.NewText("Ada"))
	require.NoError(t, err)
	require.Equal(t, []uint64{r1}, rowids)
}

func TestCreateIndexMaintainedOnInsertUpdateDelete(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	require.NoError(t, e.CreateIndex("people", "idx_name", []string{"name"}, false, catalog.IndexKindBTree, ""))

	rid, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	rowids, err := e.IndexSeek("people", "name", record.NewText("Ada"))
	require.NoError(t, err)
	require.Equal(t, []uint64{rid}, rowids)

	require.NoError(t, e.UpdateRow("people", rid, []record.Value{record.NewInt64(int64(rid)), record.NewText("Ada Lovelace"), record.NewInt64(31)}))
	rowids, err = e.IndexSeek("people", "name", record.NewText("Ada"))
	require.NoError(t, err)
	require.Empty(t, rowids)
	rowids, err = e.IndexSeek("people", "name", record.NewText("Ada Lovelace"))
	require.NoError(t, err)
	require.Equal(t, []uint64{rid}, rowids)

	require.NoError(t, e.DeleteRow("people", rid))
	rowids, err = e.IndexSeek("people", "name", record.NewText("Ada Lovelace"))
	require.NoError(t, err)
	require.Empty(t, rowids)
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	require.NoError(t, e.CreateIndex("people", "idx_name_unique", []string{"name"}, true, catalog.IndexKindBTree, ""))

	_, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)
	_, err = e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(31)})
	require.Error(t, err)
}

func TestDropIndexRemovesSeekability(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	require.NoError(t, e.CreateIndex("people", "idx_name", []string{"name"}, false, catalog.IndexKindBTree, ""))
	_, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	require.NoError(t, e.DropIndex("idx_name"))
	_, err = e.IndexSeek("people", "name", record.NewText("Ada"))
	require.Error(t, err)
}

func TestRebuildIndex(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	require.NoError(t, e.CreateIndex("people", "idx_name", []string{"name"}, false, catalog.IndexKindBTree, ""))
	rid, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	require.NoError(t, e.RebuildIndex("idx_name"))
	rowids, err := e.IndexSeek("people", "name", record.NewText("Ada"))
	require.NoError(t, err)
	require.Equal(t, []uint64{rid}, rowids)
}

func TestTrigramIndexMaintenanceAndLookup(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("docs", []catalog.ColumnDef{
		{Name: "id", Type: record.Int64, PK: true},
		{Name: "body", Type: record.Text},
	}))
	require.NoError(t, e.CreateIndex("docs", "idx_body_trgm", []string{"body"}, false, catalog.IndexKindTrigram, ""))

	rid, err := e.InsertRow("docs", []record.Value{record.NewNull(), record.NewText("hello world")})
	require.NoError(t, err)

	trigram := HashTrigram("hel")
	rowids, truncated, err := e.GetTrigramPostingsWithDeltasUpTo("idx_body_trgm", trigram, 100)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Contains(t, rowids, rid)

	require.NoError(t, e.FlushTrigramDeltas())
	rowids, _, err = e.GetTrigramPostingsWithDeltasUpTo("idx_body_trgm", trigram, 100)
	require.NoError(t, err)
	require.Contains(t, rowids, rid)

	require.NoError(t, e.DeleteRow("docs", rid))
	rowids, _, err = e.GetTrigramPostingsWithDeltasUpTo("idx_body_trgm", trigram, 100)
	require.NoError(t, err)
	require.NotContains(t, rowids, rid)
}

func TestAlterTableAddDropRenameRetype(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	rid, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	err = e.AlterTable("people", []AlterAction{
		{Kind: AlterAddColumn, AddColDef: catalog.ColumnDef{Name: "active", Type: record.Bool}},
		{Kind: AlterRenameColumn, Column: "name", NewName: "full_name"},
		{Kind: AlterColumnType, Column: "age", NewType: record.Text},
	})
	require.NoError(t, err)

	values, err := e.ReadRowAt("people", rid)
	require.NoError(t, err)
	require.Len(t, values, 4)
	require.Equal(t, "Ada", values[1].Text) // full_name, still index 1
	require.Equal(t, "30", values[2].Text)  // age cast to text
	require.Equal(t, record.Null, values[3].Kind)
}

func TestAlterTableDropColumnDropsDependentIndex(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	require.NoError(t, e.CreateIndex("people", "idx_name", []string{"name"}, false, catalog.IndexKindBTree, ""))
	_, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	require.NoError(t, e.AlterTable("people", []AlterAction{{Kind: AlterDropColumn, Column: "name"}}))

	_, err = e.IndexSeek("people", "name", record.NewText("Ada"))
	require.Error(t, err)
}

func TestAlterTableUnsupportedCastAbortsWithoutCommitting(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("docs", []catalog.ColumnDef{
		{Name: "id", Type: record.Int64, PK: true},
		{Name: "payload", Type: record.Blob},
	}))
	rid, err := e.InsertRow("docs", []record.Value{record.NewNull(), record.NewBlob([]byte{1, 2, 3})})
	require.NoError(t, err)

	err = e.AlterTable("docs", []AlterAction{{Kind: AlterColumnType, Column: "payload", NewType: record.Int64}})
	require.Error(t, err)

	values, rerr := e.ReadRowAt("docs", rid)
	require.NoError(t, rerr)
	require.Equal(t, record.Blob, values[1].Kind)
}

func TestExplicitTransactionCommit(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))

	require.NoError(t, e.BeginTransaction())
	rid, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)
	require.NoError(t, e.CommitTransaction())

	values, err := e.ReadRowAt("people", rid)
	require.NoError(t, err)
	require.Equal(t, "Ada", values[1].Text)
}

func TestExplicitTransactionRollbackUndoesWrites(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	rid, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	require.NoError(t, e.BeginTransaction())
	require.NoError(t, e.UpdateRow("people", rid, []record.Value{record.NewInt64(int64(rid)), record.NewText("Changed"), record.NewInt64(99)}))
	require.NoError(t, e.RollbackTransaction())

	values, err := e.ReadRowAt("people", rid)
	require.NoError(t, err)
	require.Equal(t, "Ada", values[1].Text)
	require.Equal(t, int64(30), values[2].I64)
}

func TestCreateAndDropTable(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable("people", personCols()))
	_, err := e.InsertRow("people", []record.Value{record.NewNull(), record.NewText("Ada"), record.NewInt64(30)})
	require.NoError(t, err)

	require.NoError(t, e.DropTable("people"))
	_, err = e.ReadRowAt("people", 1)
	require.Error(t, err)
}

func TestCreateRenameDropView(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateView("v1", "SELECT 1"))
	require.NoError(t, e.RenameView("v1", "v2"))
	require.NoError(t, e.DropView("v2"))
}

func TestSchemaCookieBumpsOnDDL(t *testing.T) {
	e := newTestEngine(t)
	before := e.pager.SchemaCookie()
	require.NoError(t, e.CreateTable("people", personCols()))
	after := e.pager.SchemaCookie()
	require.Greater(t, after, before)
}
