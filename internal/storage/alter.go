package storage

import (
	"strconv"

	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/catalog"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// AlterAction is one ALTER TABLE clause, per spec.md §4.7: ADD COLUMN,
// DROP COLUMN, RENAME COLUMN, and ALTER COLUMN TYPE are each implemented
// as a full table rewrite into a fresh B+Tree.
type AlterAction struct {
	Kind       AlterKind
	Column     string      // column this action targets
	NewName    string      // RenameColumn's target name
	NewType    record.Kind // AlterColumnType's target type
	AddColDef  catalog.ColumnDef
}

type AlterKind int

const (
	AlterAddColumn AlterKind = iota
	AlterDropColumn
	AlterRenameColumn
	AlterColumnType
)

// convertValue applies the documented CAST matrix (Int64/Float64/Text/
// Bool) for ALTER COLUMN TYPE. Null values pass through regardless of
// target type. Any other kind pair (Blob/Decimal/Uuid involved, or a
// conversion that fails to parse) is rejected; the caller aborts the
// whole ALTER without committing.
func convertValue(v record.Value, to record.Kind) (record.Value, error) {
	if v.Kind == record.Null || v.Kind == to {
		return v, nil
	}

	switch {
	case v.Kind == record.Int64 && to == record.Float64:
		return record.NewFloat64(float64(v.I64)), nil
	case v.Kind == record.Int64 && to == record.Text:
		return record.NewText(strconv.FormatInt(v.I64, 10)), nil
	case v.Kind == record.Int64 && to == record.Bool:
		return record.NewBool(v.I64 != 0), nil

	case v.Kind == record.Float64 && to == record.Int64:
		return record.NewInt64(int64(v.F64)), nil
	case v.Kind == record.Float64 && to == record.Text:
		return record.NewText(strconv.FormatFloat(v.F64, 'g', -1, 64)), nil
	case v.Kind == record.Float64 && to == record.Bool:
		return record.NewBool(v.F64 != 0), nil

	case v.Kind == record.Bool && to == record.Int64:
		if v.Bool {
			return record.NewInt64(1), nil
		}
		return record.NewInt64(0), nil
	case v.Kind == record.Bool && to == record.Float64:
		if v.Bool {
			return record.NewFloat64(1), nil
		}
		return record.NewFloat64(0), nil
	case v.Kind == record.Bool && to == record.Text:
		return record.NewText(strconv.FormatBool(v.Bool)), nil

	case v.Kind == record.Text && to == record.Int64:
		n, err := strconv.ParseInt(v.Text, 10, 64)
		if err != nil {
			return record.Value{}, dberrors.Wrap(dberrors.CodeSQL, "cast to INT64 failed for "+v.Text, err)
		}
		return record.NewInt64(n), nil
	case v.Kind == record.Text && to == record.Float64:
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			return record.Value{}, dberrors.Wrap(dberrors.CodeSQL, "cast to FLOAT64 failed for "+v.Text, err)
		}
		return record.NewFloat64(f), nil
	case v.Kind == record.Text && to == record.Bool:
		b, err := strconv.ParseBool(v.Text)
		if err != nil {
			return record.Value{}, dberrors.Wrap(dberrors.CodeSQL, "cast to BOOL failed for "+v.Text, err)
		}
		return record.NewBool(b), nil

	default:
		return record.Value{}, dberrors.New(dberrors.CodeSQL, "unsupported CAST between column types")
	}
}

// AlterTable rewrites table into a fresh B+Tree reflecting actions,
// rebuilds surviving dependent indexes, drops every index that references
// a dropped column (as its only column or as one of several), and bumps the schema cookie (spec.md §4.7). A conversion
// failure partway through aborts the whole ALTER without committing any
// of it.
func (e *Engine) AlterTable(table string, actions []AlterAction) error {
	return e.withWriteTxn(func() error {
		def, found, err := e.cat.GetTable(table)
		if err != nil {
			return err
		}
		if !found {
			return dberrors.New(dberrors.CodeSQL, "no such table: "+table)
		}

		newCols := append([]catalog.ColumnDef(nil), def.Columns...)
		droppedCols := map[string]bool{}
		renamed := map[string]string{}
		typeChanged := map[string]record.Kind{}

		for _, a := range actions {
			switch a.Kind {
			case AlterAddColumn:
				newCols = append(newCols, a.AddColDef)
			case AlterDropColumn:
				out := newCols[:0]
				for _, c := range newCols {
					if c.Name != a.Column {
						out = append(out, c)
					}
				}
				newCols = out
				droppedCols[a.Column] = true
			case AlterRenameColumn:
				for i := range newCols {
					if newCols[i].Name == a.Column {
						newCols[i].Name = a.NewName
					}
				}
				renamed[a.Column] = a.NewName
			case AlterColumnType:
				for i := range newCols {
					if newCols[i].Name == a.Column {
						newCols[i].Type = a.NewType
					}
				}
				typeChanged[a.Column] = a.NewType
			}
		}

		newTree, nerr := btree.NewEmpty(e.pager)
		if nerr != nil {
			return nerr
		}

		oldTree := e.tableTree(table, def)
		cur, operr := oldTree.OpenCursor()
		if operr != nil {
			return operr
		}
		for cur.Valid() {
			data, verr := cur.Value()
			if verr != nil {
				return verr
			}
			oldValues, derr := record.DecodeRow(e.pager, data)
			if derr != nil {
				return derr
			}

			newValues := make([]record.Value, 0, len(newCols))
			for _, nc := range newCols {
				origName := nc.Name
				for from, to := range renamed {
					if to == nc.Name {
						origName = from
					}
				}
				oi := columnIndex(def.Columns, origName)
				if oi < 0 {
					newValues = append(newValues, record.NewNull())
					continue
				}
				v := oldValues[oi]
				if target, ok := typeChanged[origName]; ok {
					converted, cerr := convertValue(v, target)
					if cerr != nil {
						return cerr
					}
					v = converted
				}
				newValues = append(newValues, v)
			}

			encoded, eerr := record.EncodeRow(e.pager, newValues)
			if eerr != nil {
				return eerr
			}
			if ierr := newTree.Insert(cur.Key(), encoded); ierr != nil {
				return ierr
			}
			cur.Next()
		}
		if err := cur.Err(); err != nil {
			return err
		}

		def.Columns = newCols
		def.RootPage = newTree.Root()
		e.invalidateTableTree(table)
		if err := e.cat.PutTable(*def); err != nil {
			return err
		}

		indexes, ierr := e.cat.ListIndexesForTable(table)
		if ierr != nil {
			return ierr
		}
		for i := range indexes {
			idx := indexes[i]
			dropped := false
			for _, col := range idx.Columns {
				if droppedCols[col] {
					dropped = true
				}
			}
			if dropped {
				if err := btree.FreeTree(e.pager, idx.RootPage); err != nil {
					return err
				}
				e.invalidateIndexTree(idx.Name)
				if err := e.cat.DropIndex(idx.Name); err != nil {
					return err
				}
				continue
			}
			for from, to := range renamed {
				for c := range idx.Columns {
					if idx.Columns[c] == from {
						idx.Columns[c] = to
					}
				}
			}
			oldIdxRoot := idx.RootPage
			newIdxRoot, berr := e.buildIndexFromTable(def, &idx)
			if berr != nil {
				return berr
			}
			if err := btree.FreeTree(e.pager, oldIdxRoot); err != nil {
				return err
			}
			idx.RootPage = newIdxRoot
			e.invalidateIndexTree(idx.Name)
			if err := e.cat.PutIndex(idx); err != nil {
				return err
			}
		}

		if err := e.persistCatalogRootIfChanged(); err != nil {
			return err
		}
		return e.pager.BumpSchemaCookie()
	})
}
