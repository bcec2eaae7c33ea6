package catalog

import (
	"github.com/sphildreth/decentdb-sub007/internal/btree"
	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// ColumnType is one of the record codec's logical value kinds, the set
// a table column may declare.
type ColumnType = record.Kind

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name      string
	Type      ColumnType
	Nullable  bool
	Unique    bool
	PK        bool
	FKTarget  string // "table.column", empty if none
	DecScale  uint8
	DecPrec   uint8
}

// TableDef is a table's catalog record.
type TableDef struct {
	Name      string
	Columns   []ColumnDef
	RootPage  pageformat.PageID
	NextRowID uint64
}

const (
	colFlagNullable = 1 << 0
	colFlagUnique   = 1 << 1
	colFlagPK       = 1 << 2
)

func encodeColumns(cols []ColumnDef) []byte {
	var out []byte
	var tmp [codec.MaxVarintLen64]byte

	n := codec.PutUvarint(tmp[:], uint64(len(cols)))
	out = append(out, tmp[:n]...)

	for _, col := range cols {
		n = codec.PutUvarint(tmp[:], uint64(len(col.Name)))
		out = append(out, tmp[:n]...)
		out = append(out, col.Name...)

		out = append(out, byte(col.Type))

		var flags byte
		if col.Nullable {
			flags |= colFlagNullable
		}
		if col.Unique {
			flags |= colFlagUnique
		}
		if col.PK {
			flags |= colFlagPK
		}
		out = append(out, flags)

		n = codec.PutUvarint(tmp[:], uint64(len(col.FKTarget)))
		out = append(out, tmp[:n]...)
		out = append(out, col.FKTarget...)

		out = append(out, col.DecScale, col.DecPrec)
	}
	return out
}

func decodeColumns(buf []byte) ([]ColumnDef, int, error) {
	count, off, err := codec.ReadUvarint(buf)
	if err != nil {
		return nil, 0, dberrors.Wrap(dberrors.CodeCorruption, "decode column count", err)
	}

	cols := make([]ColumnDef, 0, count)
	for i := uint64(0); i < count; i++ {
		nameLen, n, err := codec.ReadUvarint(buf[off:])
		if err != nil {
			return nil, 0, dberrors.Wrap(dberrors.CodeCorruption, "decode column name length", err)
		}
		off += n
		if off+int(nameLen) > len(buf) {
			return nil, 0, dberrors.New(dberrors.CodeCorruption, "column name overruns buffer")
		}
		name := string(buf[off : off+int(nameLen)])
		off += int(nameLen)

		if off+2 > len(buf) {
			return nil, 0, dberrors.New(dberrors.CodeCorruption, "column record truncated")
		}
		typ := ColumnType(buf[off])
		flags := buf[off+1]
		off += 2

		fkLen, n, err := codec.ReadUvarint(buf[off:])
		if err != nil {
			return nil, 0, dberrors.Wrap(dberrors.CodeCorruption, "decode fk target length", err)
		}
		off += n
		if off+int(fkLen) > len(buf) {
			return nil, 0, dberrors.New(dberrors.CodeCorruption, "fk target overruns buffer")
		}
		fk := string(buf[off : off+int(fkLen)])
		off += int(fkLen)

		if off+2 > len(buf) {
			return nil, 0, dberrors.New(dberrors.CodeCorruption, "column record missing decimal scale/precision")
		}
		scale, prec := buf[off], buf[off+1]
		off += 2

		cols = append(cols, ColumnDef{
			Name: name, Type: typ,
			Nullable: flags&colFlagNullable != 0,
			Unique:   flags&colFlagUnique != 0,
			PK:       flags&colFlagPK != 0,
			FKTarget: fk, DecScale: scale, DecPrec: prec,
		})
	}
	return cols, off, nil
}

func encodeTableDetail(t TableDef) []byte {
	var tmp [codec.MaxVarintLen64]byte
	out := encodeColumns(t.Columns)
	n := codec.PutUvarint(tmp[:], uint64(t.RootPage))
	out = append(out, tmp[:n]...)
	n = codec.PutUvarint(tmp[:], t.NextRowID)
	out = append(out, tmp[:n]...)
	return out
}

func decodeTableDetail(name string, buf []byte) (TableDef, error) {
	cols, off, err := decodeColumns(buf)
	if err != nil {
		return TableDef{}, err
	}
	root, n, err := codec.ReadUvarint(buf[off:])
	if err != nil {
		return TableDef{}, dberrors.Wrap(dberrors.CodeCorruption, "decode table root page", err)
	}
	off += n
	nextRowID, _, err := codec.ReadUvarint(buf[off:])
	if err != nil {
		return TableDef{}, dberrors.Wrap(dberrors.CodeCorruption, "decode table next rowid", err)
	}
	return TableDef{Name: name, Columns: cols, RootPage: pageformat.PageID(root), NextRowID: nextRowID}, nil
}

// CreateTable persists a new table's metadata and allocates its row
// B+Tree. Fails with ErrSQL if a table of this name already exists.
func (c *Catalog) CreateTable(name string, cols []ColumnDef) (*TableDef, error) {
	if _, found, err := c.getRecord(KindTable, name); err != nil {
		return nil, err
	} else if found {
		return nil, dberrors.New(dberrors.CodeSQL, "table already exists: "+name)
	}

	rowTree, err := btree.NewEmpty(c.store)
	if err != nil {
		return nil, err
	}
	def := TableDef{Name: name, Columns: cols, RootPage: rowTree.Root(), NextRowID: 1}
	if err := c.putRecord(KindTable, name, []record.Value{record.NewBlob(encodeTableDetail(def))}); err != nil {
		return nil, err
	}
	return &def, nil
}

// GetTable loads a table's metadata.
func (c *Catalog) GetTable(name string) (*TableDef, bool, error) {
	fields, found, err := c.getRecord(KindTable, name)
	if err != nil || !found {
		return nil, found, err
	}
	if len(fields) != 1 {
		return nil, false, dberrors.New(dberrors.CodeCorruption, "malformed table catalog record")
	}
	def, err := decodeTableDetail(name, fields[0].Blob)
	if err != nil {
		return nil, false, err
	}
	return &def, true, nil
}

// PutTable overwrites a table's metadata (root page / nextRowId changed).
func (c *Catalog) PutTable(def TableDef) error {
	return c.putRecord(KindTable, def.Name, []record.Value{record.NewBlob(encodeTableDetail(def))})
}

// DropTable removes a table's catalog entry. The caller is responsible
// for freeing the table's B+Tree pages and any dependent indexes first.
func (c *Catalog) DropTable(name string) error {
	return c.deleteRecord(KindTable, name)
}

// ListTables scans the whole catalog tree and returns every table
// record, since catalog keys are content hashes rather than sorted by
// kind/name.
func (c *Catalog) ListTables() ([]TableDef, error) {
	cur, err := c.tree.OpenCursor()
	if err != nil {
		return nil, err
	}
	var out []TableDef
	for cur.Valid() {
		data, err := cur.Value()
		if err != nil {
			return nil, err
		}
		values, err := record.DecodeRow(c.store, data)
		if err != nil {
			return nil, err
		}
		if len(values) >= 3 && values[0].Text == string(KindTable) {
			def, err := decodeTableDetail(values[1].Text, values[2].Blob)
			if err != nil {
				return nil, err
			}
			out = append(out, def)
		}
		cur.Next()
	}
	return out, cur.Err()
}
