package catalog

import (
	"github.com/sphildreth/decentdb-sub007/internal/codec"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// IndexKind selects the on-disk representation of an index's postings.
type IndexKind byte

const (
	IndexKindBTree   IndexKind = 0
	IndexKindTrigram IndexKind = 1
)

// IndexDef is an index's catalog record. Columns holds plain column
// names for a composite index, or a single "expr:<sql>" token for an
// expression index (spec.md §3.1/§4.6).
type IndexDef struct {
	Name      string
	Table     string
	Kind      IndexKind
	Unique    bool
	Columns   []string
	Partial   string // predicate SQL, empty if none
	RootPage  pageformat.PageID
}

func encodeIndexDetail(d IndexDef) []byte {
	var tmp [codec.MaxVarintLen64]byte
	var out []byte

	out = append(out, byte(d.Kind))
	if d.Unique {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}

	n := codec.PutUvarint(tmp[:], uint64(len(d.Table)))
	out = append(out, tmp[:n]...)
	out = append(out, d.Table...)

	n = codec.PutUvarint(tmp[:], uint64(len(d.Columns)))
	out = append(out, tmp[:n]...)
	for _, col := range d.Columns {
		n = codec.PutUvarint(tmp[:], uint64(len(col)))
		out = append(out, tmp[:n]...)
		out = append(out, col...)
	}

	n = codec.PutUvarint(tmp[:], uint64(len(d.Partial)))
	out = append(out, tmp[:n]...)
	out = append(out, d.Partial...)

	n = codec.PutUvarint(tmp[:], uint64(d.RootPage))
	out = append(out, tmp[:n]...)
	return out
}

func decodeIndexDetail(name string, buf []byte) (IndexDef, error) {
	if len(buf) < 2 {
		return IndexDef{}, dberrors.New(dberrors.CodeCorruption, "index catalog record too short")
	}
	kind := IndexKind(buf[0])
	unique := buf[1] != 0
	off := 2

	tableLen, n, err := codec.ReadUvarint(buf[off:])
	if err != nil {
		return IndexDef{}, dberrors.Wrap(dberrors.CodeCorruption, "decode index table length", err)
	}
	off += n
	table := string(buf[off : off+int(tableLen)])
	off += int(tableLen)

	colCount, n, err := codec.ReadUvarint(buf[off:])
	if err != nil {
		return IndexDef{}, dberrors.Wrap(dberrors.CodeCorruption, "decode index column count", err)
	}
	off += n

	cols := make([]string, 0, colCount)
	for i := uint64(0); i < colCount; i++ {
		colLen, n, err := codec.ReadUvarint(buf[off:])
		if err != nil {
			return IndexDef{}, dberrors.Wrap(dberrors.CodeCorruption, "decode index column length", err)
		}
		off += n
		cols = append(cols, string(buf[off:off+int(colLen)]))
		off += int(colLen)
	}

	partialLen, n, err := codec.ReadUvarint(buf[off:])
	if err != nil {
		return IndexDef{}, dberrors.Wrap(dberrors.CodeCorruption, "decode index partial predicate length", err)
	}
	off += n
	partial := string(buf[off : off+int(partialLen)])
	off += int(partialLen)

	root, _, err := codec.ReadUvarint(buf[off:])
	if err != nil {
		return IndexDef{}, dberrors.Wrap(dberrors.CodeCorruption, "decode index root page", err)
	}

	return IndexDef{
		Name: name, Table: table, Kind: kind, Unique: unique,
		Columns: cols, Partial: partial, RootPage: pageformat.PageID(root),
	}, nil
}

// CreateIndex persists a new index's metadata, including the root page
// in d.RootPage. It does not allocate or populate the index tree; the
// caller (internal/storage) builds the tree and supplies its root.
func (c *Catalog) CreateIndex(d IndexDef) error {
	if _, found, err := c.getRecord(KindIndex, d.Name); err != nil {
		return err
	} else if found {
		return dberrors.New(dberrors.CodeSQL, "index already exists: "+d.Name)
	}
	return c.putRecord(KindIndex, d.Name, []record.Value{record.NewBlob(encodeIndexDetail(d))})
}

// GetIndex loads an index's metadata.
func (c *Catalog) GetIndex(name string) (*IndexDef, bool, error) {
	fields, found, err := c.getRecord(KindIndex, name)
	if err != nil || !found {
		return nil, found, err
	}
	if len(fields) != 1 {
		return nil, false, dberrors.New(dberrors.CodeCorruption, "malformed index catalog record")
	}
	def, err := decodeIndexDetail(name, fields[0].Blob)
	if err != nil {
		return nil, false, err
	}
	return &def, true, nil
}

// PutIndex overwrites an index's metadata (root page changed by a
// rebuild).
func (c *Catalog) PutIndex(d IndexDef) error {
	return c.putRecord(KindIndex, d.Name, []record.Value{record.NewBlob(encodeIndexDetail(d))})
}

// DropIndex removes an index's catalog entry. The caller frees the
// index's B+Tree pages first.
func (c *Catalog) DropIndex(name string) error {
	return c.deleteRecord(KindIndex, name)
}

// ListIndexesForTable scans the catalog for every index on table.
func (c *Catalog) ListIndexesForTable(table string) ([]IndexDef, error) {
	cur, err := c.tree.OpenCursor()
	if err != nil {
		return nil, err
	}
	var out []IndexDef
	for cur.Valid() {
		data, err := cur.Value()
		if err != nil {
			return nil, err
		}
		values, err := record.DecodeRow(c.store, data)
		if err != nil {
			return nil, err
		}
		if len(values) >= 3 && values[0].Text == string(KindIndex) {
			def, err := decodeIndexDetail(values[1].Text, values[2].Blob)
			if err != nil {
				return nil, err
			}
			if def.Table == table {
				out = append(out, def)
			}
		}
		cur.Next()
	}
	return out, cur.Err()
}
