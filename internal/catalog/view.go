package catalog

import (
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// ViewDef is a view's catalog record. The query text is opaque SQL
// owned by the external planner/parser; the core only persists it.
type ViewDef struct {
	Name  string
	Query string
}

// CreateView persists a new view definition.
func (c *Catalog) CreateView(name, query string) error {
	if _, found, err := c.getRecord(KindView, name); err != nil {
		return err
	} else if found {
		return dberrors.New(dberrors.CodeSQL, "view already exists: "+name)
	}
	return c.putRecord(KindView, name, []record.Value{record.NewText(query)})
}

// GetView loads a view definition.
func (c *Catalog) GetView(name string) (*ViewDef, bool, error) {
	fields, found, err := c.getRecord(KindView, name)
	if err != nil || !found {
		return nil, found, err
	}
	if len(fields) != 1 {
		return nil, false, dberrors.New(dberrors.CodeCorruption, "malformed view catalog record")
	}
	return &ViewDef{Name: name, Query: fields[0].Text}, true, nil
}

// DropView removes a view's catalog entry.
func (c *Catalog) DropView(name string) error {
	return c.deleteRecord(KindView, name)
}

// RenameView moves a view definition to a new name, preserving its
// query text.
func (c *Catalog) RenameView(oldName, newName string) error {
	def, found, err := c.GetView(oldName)
	if err != nil {
		return err
	}
	if !found {
		return dberrors.New(dberrors.CodeSQL, "view does not exist: "+oldName)
	}
	if _, found, err := c.getRecord(KindView, newName); err != nil {
		return err
	} else if found {
		return dberrors.New(dberrors.CodeSQL, "view already exists: "+newName)
	}
	if err := c.putRecord(KindView, newName, []record.Value{record.NewText(def.Query)}); err != nil {
		return err
	}
	return c.deleteRecord(KindView, oldName)
}
