package catalog

import (
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// TriggerDef is a trigger's catalog record. Execution semantics belong
// to the external SQL layer (§1 Non-goals exclude the expression
// evaluator); the core only stores the definition and exposes it.
type TriggerDef struct {
	Name  string
	Table string
	Event string // e.g. "BEFORE INSERT", "AFTER DELETE"
	Body  string // opaque SQL text
}

func (c *Catalog) CreateTrigger(d TriggerDef) error {
	if _, found, err := c.getRecord(KindTrigger, d.Name); err != nil {
		return err
	} else if found {
		return dberrors.New(dberrors.CodeSQL, "trigger already exists: "+d.Name)
	}
	return c.putRecord(KindTrigger, d.Name, []record.Value{
		record.NewText(d.Table),
		record.NewText(d.Event),
		record.NewText(d.Body),
	})
}

func (c *Catalog) GetTrigger(name string) (*TriggerDef, bool, error) {
	fields, found, err := c.getRecord(KindTrigger, name)
	if err != nil || !found {
		return nil, found, err
	}
	if len(fields) != 3 {
		return nil, false, dberrors.New(dberrors.CodeCorruption, "malformed trigger catalog record")
	}
	return &TriggerDef{Name: name, Table: fields[0].Text, Event: fields[1].Text, Body: fields[2].Text}, true, nil
}

func (c *Catalog) DropTrigger(name string) error {
	return c.deleteRecord(KindTrigger, name)
}
