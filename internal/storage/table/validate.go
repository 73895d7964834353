package table

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/env"
)

// AssertValidFixedSizeTrees validates every index tree of the table and
// checks that each holds one entry per row. Any inconsistency is a
// *storage.CatastrophicError: rows can no longer be trusted to be
// reachable through their indexes.
func (t *Table) AssertValidFixedSizeTrees() error {
	rows := t.rows.Count()
	g := new(errgroup.Group)
	for _, idx := range t.schema.FixedSizeIndexes {
		idx := idx
		ft := t.indexes[idx.Name]
		g.Go(func() error {
			if err := ft.ValidateTree(); err != nil {
				return err
			}
			if ft.Count() != rows {
				return fmt.Errorf("index %q has %d entries for %d rows", idx.Name, ft.Count(), rows)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return storage.NewCatastrophicError(fmt.Sprintf("validate table %q", t.name), err)
	}
	return nil
}

// AssertValidTables walks every root object of tx. Tables get their index
// trees checked and standalone fixed-size trees are validated; other
// objects are skipped. Schema updates call it after rewriting data.
func AssertValidTables(tx *env.Transaction, cache *SchemaCache) error {
	objects, err := tx.RootObjects()
	if err != nil {
		return err
	}
	for _, o := range objects {
		switch o.Type {
		case storage.RootObjectTable:
			t, err := Open(tx, o.Name, cache)
			if err != nil {
				return storage.NewCatastrophicError(fmt.Sprintf("open table %q", o.Name), err)
			}
			if err := t.AssertValidFixedSizeTrees(); err != nil {
				return err
			}
		case storage.RootObjectFixedSizeTree:
			ft, err := tx.FixedTreeFor(o.Name, int(o.State.ValueSize))
			if err != nil {
				return err
			}
			if err := ft.ValidateTree(); err != nil {
				return storage.NewCatastrophicError(fmt.Sprintf("validate fixed-size tree %q", o.Name), err)
			}
		}
	}
	return nil
}
