package table

import (
	"fmt"

	"github.com/KilimcininKorOglu/voron/internal/storage/fixedsize"
)

// IndexIterator walks the rows of a table in the order of one fixed-size
// index.
//
//	it, err := t.SeekForwardFrom("etag", 100)
//	if err != nil {
//	    return err
//	}
//	for it.Next() {
//	    row, err := it.Row()
//	    ...
//	}
//	return it.Err()
type IndexIterator struct {
	table    *Table
	it       *fixedsize.Iterator
	backward bool
	started  bool
	valid    bool
	err      error
}

// SeekForwardFrom returns an iterator over the rows whose value in index
// is at least value, in ascending order.
func (t *Table) SeekForwardFrom(index string, value int64) (*IndexIterator, error) {
	ft, err := t.index(index)
	if err != nil {
		return nil, err
	}
	ii := &IndexIterator{table: t, it: ft.Iterate()}
	ii.valid = ii.it.Seek(value)
	return ii, nil
}

// SeekBackwardFrom returns an iterator over the rows whose value in index
// is at most value, in descending order.
func (t *Table) SeekBackwardFrom(index string, value int64) (*IndexIterator, error) {
	ft, err := t.index(index)
	if err != nil {
		return nil, err
	}
	ii := &IndexIterator{table: t, it: ft.Iterate(), backward: true}
	switch {
	case ii.it.Seek(value):
		ii.valid = ii.it.Key() <= value || ii.it.Prev()
	case ii.it.Err() == nil:
		ii.valid = ii.it.SeekToLast()
	}
	return ii, nil
}

// Next advances to the next row. The first call positions the iterator on
// the first row.
func (ii *IndexIterator) Next() bool {
	if ii.err != nil {
		return false
	}
	if !ii.started {
		ii.started = true
		return ii.valid
	}
	if !ii.valid {
		return false
	}
	if ii.backward {
		ii.valid = ii.it.Prev()
	} else {
		ii.valid = ii.it.Next()
	}
	return ii.valid
}

// Value returns the index value of the current row.
func (ii *IndexIterator) Value() int64 {
	return ii.it.Key()
}

// RowID returns the id of the current row.
func (ii *IndexIterator) RowID() int64 {
	id, _ := DecodeInt64(ii.it.Value())
	return id
}

// Row reads the current row.
func (ii *IndexIterator) Row() (*TableValueReader, error) {
	id := ii.RowID()
	row, found, err := ii.table.ReadByID(id)
	if err != nil {
		return nil, err
	}
	if !found {
		ii.err = fmt.Errorf("table %q: index points at missing row %d", ii.table.name, id)
		return nil, ii.err
	}
	return row, nil
}

// Err returns the first error met while iterating.
func (ii *IndexIterator) Err() error {
	if ii.err != nil {
		return ii.err
	}
	return ii.it.Err()
}
