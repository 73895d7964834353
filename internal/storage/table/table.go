package table

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/voron/internal/storage/btree"
	"github.com/KilimcininKorOglu/voron/internal/storage/env"
	"github.com/KilimcininKorOglu/voron/internal/storage/fixedsize"
)

// Table errors.
var (
	ErrTableNotFound       = errors.New("table: not found")
	ErrDuplicateKey        = errors.New("table: duplicate primary key")
	ErrDuplicateIndexValue = errors.New("table: duplicate index value")
	ErrRowNotFound         = errors.New("table: row not found")
	ErrIndexNotFound       = errors.New("table: index not found")
	ErrInvalidIndexValue   = errors.New("table: invalid index value")
	ErrMissingField        = errors.New("table: row is missing a keyed field")
)

const nextRowIDKey = "NextRowId"

// rowIDSize is the width of the row id each index maps to.
const rowIDSize = 8

// Table is a handle on a table bound to one transaction.
//
// A table named "orders" is made of:
//   - "orders": the root tree, holding the schema and the row id counter
//   - "orders/rows": row id (8 bytes big-endian) to row bytes
//   - "orders/pk": primary key bytes to row id
//   - "orders/<index>": a fixed-size tree from index value to row id
type Table struct {
	tx      *env.Transaction
	name    string
	schema  *TableSchema
	root    *btree.Tree
	rows    *btree.Tree
	pk      *btree.Tree
	indexes map[string]*fixedsize.Tree
}

func subTreeName(table, suffix string) string {
	return table + "/" + suffix
}

// Create opens the table called name in a write transaction, creating it
// with schema when it does not exist. An existing table must have been
// created with the same schema.
func Create(tx *env.Transaction, name string, schema *TableSchema) (*Table, error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}
	root, err := tx.CreateTableTree(name)
	if err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}
	raw, found, err := root.Read([]byte(SchemasSlice))
	if err != nil {
		return nil, err
	}
	if found {
		stored, err := ReadSchema(raw)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		if err := stored.Validate(schema); err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
	} else if err := root.Add([]byte(SchemasSlice), schema.Serialize()); err != nil {
		return nil, err
	}

	t := &Table{tx: tx, name: name, schema: schema, root: root, indexes: make(map[string]*fixedsize.Tree)}
	if t.rows, err = tx.CreateTree(subTreeName(name, rowsSuffix)); err != nil {
		return nil, err
	}
	if t.pk, err = tx.CreateTree(subTreeName(name, primaryKeySuffix)); err != nil {
		return nil, err
	}
	for _, idx := range schema.FixedSizeIndexes {
		ft, err := tx.FixedTreeFor(subTreeName(name, idx.Name), rowIDSize)
		if err != nil {
			return nil, fmt.Errorf("table %q index %q: %w", name, idx.Name, err)
		}
		t.indexes[idx.Name] = ft
	}
	return t, nil
}

// Open opens an existing table. cache may be nil.
func Open(tx *env.Transaction, name string, cache *SchemaCache) (*Table, error) {
	root, err := tx.ReadTableTree(name)
	if errors.Is(err, env.ErrTreeNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	raw, found, err := root.Read([]byte(SchemasSlice))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("table %q: %w: no schema stored", name, ErrInvalidSchema)
	}
	schema, err := cache.Get(raw)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}

	t := &Table{tx: tx, name: name, schema: schema, root: root, indexes: make(map[string]*fixedsize.Tree)}
	if t.rows, err = tx.ReadTree(subTreeName(name, rowsSuffix)); err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	if t.pk, err = tx.ReadTree(subTreeName(name, primaryKeySuffix)); err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	for _, idx := range schema.FixedSizeIndexes {
		ft, err := tx.FixedTreeFor(subTreeName(name, idx.Name), rowIDSize)
		if err != nil {
			return nil, fmt.Errorf("table %q index %q: %w", name, idx.Name, err)
		}
		t.indexes[idx.Name] = ft
	}
	return t, nil
}

// Drop deletes the table called name and every tree it owns.
func Drop(tx *env.Transaction, name string) error {
	t, err := Open(tx, name, nil)
	if err != nil {
		return err
	}
	for _, idx := range t.schema.FixedSizeIndexes {
		if err := tx.DeleteTree(subTreeName(name, idx.Name)); err != nil {
			return err
		}
	}
	for _, tree := range []string{subTreeName(name, rowsSuffix), subTreeName(name, primaryKeySuffix), name} {
		if err := tx.DeleteTree(tree); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Schema returns the table schema.
func (t *Table) Schema() *TableSchema {
	return t.schema
}

// NumberOfEntries returns the number of rows.
func (t *Table) NumberOfEntries() int64 {
	return t.rows.Count()
}

func rowKey(id int64) []byte {
	return EncodeInt64(id)
}

func (t *Table) allocateRowID() (int64, error) {
	var id int64 = 1
	raw, found, err := t.root.Read([]byte(nextRowIDKey))
	if err != nil {
		return 0, err
	}
	if found {
		if len(raw) != 8 {
			return 0, fmt.Errorf("table %q: row id counter has %d bytes", t.name, len(raw))
		}
		id = int64(binary.BigEndian.Uint64(raw))
	}
	if err := t.root.Add([]byte(nextRowIDKey), EncodeInt64(id+1)); err != nil {
		return 0, err
	}
	return id, nil
}

// indexValues extracts the primary key and every index value of a row.
func (t *Table) indexValues(row *TableValueBuilder) ([]byte, map[string]int64, error) {
	pkField := t.schema.PrimaryKey.Field
	if pkField >= row.Count() {
		return nil, nil, fmt.Errorf("%w: primary key field %d of %d", ErrMissingField, pkField, row.Count())
	}
	values := make(map[string]int64, len(t.schema.FixedSizeIndexes))
	for _, idx := range t.schema.FixedSizeIndexes {
		if idx.Field >= row.Count() {
			return nil, nil, fmt.Errorf("%w: index %q field %d of %d", ErrMissingField, idx.Name, idx.Field, row.Count())
		}
		v, err := DecodeInt64(row.Field(idx.Field))
		if err != nil {
			return nil, nil, fmt.Errorf("index %q: %w", idx.Name, err)
		}
		values[idx.Name] = v
	}
	return row.Field(pkField), values, nil
}

// checkIndexes fails when an index value is already taken by a row other
// than self.
func (t *Table) checkIndexes(values map[string]int64, self int64) error {
	for name, v := range values {
		raw, found, err := t.indexes[name].Read(v)
		if err != nil {
			return err
		}
		if found && int64(binary.BigEndian.Uint64(raw)) != self {
			return fmt.Errorf("%w: %s = %d", ErrDuplicateIndexValue, name, v)
		}
	}
	return nil
}

func (t *Table) write(id int64, pk []byte, values map[string]int64, row *TableValueBuilder) error {
	if err := t.rows.Add(rowKey(id), row.Bytes()); err != nil {
		return err
	}
	if err := t.pk.Add(pk, rowKey(id)); err != nil {
		return err
	}
	for name, v := range values {
		if err := t.indexes[name].Add(v, rowKey(id)); err != nil {
			return err
		}
	}
	return nil
}

// Insert stores a new row and returns its id. The primary key and every
// index value must be unused.
func (t *Table) Insert(row *TableValueBuilder) (int64, error) {
	pk, values, err := t.indexValues(row)
	if err != nil {
		return 0, err
	}
	_, found, err := t.pk.Read(pk)
	if err != nil {
		return 0, err
	}
	if found {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateKey, pk)
	}
	if err := t.checkIndexes(values, 0); err != nil {
		return 0, err
	}
	id, err := t.allocateRowID()
	if err != nil {
		return 0, err
	}
	return id, t.write(id, pk, values, row)
}

// Update replaces the row with the same primary key, keeping its id.
func (t *Table) Update(row *TableValueBuilder) (int64, error) {
	pk, values, err := t.indexValues(row)
	if err != nil {
		return 0, err
	}
	old, found, err := t.readByKey(pk)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %q", ErrRowNotFound, pk)
	}
	if err := t.checkIndexes(values, old.ID()); err != nil {
		return 0, err
	}
	if err := t.removeIndexes(old); err != nil {
		return 0, err
	}
	return old.ID(), t.write(old.ID(), pk, values, row)
}

// Set inserts the row or updates the one with the same primary key.
func (t *Table) Set(row *TableValueBuilder) (int64, error) {
	pk, _, err := t.indexValues(row)
	if err != nil {
		return 0, err
	}
	_, found, err := t.pk.Read(pk)
	if err != nil {
		return 0, err
	}
	if found {
		return t.Update(row)
	}
	return t.Insert(row)
}

func (t *Table) removeIndexes(row *TableValueReader) error {
	for _, idx := range t.schema.FixedSizeIndexes {
		v, err := row.ReadInt64(idx.Field)
		if err != nil {
			return fmt.Errorf("stored row %d index %q: %w", row.ID(), idx.Name, err)
		}
		if _, err := t.indexes[idx.Name].Delete(v); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByKey removes the row with primary key key and reports whether it
// existed.
func (t *Table) DeleteByKey(key []byte) (bool, error) {
	row, found, err := t.readByKey(key)
	if err != nil || !found {
		return false, err
	}
	if err := t.removeIndexes(row); err != nil {
		return false, err
	}
	if err := t.pk.Delete(key); err != nil {
		return false, err
	}
	if err := t.rows.Delete(rowKey(row.ID())); err != nil {
		return false, err
	}
	return true, nil
}

// ReadByKey returns the row with primary key key. The row is a copy.
func (t *Table) ReadByKey(key []byte) (*TableValueReader, bool, error) {
	return t.readByKey(key)
}

func (t *Table) readByKey(key []byte) (*TableValueReader, bool, error) {
	raw, found, err := t.pk.Read(key)
	if err != nil || !found {
		return nil, false, err
	}
	id, err := DecodeInt64(raw)
	if err != nil {
		return nil, false, fmt.Errorf("table %q primary key %q: %w", t.name, key, err)
	}
	row, found, err := t.ReadByID(id)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, fmt.Errorf("table %q: primary key %q points at missing row %d", t.name, key, id)
	}
	return row, true, nil
}

// ReadByID returns the row with the given id. The row is a copy.
func (t *Table) ReadByID(id int64) (*TableValueReader, bool, error) {
	raw, found, err := t.rows.Read(rowKey(id))
	if err != nil || !found {
		return nil, false, err
	}
	row, err := ReadTableValue(id, bytes.Clone(raw))
	if err != nil {
		return nil, false, fmt.Errorf("table %q row %d: %w", t.name, id, err)
	}
	return row, true, nil
}

// index returns the fixed-size tree of the index called name.
func (t *Table) index(name string) (*fixedsize.Tree, error) {
	ft, ok := t.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q on table %q", ErrIndexNotFound, name, t.name)
	}
	return ft, nil
}
