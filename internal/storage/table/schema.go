package table

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
)

// SchemasSlice is the key the schema is stored under in the table's root
// tree.
const SchemasSlice = "SchemasSlice"

const schemaFormatVersion = 1

// Schema errors.
var (
	ErrInvalidSchema  = errors.New("table: invalid schema")
	ErrSchemaMismatch = errors.New("table: schema differs from the stored one")
)

// Reserved sub-tree suffixes; index names must not collide with them.
const (
	rowsSuffix       = "rows"
	primaryKeySuffix = "pk"
)

// IndexDef describes the primary key: the row field whose bytes identify
// the row.
type IndexDef struct {
	Name  string
	Field int
}

// FixedSizeIndexDef describes a secondary index over an 8-byte big-endian
// integer field. Index values are unique.
type FixedSizeIndexDef struct {
	Name  string
	Field int
}

// TableSchema declares how rows of a table are keyed and indexed. It is
// stored with the table and cannot change once the table exists.
type TableSchema struct {
	PrimaryKey       *IndexDef
	FixedSizeIndexes []FixedSizeIndexDef
}

// NewTableSchema returns a schema keyed by field pkField.
func NewTableSchema(pkName string, pkField int) *TableSchema {
	return &TableSchema{PrimaryKey: &IndexDef{Name: pkName, Field: pkField}}
}

// DefineFixedSizeIndex adds a secondary index on field.
func (s *TableSchema) DefineFixedSizeIndex(name string, field int) *TableSchema {
	s.FixedSizeIndexes = append(s.FixedSizeIndexes, FixedSizeIndexDef{Name: name, Field: field})
	return s
}

// FixedSizeIndex returns the index called name.
func (s *TableSchema) FixedSizeIndex(name string) (FixedSizeIndexDef, bool) {
	for _, idx := range s.FixedSizeIndexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return FixedSizeIndexDef{}, false
}

// Check reports structural problems: a missing primary key, empty or
// duplicate names, or negative fields.
func (s *TableSchema) Check() error {
	if s.PrimaryKey == nil {
		return fmt.Errorf("%w: no primary key", ErrInvalidSchema)
	}
	if s.PrimaryKey.Name == "" || s.PrimaryKey.Field < 0 {
		return fmt.Errorf("%w: primary key %q on field %d", ErrInvalidSchema, s.PrimaryKey.Name, s.PrimaryKey.Field)
	}
	seen := make(map[string]bool, len(s.FixedSizeIndexes))
	for _, idx := range s.FixedSizeIndexes {
		switch {
		case idx.Name == "":
			return fmt.Errorf("%w: index with empty name", ErrInvalidSchema)
		case idx.Name == rowsSuffix || idx.Name == primaryKeySuffix:
			return fmt.Errorf("%w: index name %q is reserved", ErrInvalidSchema, idx.Name)
		case seen[idx.Name]:
			return fmt.Errorf("%w: duplicate index %q", ErrInvalidSchema, idx.Name)
		case idx.Field < 0:
			return fmt.Errorf("%w: index %q on field %d", ErrInvalidSchema, idx.Name, idx.Field)
		}
		seen[idx.Name] = true
	}
	return nil
}

// Validate returns ErrSchemaMismatch when other does not describe the
// same table layout as s.
func (s *TableSchema) Validate(other *TableSchema) error {
	if other == nil {
		return fmt.Errorf("%w: no schema", ErrSchemaMismatch)
	}
	if (s.PrimaryKey == nil) != (other.PrimaryKey == nil) ||
		(s.PrimaryKey != nil && *s.PrimaryKey != *other.PrimaryKey) {
		return fmt.Errorf("%w: primary key %+v, stored %+v", ErrSchemaMismatch, other.PrimaryKey, s.PrimaryKey)
	}
	if !slices.Equal(s.FixedSizeIndexes, other.FixedSizeIndexes) {
		return fmt.Errorf("%w: indexes %v, stored %v", ErrSchemaMismatch, other.FixedSizeIndexes, s.FixedSizeIndexes)
	}
	return nil
}

// Serialize encodes the schema.
//
// Layout:
//   - version (1 byte)
//   - primary key: name length (uvarint), name, field (uvarint)
//   - index count (uvarint), then per index: name length, name, field
func (s *TableSchema) Serialize() []byte {
	buf := []byte{schemaFormatVersion}
	putDef := func(name string, field int) {
		buf = binary.AppendUvarint(buf, uint64(len(name)))
		buf = append(buf, name...)
		buf = binary.AppendUvarint(buf, uint64(field))
	}
	putDef(s.PrimaryKey.Name, s.PrimaryKey.Field)
	buf = binary.AppendUvarint(buf, uint64(len(s.FixedSizeIndexes)))
	for _, idx := range s.FixedSizeIndexes {
		putDef(idx.Name, idx.Field)
	}
	return buf
}

// ReadSchema decodes a schema written by Serialize.
func ReadSchema(data []byte) (*TableSchema, error) {
	if len(data) == 0 || data[0] != schemaFormatVersion {
		return nil, fmt.Errorf("%w: unknown format", ErrInvalidSchema)
	}
	off := 1
	uvarint := func() (uint64, error) {
		v, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return 0, fmt.Errorf("%w: truncated at byte %d", ErrInvalidSchema, off)
		}
		off += n
		return v, nil
	}
	def := func() (string, int, error) {
		n, err := uvarint()
		if err != nil {
			return "", 0, err
		}
		if uint64(len(data)-off) < n {
			return "", 0, fmt.Errorf("%w: name overruns the schema", ErrInvalidSchema)
		}
		name := string(data[off : off+int(n)])
		off += int(n)
		field, err := uvarint()
		return name, int(field), err
	}

	name, field, err := def()
	if err != nil {
		return nil, err
	}
	s := &TableSchema{PrimaryKey: &IndexDef{Name: name, Field: field}}
	count, err := uvarint()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d indexes", ErrInvalidSchema, count)
	}
	for i := uint64(0); i < count; i++ {
		name, field, err := def()
		if err != nil {
			return nil, err
		}
		s.FixedSizeIndexes = append(s.FixedSizeIndexes, FixedSizeIndexDef{Name: name, Field: field})
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidSchema, len(data)-off)
	}
	return s, s.Check()
}
