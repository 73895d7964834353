package table

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidRow is returned for row bytes that do not decode.
var ErrInvalidRow = errors.New("table: invalid row")

// TableValueBuilder assembles the fields of a row.
type TableValueBuilder struct {
	fields [][]byte
}

// NewTableValueBuilder returns an empty builder.
func NewTableValueBuilder() *TableValueBuilder {
	return &TableValueBuilder{}
}

// Add appends a field. The bytes are copied.
func (b *TableValueBuilder) Add(v []byte) *TableValueBuilder {
	b.fields = append(b.fields, append([]byte{}, v...))
	return b
}

// AddString appends a string field.
func (b *TableValueBuilder) AddString(s string) *TableValueBuilder {
	return b.Add([]byte(s))
}

// AddInt64 appends an 8-byte big-endian integer field, the encoding
// fixed-size indexes expect.
func (b *TableValueBuilder) AddInt64(v int64) *TableValueBuilder {
	return b.Add(EncodeInt64(v))
}

// Count returns the number of fields.
func (b *TableValueBuilder) Count() int {
	return len(b.fields)
}

// Field returns field i.
func (b *TableValueBuilder) Field(i int) []byte {
	return b.fields[i]
}

// Bytes encodes the row: the field count and every field length as
// uvarints, then the field bytes back to back.
func (b *TableValueBuilder) Bytes() []byte {
	size := binary.MaxVarintLen64 * (len(b.fields) + 1)
	for _, f := range b.fields {
		size += len(f)
	}
	buf := make([]byte, 0, size)
	buf = binary.AppendUvarint(buf, uint64(len(b.fields)))
	for _, f := range b.fields {
		buf = binary.AppendUvarint(buf, uint64(len(f)))
	}
	for _, f := range b.fields {
		buf = append(buf, f...)
	}
	return buf
}

// TableValueReader reads the fields of a stored row.
type TableValueReader struct {
	id      int64
	data    []byte
	offsets []int
}

// ReadTableValue decodes row bytes produced by TableValueBuilder.Bytes.
// The reader keeps data.
func ReadTableValue(id int64, data []byte) (*TableValueReader, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 || count > uint64(len(data)) {
		return nil, fmt.Errorf("%w: bad field count", ErrInvalidRow)
	}
	off := n
	lengths := make([]uint64, count)
	for i := range lengths {
		l, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad length of field %d", ErrInvalidRow, i)
		}
		lengths[i] = l
		off += n
	}
	offsets := make([]int, count+1)
	offsets[0] = off
	for i, l := range lengths {
		if uint64(len(data)-offsets[i]) < l {
			return nil, fmt.Errorf("%w: field %d overruns the row", ErrInvalidRow, i)
		}
		offsets[i+1] = offsets[i] + int(l)
	}
	if offsets[count] != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidRow, len(data)-offsets[count])
	}
	return &TableValueReader{id: id, data: data, offsets: offsets}, nil
}

// ID returns the row id.
func (r *TableValueReader) ID() int64 {
	return r.id
}

// Count returns the number of fields.
func (r *TableValueReader) Count() int {
	return len(r.offsets) - 1
}

// Read returns field i, or nil when the row has fewer fields.
func (r *TableValueReader) Read(i int) []byte {
	if i < 0 || i >= r.Count() {
		return nil
	}
	return r.data[r.offsets[i]:r.offsets[i+1]]
}

// ReadString returns field i as a string.
func (r *TableValueReader) ReadString(i int) string {
	return string(r.Read(i))
}

// ReadInt64 decodes field i as an 8-byte big-endian integer.
func (r *TableValueReader) ReadInt64(i int) (int64, error) {
	return DecodeInt64(r.Read(i))
}

// Bytes returns the encoded row.
func (r *TableValueReader) Bytes() []byte {
	return r.data
}

// EncodeInt64 returns the 8-byte big-endian form of v.
func EncodeInt64(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

// DecodeInt64 is the inverse of EncodeInt64.
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: integer field has %d bytes, want 8", ErrInvalidIndexValue, len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
