package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PageSize is the size of a page in bytes.
const PageSize = 4096

// PageHeaderSize is the size of the page header in bytes.
const PageHeaderSize = 32

// InvalidPage is the page number used for "no page".
const InvalidPage int64 = 0

// PageFlags describes what a page holds.
type PageFlags uint8

const (
	// PageFlagBranch marks an internal page of a variable-size tree.
	PageFlagBranch PageFlags = 1 << iota
	// PageFlagLeaf marks a leaf page of a variable-size tree.
	PageFlagLeaf
	// PageFlagOverflow marks the first page of an overflow run.
	PageFlagOverflow
	// PageFlagFixedSizeBranch marks an internal page of a fixed-size tree.
	PageFlagFixedSizeBranch
	// PageFlagFixedSizeLeaf marks a leaf page of a fixed-size tree.
	PageFlagFixedSizeLeaf
	// PageFlagFreelist marks the first page of a freelist run.
	PageFlagFreelist
)

// String returns the string representation of the flags.
func (f PageFlags) String() string {
	switch f {
	case PageFlagBranch:
		return "Branch"
	case PageFlagLeaf:
		return "Leaf"
	case PageFlagOverflow:
		return "Overflow"
	case PageFlagFixedSizeBranch:
		return "FixedSizeBranch"
	case PageFlagFixedSizeLeaf:
		return "FixedSizeLeaf"
	case PageFlagFreelist:
		return "Freelist"
	case 0:
		return "None"
	default:
		return fmt.Sprintf("PageFlags(%#x)", uint8(f))
	}
}

// Errors for page operations.
var (
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidPageType = errors.New("invalid page type")
	ErrPageMismatch    = errors.New("page number mismatch")
)

// Page is a typed view over the raw bytes of one page, or of an overflow
// run of several pages. It never copies; writes go straight to the
// underlying buffer.
//
// Header layout (little endian):
//   - Bytes 0-7:   PageNumber (int64)
//   - Byte 8:      Flags (PageFlags)
//   - Byte 9:      reserved
//   - Bytes 10-11: Lower (uint16), end of the entry offsets array
//   - Bytes 12-13: Upper (uint16), start of the entry data area
//   - Bytes 14-15: NumberOfEntries (uint16), fixed-size tree pages
//   - Bytes 16-19: OverflowSize (int32), payload bytes of an overflow run
//   - Bytes 20-21: ValueSize (uint16), fixed-size tree value width
//   - Bytes 22-31: reserved
type Page struct {
	buf []byte
}

// NewPage wraps buf, which must hold at least one page.
func NewPage(buf []byte) Page {
	return Page{buf: buf}
}

// IsNil reports whether the page has no backing buffer.
func (p Page) IsNil() bool {
	return p.buf == nil
}

// Bytes returns the whole backing buffer, header included.
func (p Page) Bytes() []byte {
	return p.buf
}

// Data returns the bytes after the header.
func (p Page) Data() []byte {
	return p.buf[PageHeaderSize:]
}

// Size returns the length of the backing buffer.
func (p Page) Size() int {
	return len(p.buf)
}

// PageNumber returns the page number stored in the header.
func (p Page) PageNumber() int64 {
	return int64(binary.LittleEndian.Uint64(p.buf[0:8]))
}

// SetPageNumber sets the page number.
func (p Page) SetPageNumber(n int64) {
	binary.LittleEndian.PutUint64(p.buf[0:8], uint64(n))
}

// Flags returns the page flags.
func (p Page) Flags() PageFlags {
	return PageFlags(p.buf[8])
}

// SetFlags sets the page flags.
func (p Page) SetFlags(f PageFlags) {
	p.buf[8] = byte(f)
}

// IsBranch reports whether this is a variable-size tree branch.
func (p Page) IsBranch() bool { return p.Flags() == PageFlagBranch }

// IsLeaf reports whether this is a variable-size tree leaf.
func (p Page) IsLeaf() bool { return p.Flags() == PageFlagLeaf }

// IsOverflow reports whether this is the head of an overflow run.
func (p Page) IsOverflow() bool { return p.Flags() == PageFlagOverflow }

// Lower returns the end of the offsets array.
func (p Page) Lower() uint16 {
	return binary.LittleEndian.Uint16(p.buf[10:12])
}

// SetLower sets the end of the offsets array.
func (p Page) SetLower(v uint16) {
	binary.LittleEndian.PutUint16(p.buf[10:12], v)
}

// Upper returns the start of the entry data area.
func (p Page) Upper() uint16 {
	return binary.LittleEndian.Uint16(p.buf[12:14])
}

// SetUpper sets the start of the entry data area.
func (p Page) SetUpper(v uint16) {
	binary.LittleEndian.PutUint16(p.buf[12:14], v)
}

// NumberOfEntries returns the entry count of a fixed-size tree page.
func (p Page) NumberOfEntries() int {
	return int(binary.LittleEndian.Uint16(p.buf[14:16]))
}

// SetNumberOfEntries sets the entry count.
func (p Page) SetNumberOfEntries(n int) {
	binary.LittleEndian.PutUint16(p.buf[14:16], uint16(n))
}

// OverflowSize returns the payload size of an overflow or freelist run.
func (p Page) OverflowSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.buf[16:20])))
}

// SetOverflowSize sets the payload size.
func (p Page) SetOverflowSize(n int) {
	binary.LittleEndian.PutUint32(p.buf[16:20], uint32(int32(n)))
}

// ValueSize returns the value width of a fixed-size tree page.
func (p Page) ValueSize() int {
	return int(binary.LittleEndian.Uint16(p.buf[20:22]))
}

// SetValueSize sets the value width.
func (p Page) SetValueSize(n int) {
	binary.LittleEndian.PutUint16(p.buf[20:22], uint16(n))
}

// Reset zeroes the page and writes a fresh header.
func (p Page) Reset(pageNumber int64, flags PageFlags) {
	clear(p.buf)
	p.SetPageNumber(pageNumber)
	p.SetFlags(flags)
	p.SetLower(PageHeaderSize)
	p.SetUpper(uint16(min(len(p.buf), PageSize)))
}

// NumberOfPages returns how many pages the page spans: more than one only
// for overflow and freelist runs.
func (p Page) NumberOfPages() int {
	switch p.Flags() {
	case PageFlagOverflow, PageFlagFreelist:
		return PagesForSize(p.OverflowSize())
	default:
		return 1
	}
}

// PagesForSize returns the number of pages needed to hold a header plus
// size payload bytes.
func PagesForSize(size int) int {
	return (PageHeaderSize + size + PageSize - 1) / PageSize
}
