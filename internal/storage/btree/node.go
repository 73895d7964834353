package btree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// Tree limits.
const (
	// MaxKeySize is the maximum size of a single key in bytes.
	MaxKeySize = 512

	// MaxInlineValueSize is the largest value stored inside a leaf page.
	// Anything bigger goes to an overflow run.
	MaxInlineValueSize = storage.PageSize / 4

	// nodeHeaderSize is the page header plus the prev/next leaf links.
	nodeHeaderSize = storage.PageHeaderSize + 16

	slotSize = 2

	// minFillSize is the encoded size under which a non-root node is
	// merged into a sibling.
	minFillSize = storage.PageSize / 4

	maxDepth = 64
)

// Node errors.
var (
	ErrEmptyKey      = errors.New("key cannot be empty")
	ErrKeyTooLarge   = fmt.Errorf("key exceeds maximum size of %d bytes", MaxKeySize)
	ErrCorruptedNode = errors.New("corrupted node data")
	ErrNotMultiValue = errors.New("key does not hold multiple values")
	ErrMultiValue    = errors.New("key holds multiple values")
)

type valueKind uint8

const (
	valueInline valueKind = iota + 1
	valueOverflow
	valueMulti
)

// leafValue is the decoded value part of a leaf entry.
type leafValue struct {
	kind    valueKind
	version uint16
	data    []byte // inline bytes
	page    int64  // overflow run or nested tree root
	size    int64  // overflow length or nested entry count
}

// node is a decoded tree page.
//
// For branches keys[i] separates children[i] and children[i+1], so
// len(children) == len(keys)+1. For leaves keys[i] belongs to values[i].
type node struct {
	pageNumber int64
	isLeaf     bool
	keys       [][]byte
	children   []int64
	values     []leafValue
	prev       int64
	next       int64
}

// findKeyIndex returns the position of key in a leaf, or where it would
// be inserted.
func (n *node) findKeyIndex(key []byte) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) >= 0
	})
	return i, i < len(n.keys) && bytes.Equal(n.keys[i], key)
}

// childIndex returns the index of the child subtree covering key.
func (n *node) childIndex(key []byte) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) > 0
	})
}

func (n *node) entryCount() int {
	if n.isLeaf {
		return len(n.keys)
	}
	return len(n.children)
}

func (n *node) insertLeafAt(i int, key []byte, v leafValue) {
	n.keys = append(n.keys, nil)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = key
	n.values = append(n.values, leafValue{})
	copy(n.values[i+1:], n.values[i:])
	n.values[i] = v
}

func (n *node) removeLeafAt(i int) {
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.values = append(n.values[:i], n.values[i+1:]...)
}

// insertChild places sep and child right after the child at index ci.
func (n *node) insertChild(ci int, sep []byte, child int64) {
	n.keys = append(n.keys, nil)
	copy(n.keys[ci+1:], n.keys[ci:])
	n.keys[ci] = sep
	n.children = append(n.children, 0)
	copy(n.children[ci+2:], n.children[ci+1:])
	n.children[ci+1] = child
}

// removeChild drops the child at index ci (ci > 0) and its separator.
func (n *node) removeChild(ci int) {
	n.keys = append(n.keys[:ci-1], n.keys[ci:]...)
	n.children = append(n.children[:ci], n.children[ci+1:]...)
}

func leafEntrySize(key []byte, v leafValue) int {
	size := 5 + len(key)
	if v.kind == valueInline {
		size += 4 + len(v.data)
	} else {
		size += 16
	}
	return size
}

func branchEntrySize(key []byte) int {
	return 2 + len(key) + 8
}

// entrySize returns the encoded size of entry i, slot included.
func (n *node) entrySize(i int) int {
	if n.isLeaf {
		return leafEntrySize(n.keys[i], n.values[i]) + slotSize
	}
	if i == 0 {
		return branchEntrySize(nil) + slotSize
	}
	return branchEntrySize(n.keys[i-1]) + slotSize
}

// serializedSize returns the number of page bytes the node needs.
func (n *node) serializedSize() int {
	size := nodeHeaderSize
	for i := 0; i < n.entryCount(); i++ {
		size += n.entrySize(i)
	}
	return size
}

func (n *node) fitsInPage() bool {
	return n.serializedSize() <= storage.PageSize
}

// encodeTo writes the node into p, going through scratch so that keys
// and values aliasing p survive.
func (n *node) encodeTo(p storage.Page, scratch []byte) {
	buf := scratch[:storage.PageSize]
	out := storage.NewPage(buf)
	flags := storage.PageFlagBranch
	if n.isLeaf {
		flags = storage.PageFlagLeaf
	}
	out.Reset(n.pageNumber, flags)
	binary.LittleEndian.PutUint64(buf[storage.PageHeaderSize:], uint64(n.prev))
	binary.LittleEndian.PutUint64(buf[storage.PageHeaderSize+8:], uint64(n.next))

	lower, upper := nodeHeaderSize, storage.PageSize
	count := n.entryCount()
	for i := 0; i < count; i++ {
		size := n.entrySize(i) - slotSize
		upper -= size
		binary.LittleEndian.PutUint16(buf[lower:], uint16(upper))
		lower += slotSize
		n.writeEntry(buf[upper:upper+size], i)
	}
	out.SetLower(uint16(lower))
	out.SetUpper(uint16(upper))
	out.SetNumberOfEntries(count)
	copy(p.Bytes()[:storage.PageSize], buf)
}

func (n *node) writeEntry(b []byte, i int) {
	if !n.isLeaf {
		var key []byte
		if i > 0 {
			key = n.keys[i-1]
		}
		binary.LittleEndian.PutUint16(b, uint16(len(key)))
		copy(b[2:], key)
		binary.LittleEndian.PutUint64(b[2+len(key):], uint64(n.children[i]))
		return
	}

	key, v := n.keys[i], n.values[i]
	b[0] = byte(v.kind)
	binary.LittleEndian.PutUint16(b[1:3], v.version)
	binary.LittleEndian.PutUint16(b[3:5], uint16(len(key)))
	copy(b[5:], key)
	rest := b[5+len(key):]
	if v.kind == valueInline {
		binary.LittleEndian.PutUint32(rest, uint32(len(v.data)))
		copy(rest[4:], v.data)
		return
	}
	binary.LittleEndian.PutUint64(rest, uint64(v.page))
	binary.LittleEndian.PutUint64(rest[8:], uint64(v.size))
}

// decodeNode parses a tree page. Keys and inline values alias the page.
func decodeNode(p storage.Page) (*node, error) {
	buf := p.Bytes()
	if len(buf) < storage.PageSize {
		return nil, ErrCorruptedNode
	}
	n := &node{pageNumber: p.PageNumber()}
	switch p.Flags() {
	case storage.PageFlagLeaf:
		n.isLeaf = true
	case storage.PageFlagBranch:
	default:
		return nil, fmt.Errorf("%w: page %d is %s", storage.ErrInvalidPageType, p.PageNumber(), p.Flags())
	}
	n.prev = int64(binary.LittleEndian.Uint64(buf[storage.PageHeaderSize:]))
	n.next = int64(binary.LittleEndian.Uint64(buf[storage.PageHeaderSize+8:]))

	count := p.NumberOfEntries()
	if nodeHeaderSize+count*slotSize > storage.PageSize {
		return nil, fmt.Errorf("%w: page %d claims %d entries", ErrCorruptedNode, n.pageNumber, count)
	}
	if n.isLeaf {
		n.keys = make([][]byte, 0, count)
		n.values = make([]leafValue, 0, count)
	} else {
		if count == 0 {
			return nil, fmt.Errorf("%w: branch page %d has no children", ErrCorruptedNode, n.pageNumber)
		}
		n.keys = make([][]byte, 0, count-1)
		n.children = make([]int64, 0, count)
	}

	for i := 0; i < count; i++ {
		off := int(binary.LittleEndian.Uint16(buf[nodeHeaderSize+i*slotSize:]))
		if off < nodeHeaderSize || off >= storage.PageSize {
			return nil, fmt.Errorf("%w: page %d entry %d at offset %d", ErrCorruptedNode, n.pageNumber, i, off)
		}
		if err := n.decodeEntry(buf[off:storage.PageSize], i); err != nil {
			return nil, fmt.Errorf("%w: page %d entry %d", err, n.pageNumber, i)
		}
	}
	return n, nil
}

func (n *node) decodeEntry(e []byte, i int) error {
	if !n.isLeaf {
		if len(e) < 2 {
			return ErrCorruptedNode
		}
		klen := int(binary.LittleEndian.Uint16(e))
		if 2+klen+8 > len(e) {
			return ErrCorruptedNode
		}
		child := int64(binary.LittleEndian.Uint64(e[2+klen:]))
		if i > 0 {
			n.keys = append(n.keys, e[2:2+klen])
		}
		n.children = append(n.children, child)
		return nil
	}

	if len(e) < 5 {
		return ErrCorruptedNode
	}
	v := leafValue{
		kind:    valueKind(e[0]),
		version: binary.LittleEndian.Uint16(e[1:3]),
	}
	klen := int(binary.LittleEndian.Uint16(e[3:5]))
	if 5+klen > len(e) {
		return ErrCorruptedNode
	}
	key := e[5 : 5+klen]
	rest := e[5+klen:]
	switch v.kind {
	case valueInline:
		if len(rest) < 4 {
			return ErrCorruptedNode
		}
		vlen := int(binary.LittleEndian.Uint32(rest))
		if 4+vlen > len(rest) {
			return ErrCorruptedNode
		}
		v.data = rest[4 : 4+vlen]
	case valueOverflow, valueMulti:
		if len(rest) < 16 {
			return ErrCorruptedNode
		}
		v.page = int64(binary.LittleEndian.Uint64(rest))
		v.size = int64(binary.LittleEndian.Uint64(rest[8:]))
	default:
		return ErrCorruptedNode
	}
	n.keys = append(n.keys, key)
	n.values = append(n.values, v)
	return nil
}

// splitPoint returns the index that splits entries [0,count) into two
// non-empty halves with the smallest larger half.
func (n *node) splitPoint() int {
	count := n.entryCount()
	sizes := make([]int, count)
	total := 0
	for i := range sizes {
		sizes[i] = n.entrySize(i)
		total += sizes[i]
	}
	best, bestMax := 1, total
	left := 0
	for i := 1; i < count; i++ {
		left += sizes[i-1]
		right := total - left
		if !n.isLeaf {
			// the entry at i moves up as a separator
			right -= sizes[i]
		}
		if m := max(left, right); m < bestMax {
			best, bestMax = i, m
		}
	}
	return best
}

func checkKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > MaxKeySize {
		return ErrKeyTooLarge
	}
	return nil
}

// nextVersion increments a node version, skipping 0 which means missing.
func nextVersion(v uint16) uint16 {
	v++
	if v == 0 {
		v = 1
	}
	return v
}
