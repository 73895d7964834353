// Package fixedsize implements a B+ tree keyed by int64 whose values all
// have the same width. Tables use it for their fixed-size indexes.
package fixedsize

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// MaxValueSize is the widest value a fixed-size tree accepts.
const MaxValueSize = 1024

const (
	keySize         = 8
	branchEntrySize = keySize + 8
	maxDepth        = 64
)

// Errors.
var (
	ErrInvalidValueSize = errors.New("fixed-size tree: invalid value size")
	ErrCorruptedPage    = errors.New("fixed-size tree: corrupted page")
)

// node is a decoded fixed-size tree page. In branches keys[0] is a lower
// sentinel and keys[i], i > 0, is the smallest key under children[i].
type node struct {
	pageNumber int64
	isLeaf     bool
	keys       []int64
	values     [][]byte
	children   []int64
}

func leafCapacity(valueSize int) int {
	return (storage.PageSize - storage.PageHeaderSize) / (keySize + valueSize)
}

func branchCapacity() int {
	return (storage.PageSize - storage.PageHeaderSize) / branchEntrySize
}

func (n *node) capacity(valueSize int) int {
	if n.isLeaf {
		return leafCapacity(valueSize)
	}
	return branchCapacity()
}

// search returns the position of key in a leaf, or where it would go.
func (n *node) search(key int64) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] >= key })
	return i, i < len(n.keys) && n.keys[i] == key
}

// childIndex returns the index of the child covering key.
func (n *node) childIndex(key int64) int {
	i := sort.Search(len(n.keys)-1, func(i int) bool { return n.keys[i+1] > key })
	return i
}

func (n *node) insertAt(i int, key int64, value []byte, child int64) {
	n.keys = append(n.keys, 0)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = key
	if n.isLeaf {
		n.values = append(n.values, nil)
		copy(n.values[i+1:], n.values[i:])
		n.values[i] = value
		return
	}
	n.children = append(n.children, 0)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
}

func (n *node) removeAt(i int) {
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	if n.isLeaf {
		n.values = append(n.values[:i], n.values[i+1:]...)
		return
	}
	n.children = append(n.children[:i], n.children[i+1:]...)
}

// decode parses a page. Values are copied out of the page.
func decode(p storage.Page, valueSize int) (*node, error) {
	n := &node{pageNumber: p.PageNumber()}
	switch p.Flags() {
	case storage.PageFlagFixedSizeLeaf:
		n.isLeaf = true
	case storage.PageFlagFixedSizeBranch:
	default:
		return nil, fmt.Errorf("%w: page %d is %s", storage.ErrInvalidPageType, p.PageNumber(), p.Flags())
	}
	count := p.NumberOfEntries()
	if n.isLeaf && p.ValueSize() != valueSize {
		return nil, fmt.Errorf("%w: page %d has value size %d, want %d", ErrCorruptedPage, n.pageNumber, p.ValueSize(), valueSize)
	}
	if count > n.capacity(valueSize) {
		return nil, fmt.Errorf("%w: page %d holds %d entries", ErrCorruptedPage, n.pageNumber, count)
	}

	data := p.Data()
	n.keys = make([]int64, count)
	if n.isLeaf {
		stride := keySize + valueSize
		values := make([]byte, count*valueSize)
		n.values = make([][]byte, count)
		for i := 0; i < count; i++ {
			e := data[i*stride:]
			n.keys[i] = int64(binary.BigEndian.Uint64(e))
			n.values[i] = values[i*valueSize : (i+1)*valueSize : (i+1)*valueSize]
			copy(n.values[i], e[keySize:stride])
		}
		return n, nil
	}
	n.children = make([]int64, count)
	for i := 0; i < count; i++ {
		e := data[i*branchEntrySize:]
		n.keys[i] = int64(binary.BigEndian.Uint64(e))
		n.children[i] = int64(binary.LittleEndian.Uint64(e[keySize:]))
	}
	return n, nil
}

// encodeTo writes the node into p.
func (n *node) encodeTo(p storage.Page, valueSize int) {
	flags := storage.PageFlagFixedSizeBranch
	if n.isLeaf {
		flags = storage.PageFlagFixedSizeLeaf
	}
	p.Reset(n.pageNumber, flags)
	p.SetNumberOfEntries(len(n.keys))
	p.SetValueSize(valueSize)

	data := p.Data()
	if n.isLeaf {
		stride := keySize + valueSize
		for i, k := range n.keys {
			e := data[i*stride:]
			binary.BigEndian.PutUint64(e, uint64(k))
			copy(e[keySize:stride], n.values[i])
		}
		p.SetLower(uint16(storage.PageHeaderSize + len(n.keys)*stride))
		return
	}
	for i, k := range n.keys {
		e := data[i*branchEntrySize:]
		binary.BigEndian.PutUint64(e, uint64(k))
		binary.LittleEndian.PutUint64(e[keySize:], uint64(n.children[i]))
	}
	p.SetLower(uint16(storage.PageHeaderSize + len(n.keys)*branchEntrySize))
}
