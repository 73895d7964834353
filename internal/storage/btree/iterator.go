package btree

import (
	"bytes"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// Iterator walks the keys of a tree in both directions along the leaf
// links. The zero Iterator is empty.
type Iterator struct {
	tree   *Tree
	leaf   *node
	pos    int
	prefix []byte
	end    []byte
	err    error
}

// Iterate returns an unpositioned iterator over the tree.
func (t *Tree) Iterate() *Iterator {
	return &Iterator{tree: t}
}

// SetPrefix restricts the iterator to keys starting with prefix.
func (it *Iterator) SetPrefix(prefix []byte) {
	it.prefix = bytes.Clone(prefix)
}

// SetEndKey makes the iterator stop before keys >= end.
func (it *Iterator) SetEndKey(end []byte) {
	it.end = bytes.Clone(end)
}

// Seek positions the iterator at the first key >= key.
func (it *Iterator) Seek(key []byte) bool {
	if it.tree == nil {
		return false
	}
	if it.prefix != nil && bytes.Compare(key, it.prefix) < 0 {
		key = it.prefix
	}
	it.positionAt(key)
	return it.Valid()
}

// SeekToFirst positions the iterator before all keys and moves to the
// first one.
func (it *Iterator) SeekToFirst() bool {
	return it.Seek(it.prefix)
}

// SeekToLast positions the iterator after all keys and moves back to the
// last one.
func (it *Iterator) SeekToLast() bool {
	if it.tree == nil {
		return false
	}
	upper := it.end
	if succ := prefixSuccessor(it.prefix); succ != nil && (upper == nil || bytes.Compare(succ, upper) < 0) {
		upper = succ
	}
	if upper == nil {
		it.positionLast()
	} else {
		it.positionAt(upper)
		if it.err == nil {
			if it.leaf == nil {
				it.positionLast()
			} else {
				it.pos--
				it.backward()
			}
		}
	}
	return it.Valid()
}

// Next moves to the following key.
func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	it.pos++
	it.forward()
	return it.Valid()
}

// Prev moves to the preceding key.
func (it *Iterator) Prev() bool {
	if !it.Valid() {
		return false
	}
	it.pos--
	it.backward()
	return it.Valid()
}

// Valid reports whether the iterator is positioned on a key within its
// bounds.
func (it *Iterator) Valid() bool {
	if it.err != nil || it.leaf == nil || it.pos < 0 || it.pos >= len(it.leaf.keys) {
		return false
	}
	key := it.leaf.keys[it.pos]
	if it.prefix != nil && !bytes.HasPrefix(key, it.prefix) {
		return false
	}
	return it.end == nil || bytes.Compare(key, it.end) < 0
}

// Key returns the current key.
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.leaf.keys[it.pos]
}

// Value returns the current value, reading overflow pages as needed.
func (it *Iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, it.err
	}
	v := it.leaf.values[it.pos]
	switch v.kind {
	case valueInline:
		return v.data, nil
	case valueOverflow:
		return it.tree.readOverflow(v)
	default:
		return nil, ErrMultiValue
	}
}

// Version returns the version of the current entry.
func (it *Iterator) Version() uint16 {
	if !it.Valid() {
		return 0
	}
	return it.leaf.values[it.pos].version
}

// Err returns the first error hit while moving.
func (it *Iterator) Err() error {
	return it.err
}

// positionAt places the iterator on the first key >= key, ignoring bounds.
func (it *Iterator) positionAt(key []byte) {
	path, _, err := it.tree.findPath(key)
	if err != nil {
		it.fail(err)
		return
	}
	it.leaf = path[len(path)-1]
	it.pos, _ = it.leaf.findKeyIndex(key)
	it.forward()
}

func (it *Iterator) positionLast() {
	pageNumber := it.tree.state.RootPage
	for depth := 0; depth < maxDepth; depth++ {
		n, err := it.tree.readNode(pageNumber)
		if err != nil {
			it.fail(err)
			return
		}
		if n.isLeaf {
			it.leaf = n
			it.pos = len(n.keys) - 1
			it.backward()
			return
		}
		pageNumber = n.children[len(n.children)-1]
	}
	it.fail(ErrCorruptedNode)
}

// forward skips past the end of exhausted leaves.
func (it *Iterator) forward() {
	for it.leaf != nil && it.pos >= len(it.leaf.keys) {
		if it.leaf.next == storage.InvalidPage {
			it.leaf = nil
			return
		}
		n, err := it.tree.readNode(it.leaf.next)
		if err != nil {
			it.fail(err)
			return
		}
		it.leaf, it.pos = n, 0
	}
}

// backward skips before the start of exhausted leaves.
func (it *Iterator) backward() {
	for it.leaf != nil && it.pos < 0 {
		if it.leaf.prev == storage.InvalidPage {
			it.leaf = nil
			return
		}
		n, err := it.tree.readNode(it.leaf.prev)
		if err != nil {
			it.fail(err)
			return
		}
		it.leaf, it.pos = n, len(n.keys)-1
	}
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.leaf = nil
}

// prefixSuccessor returns the smallest key greater than every key with
// the given prefix, or nil when there is none.
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			succ := bytes.Clone(prefix[:i+1])
			succ[i]++
			return succ
		}
	}
	return nil
}
