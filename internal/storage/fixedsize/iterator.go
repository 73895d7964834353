package fixedsize

import "math"

// Iterator walks a fixed-size tree in key order. Fixed-size leaves carry
// no sibling links, so the iterator keeps the branch path it came from.
type Iterator struct {
	tree  *Tree
	stack []frame
	leaf  *node
	pos   int
	err   error
}

type frame struct {
	n   *node
	pos int
}

// Iterate returns an unpositioned iterator.
func (t *Tree) Iterate() *Iterator {
	return &Iterator{tree: t}
}

// Seek positions the iterator on the first key >= key.
func (it *Iterator) Seek(key int64) bool {
	it.stack = it.stack[:0]
	it.leaf = nil
	pageNumber := it.tree.state.RootPage
	for depth := 0; depth < maxDepth; depth++ {
		n, err := it.tree.read(pageNumber)
		if err != nil {
			it.err = err
			return false
		}
		if n.isLeaf {
			it.leaf = n
			it.pos, _ = n.search(key)
			it.forward()
			return it.Valid()
		}
		ci := n.childIndex(key)
		it.stack = append(it.stack, frame{n: n, pos: ci})
		pageNumber = n.children[ci]
	}
	it.err = ErrCorruptedPage
	return false
}

// SeekToFirst positions the iterator on the smallest key.
func (it *Iterator) SeekToFirst() bool {
	return it.Seek(math.MinInt64)
}

// SeekToLast positions the iterator on the largest key.
func (it *Iterator) SeekToLast() bool {
	it.stack = it.stack[:0]
	it.leaf = nil
	if !it.descend(it.tree.state.RootPage, false) {
		return false
	}
	it.backward()
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

// Valid reports whether the iterator is on an entry.
func (it *Iterator) Valid() bool {
	return it.err == nil && it.leaf != nil && it.pos >= 0 && it.pos < len(it.leaf.keys)
}

// Key returns the current key.
func (it *Iterator) Key() int64 {
	if !it.Valid() {
		return 0
	}
	return it.leaf.keys[it.pos]
}

// Value returns the current value.
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.leaf.values[it.pos]
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// descend walks from pageNumber down to a leaf along the first or last
// children, pushing the branches it passes.
func (it *Iterator) descend(pageNumber int64, first bool) bool {
	for depth := 0; depth < maxDepth; depth++ {
		n, err := it.tree.read(pageNumber)
		if err != nil {
			it.err = err
			return false
		}
		if n.isLeaf {
			it.leaf = n
			if first {
				it.pos = 0
			} else {
				it.pos = len(n.keys) - 1
			}
			return true
		}
		pos := 0
		if !first {
			pos = len(n.children) - 1
		}
		it.stack = append(it.stack, frame{n: n, pos: pos})
		pageNumber = n.children[pos]
	}
	it.err = ErrCorruptedPage
	return false
}

func (it *Iterator) forward() {
	for it.leaf != nil && it.pos >= len(it.leaf.keys) {
		it.leaf = nil
		for len(it.stack) > 0 {
			top := &it.stack[len(it.stack)-1]
			if top.pos+1 < len(top.n.children) {
				top.pos++
				it.descend(top.n.children[top.pos], true)
				break
			}
			it.stack = it.stack[:len(it.stack)-1]
		}
	}
}

func (it *Iterator) backward() {
	for it.leaf != nil && it.pos < 0 {
		it.leaf = nil
		for len(it.stack) > 0 {
			top := &it.stack[len(it.stack)-1]
			if top.pos > 0 {
				top.pos--
				it.descend(top.n.children[top.pos], false)
				break
			}
			it.stack = it.stack[:len(it.stack)-1]
		}
	}
}
