package btree

import (
	"bytes"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// Delete removes key and whatever it stores. Deleting a missing key is a
// no-op.
func (t *Tree) Delete(key []byte) error {
	if len(key) == 0 {
		return nil
	}
	path, idx, err := t.findPath(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]
	i, found := leaf.findKeyIndex(key)
	if !found {
		return nil
	}

	switch v := leaf.values[i]; v.kind {
	case valueOverflow:
		if err := t.freeOverflow(v); err != nil {
			return err
		}
	case valueMulti:
		nested := t.nested(v)
		if err := nested.Drop(); err != nil {
			return err
		}
		t.absorb(storage.TreeState{}, nested.state)
	}

	leaf.removeLeafAt(i)
	t.state.Entries--
	return t.rebalance(path, idx)
}

// rebalance writes the last node of path after a removal, merging it into
// a sibling while it is under the fill threshold, and collapsing the root
// when it is left with a single child.
func (t *Tree) rebalance(path []*node, idx []int) error {
	for level := len(path) - 1; level > 0; level-- {
		n := path[level]
		if n.entryCount() > 0 && n.serializedSize() >= minFillSize {
			return t.writeNode(n)
		}
		merged, err := t.mergeWithSibling(n, path[level-1], idx[level-1])
		if err != nil {
			return err
		}
		if !merged {
			return t.writeNode(n)
		}
	}
	return t.collapseRoot(path[0])
}

// mergeWithSibling folds n and one of its siblings into a single page,
// preferring the right sibling. It reports false when neither pair fits.
func (t *Tree) mergeWithSibling(n, parent *node, ci int) (bool, error) {
	if ci+1 < len(parent.children) {
		right, err := t.readNode(parent.children[ci+1])
		if err != nil {
			return false, err
		}
		if canMerge(n, right, parent.keys[ci]) {
			return true, t.merge(n, right, parent, ci)
		}
	}
	if ci > 0 {
		left, err := t.readNode(parent.children[ci-1])
		if err != nil {
			return false, err
		}
		if canMerge(left, n, parent.keys[ci-1]) {
			return true, t.merge(left, n, parent, ci-1)
		}
	}
	return false, nil
}

func canMerge(left, right *node, sep []byte) bool {
	size := left.serializedSize() + right.serializedSize() - nodeHeaderSize
	if !left.isLeaf {
		size += len(sep)
	}
	return size <= storage.PageSize
}

// merge moves right into left. li is the index of left in parent.
func (t *Tree) merge(left, right, parent *node, li int) error {
	if left.isLeaf {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
		if right.next != storage.InvalidPage {
			err := t.relink(right.next, func(next *node) { next.prev = left.pageNumber })
			if err != nil {
				return err
			}
		}
	} else {
		left.keys = append(left.keys, bytes.Clone(parent.keys[li]))
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
	}
	if err := t.writeNode(left); err != nil {
		return err
	}
	parent.removeChild(li + 1)
	return t.freeNode(right)
}

// collapseRoot writes the root, or replaces it by its only child for as
// long as it is a branch with one child.
func (t *Tree) collapseRoot(root *node) error {
	if root.isLeaf || len(root.children) > 1 {
		return t.writeNode(root)
	}
	for !root.isLeaf && len(root.children) == 1 {
		child, err := t.readNode(root.children[0])
		if err != nil {
			return err
		}
		if err := t.freeNode(root); err != nil {
			return err
		}
		t.state.RootPage = child.pageNumber
		t.state.Depth--
		root = child
	}
	return nil
}
