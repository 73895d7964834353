package fixedsize

import (
	"fmt"
	"math"

	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/btree"
)

// Tree is a fixed-size tree bound to one transaction.
type Tree struct {
	tx      btree.PageAccessor
	name    string
	state   storage.TreeState
	changed bool
}

// Create allocates an empty tree storing values of valueSize bytes.
func Create(tx btree.PageAccessor, name string, valueSize int) (*Tree, error) {
	if valueSize < 0 || valueSize > MaxValueSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidValueSize, valueSize)
	}
	t := &Tree{
		tx:   tx,
		name: name,
		state: storage.TreeState{
			Type:      storage.RootObjectFixedSizeTree,
			ValueSize: uint16(valueSize),
			Depth:     1,
		},
	}
	root, err := t.allocate(true)
	if err != nil {
		return nil, err
	}
	t.state.RootPage = root.pageNumber
	if err := t.write(root); err != nil {
		return nil, err
	}
	return t, nil
}

// Open binds an existing tree to tx.
func Open(tx btree.PageAccessor, name string, state storage.TreeState) *Tree {
	return &Tree{tx: tx, name: name, state: state}
}

// Name returns the tree name.
func (t *Tree) Name() string { return t.name }

// State returns the current tree state.
func (t *Tree) State() storage.TreeState { return t.state }

// Changed reports whether the tree was modified.
func (t *Tree) Changed() bool { return t.changed }

// Count returns the number of entries.
func (t *Tree) Count() int64 { return t.state.Entries }

// ValueSize returns the width of every value.
func (t *Tree) ValueSize() int { return int(t.state.ValueSize) }

// Read returns the value under key.
func (t *Tree) Read(key int64) ([]byte, bool, error) {
	path, _, err := t.findPath(key)
	if err != nil {
		return nil, false, err
	}
	leaf := path[len(path)-1]
	i, found := leaf.search(key)
	if !found {
		return nil, false, nil
	}
	return leaf.values[i], true, nil
}

// Contains reports whether key is present.
func (t *Tree) Contains(key int64) (bool, error) {
	_, found, err := t.Read(key)
	return found, err
}

// Add stores value under key. Values shorter than the tree's value size
// are zero padded; longer ones are rejected.
func (t *Tree) Add(key int64, value []byte) error {
	if len(value) > t.ValueSize() {
		return fmt.Errorf("%w: %d bytes for a tree of %d", ErrInvalidValueSize, len(value), t.ValueSize())
	}
	v := make([]byte, t.ValueSize())
	copy(v, value)

	path, idx, err := t.findPath(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]
	i, found := leaf.search(key)
	if found {
		leaf.values[i] = v
		return t.write(leaf)
	}
	leaf.insertAt(i, key, v, 0)
	t.state.Entries++
	return t.splitAndPropagate(path, idx)
}

// Delete removes key and reports whether it was present.
func (t *Tree) Delete(key int64) (bool, error) {
	path, idx, err := t.findPath(key)
	if err != nil {
		return false, err
	}
	leaf := path[len(path)-1]
	i, found := leaf.search(key)
	if !found {
		return false, nil
	}
	leaf.removeAt(i)
	t.state.Entries--
	return true, t.rebalance(path, idx)
}

// Drop frees every page of the tree.
func (t *Tree) Drop() error {
	if err := t.drop(t.state.RootPage, 0); err != nil {
		return err
	}
	t.state.RootPage = storage.InvalidPage
	t.state.Depth = 0
	t.state.Entries = 0
	t.changed = true
	return nil
}

func (t *Tree) drop(pageNumber int64, depth int) error {
	if depth >= maxDepth {
		return fmt.Errorf("%w: tree %q deeper than %d levels", ErrCorruptedPage, t.name, maxDepth)
	}
	n, err := t.read(pageNumber)
	if err != nil {
		return err
	}
	for _, child := range n.children {
		if err := t.drop(child, depth+1); err != nil {
			return err
		}
	}
	return t.free(n)
}

func (t *Tree) findPath(key int64) ([]*node, []int, error) {
	var path []*node
	var idx []int
	pageNumber := t.state.RootPage
	for depth := 0; depth < maxDepth; depth++ {
		n, err := t.read(pageNumber)
		if err != nil {
			return nil, nil, err
		}
		path = append(path, n)
		if n.isLeaf {
			return path, idx, nil
		}
		if len(n.children) == 0 {
			return nil, nil, fmt.Errorf("%w: branch page %d is empty", ErrCorruptedPage, n.pageNumber)
		}
		ci := n.childIndex(key)
		idx = append(idx, ci)
		pageNumber = n.children[ci]
	}
	return nil, nil, fmt.Errorf("%w: tree %q deeper than %d levels", ErrCorruptedPage, t.name, maxDepth)
}

func (t *Tree) read(pageNumber int64) (*node, error) {
	p, err := t.tx.GetPage(pageNumber)
	if err != nil {
		return nil, err
	}
	return decode(p, t.ValueSize())
}

func (t *Tree) write(n *node) error {
	p, err := t.tx.ModifyPage(n.pageNumber)
	if err != nil {
		return err
	}
	n.encodeTo(p, t.ValueSize())
	t.changed = true
	return nil
}

func (t *Tree) allocate(leaf bool) (*node, error) {
	p, err := t.tx.AllocatePage(1)
	if err != nil {
		return nil, err
	}
	if leaf {
		t.state.LeafPages++
	} else {
		t.state.BranchPages++
	}
	t.changed = true
	return &node{pageNumber: p.PageNumber(), isLeaf: leaf}, nil
}

func (t *Tree) free(n *node) error {
	if err := t.tx.FreePage(n.pageNumber, 1); err != nil {
		return err
	}
	if n.isLeaf {
		t.state.LeafPages--
	} else {
		t.state.BranchPages--
	}
	t.changed = true
	return nil
}

// splitAndPropagate writes the last node of path, splitting full nodes on
// the way up.
func (t *Tree) splitAndPropagate(path []*node, idx []int) error {
	for level := len(path) - 1; ; level-- {
		n := path[level]
		if len(n.keys) <= n.capacity(t.ValueSize()) {
			return t.write(n)
		}

		right, err := t.allocate(n.isLeaf)
		if err != nil {
			return err
		}
		mid := len(n.keys) / 2
		right.keys = append([]int64(nil), n.keys[mid:]...)
		if n.isLeaf {
			right.values = append([][]byte(nil), n.values[mid:]...)
			n.values = n.values[:mid:mid]
		} else {
			right.children = append([]int64(nil), n.children[mid:]...)
			n.children = n.children[:mid:mid]
		}
		n.keys = n.keys[:mid:mid]
		sep := right.keys[0]

		if err := t.write(n); err != nil {
			return err
		}
		if err := t.write(right); err != nil {
			return err
		}

		if level == 0 {
			root, err := t.allocate(false)
			if err != nil {
				return err
			}
			root.keys = []int64{math.MinInt64, sep}
			root.children = []int64{n.pageNumber, right.pageNumber}
			if err := t.write(root); err != nil {
				return err
			}
			t.state.RootPage = root.pageNumber
			t.state.Depth++
			return nil
		}
		path[level-1].insertAt(idx[level-1]+1, sep, nil, right.pageNumber)
	}
}

// rebalance writes the last node of path after a removal, merging or
// redistributing with a sibling when it is less than half full.
func (t *Tree) rebalance(path []*node, idx []int) error {
	for level := len(path) - 1; level > 0; level-- {
		n := path[level]
		minimum := n.capacity(t.ValueSize()) / 2
		if len(n.keys) >= minimum {
			return t.write(n)
		}

		parent := path[level-1]
		ci := idx[level-1]
		if len(parent.children) < 2 {
			return t.write(n)
		}
		li := ci
		if ci+1 >= len(parent.children) {
			li = ci - 1
		}
		var left, right *node
		var err error
		if li == ci {
			left = n
			if right, err = t.read(parent.children[ci+1]); err != nil {
				return err
			}
		} else {
			right = n
			if left, err = t.read(parent.children[li]); err != nil {
				return err
			}
		}

		merged, err := t.combine(left, right, parent, li)
		if err != nil {
			return err
		}
		if !merged {
			return t.write(parent)
		}
	}
	return t.collapseRoot(path[0])
}

// combine joins left and right (children li and li+1 of parent). When the
// entries fit in one page right is freed, otherwise they are split evenly.
// It reports whether a merge happened.
func (t *Tree) combine(left, right, parent *node, li int) (bool, error) {
	keys := append([]int64(nil), left.keys...)
	if left.isLeaf {
		keys = append(keys, right.keys...)
	} else {
		keys = append(keys, parent.keys[li+1])
		keys = append(keys, right.keys[1:]...)
	}

	if len(keys) <= left.capacity(t.ValueSize()) {
		left.keys = keys
		if left.isLeaf {
			left.values = append(left.values, right.values...)
		} else {
			left.children = append(left.children, right.children...)
		}
		if err := t.write(left); err != nil {
			return false, err
		}
		parent.removeAt(li + 1)
		return true, t.free(right)
	}

	mid := len(keys) / 2
	if left.isLeaf {
		values := append(append([][]byte(nil), left.values...), right.values...)
		left.values, right.values = values[:mid:mid], values[mid:]
	} else {
		children := append(append([]int64(nil), left.children...), right.children...)
		left.children, right.children = children[:mid:mid], children[mid:]
	}
	left.keys, right.keys = keys[:mid:mid], keys[mid:]
	parent.keys[li+1] = right.keys[0]
	if err := t.write(left); err != nil {
		return false, err
	}
	return false, t.write(right)
}

func (t *Tree) collapseRoot(root *node) error {
	if root.isLeaf || len(root.children) > 1 {
		return t.write(root)
	}
	for !root.isLeaf && len(root.children) == 1 {
		child, err := t.read(root.children[0])
		if err != nil {
			return err
		}
		if err := t.free(root); err != nil {
			return err
		}
		t.state.RootPage = child.pageNumber
		t.state.Depth--
		root = child
	}
	return nil
}
