package btree

import (
	"fmt"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// Tree is a variable-size B+ tree bound to one transaction.
//
// Slices returned by Read and by iterators point into transaction pages.
// They stay valid until the next modification of the tree in the same
// transaction, or until the transaction ends.
type Tree struct {
	tx      PageAccessor
	name    string
	state   storage.TreeState
	scratch []byte
	changed bool
}

// Create allocates an empty tree made of a single leaf.
func Create(tx PageAccessor, name string) (*Tree, error) {
	t := &Tree{
		tx:      tx,
		name:    name,
		state:   storage.TreeState{Type: storage.RootObjectVariableSizeTree, Depth: 1},
		scratch: make([]byte, storage.PageSize),
	}
	root, err := t.allocateNode(true)
	if err != nil {
		return nil, err
	}
	t.state.RootPage = root.pageNumber
	if err := t.writeNode(root); err != nil {
		return nil, err
	}
	return t, nil
}

// Open binds an existing tree, described by state, to tx.
func Open(tx PageAccessor, name string, state storage.TreeState) *Tree {
	return &Tree{
		tx:      tx,
		name:    name,
		state:   state,
		scratch: make([]byte, storage.PageSize),
	}
}

// Name returns the name the tree was opened under.
func (t *Tree) Name() string {
	return t.name
}

// State returns the current tree state.
func (t *Tree) State() storage.TreeState {
	return t.state
}

// Changed reports whether the tree was modified since it was opened.
func (t *Tree) Changed() bool {
	return t.changed
}

// Count returns the number of keys in the tree.
func (t *Tree) Count() int64 {
	return t.state.Entries
}

// Read returns the value stored under key. Multi-value keys fail with
// ErrMultiValue; use MultiRead for them.
func (t *Tree) Read(key []byte) ([]byte, bool, error) {
	v, found, err := t.lookup(key)
	if err != nil || !found {
		return nil, false, err
	}
	switch v.kind {
	case valueInline:
		return v.data, true, nil
	case valueOverflow:
		data, err := t.readOverflow(v)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	default:
		return nil, false, ErrMultiValue
	}
}

// ReadVersion returns the version of the entry under key, or 0 when the
// key does not exist.
func (t *Tree) ReadVersion(key []byte) (uint16, error) {
	v, found, err := t.lookup(key)
	if err != nil || !found {
		return 0, err
	}
	return v.version, nil
}

// Add stores value under key, replacing any previous value and bumping
// the entry version.
func (t *Tree) Add(key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	path, idx, err := t.findPath(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]
	i, found := leaf.findKeyIndex(key)

	v := leafValue{kind: valueInline, version: 1, data: value}
	if found {
		old := leaf.values[i]
		switch old.kind {
		case valueMulti:
			return ErrMultiValue
		case valueOverflow:
			if err := t.freeOverflow(old); err != nil {
				return err
			}
		}
		v.version = nextVersion(old.version)
	}
	if len(value) > MaxInlineValueSize {
		if v, err = t.writeOverflow(value, v.version); err != nil {
			return err
		}
	}

	if found {
		leaf.values[i] = v
	} else {
		leaf.insertLeafAt(i, key, v)
		t.state.Entries++
	}
	return t.splitAndPropagate(path, idx)
}

func (t *Tree) lookup(key []byte) (leafValue, bool, error) {
	if len(key) == 0 {
		return leafValue{}, false, nil
	}
	path, _, err := t.findPath(key)
	if err != nil {
		return leafValue{}, false, err
	}
	leaf := path[len(path)-1]
	i, found := leaf.findKeyIndex(key)
	if !found {
		return leafValue{}, false, nil
	}
	return leaf.values[i], true, nil
}

// findPath walks from the root to the leaf covering key. idx[i] is the
// child index taken in path[i].
func (t *Tree) findPath(key []byte) ([]*node, []int, error) {
	path := make([]*node, 0, max(t.state.Depth, 1))
	idx := make([]int, 0, max(t.state.Depth, 1))
	pageNumber := t.state.RootPage
	for depth := 0; depth < maxDepth; depth++ {
		n, err := t.readNode(pageNumber)
		if err != nil {
			return nil, nil, err
		}
		path = append(path, n)
		if n.isLeaf {
			return path, idx, nil
		}
		ci := n.childIndex(key)
		idx = append(idx, ci)
		pageNumber = n.children[ci]
	}
	return nil, nil, fmt.Errorf("%w: tree %q deeper than %d levels", ErrCorruptedNode, t.name, maxDepth)
}

func (t *Tree) readNode(pageNumber int64) (*node, error) {
	p, err := t.tx.GetPage(pageNumber)
	if err != nil {
		return nil, err
	}
	return decodeNode(p)
}

func (t *Tree) writeNode(n *node) error {
	p, err := t.tx.ModifyPage(n.pageNumber)
	if err != nil {
		return err
	}
	n.encodeTo(p, t.scratch)
	t.changed = true
	return nil
}

func (t *Tree) allocateNode(leaf bool) (*node, error) {
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

func (t *Tree) freeNode(n *node) error {
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

// Drop frees every page of the tree, including overflow runs and nested
// trees. The tree must not be used afterwards.
func (t *Tree) Drop() error {
	if err := t.dropPage(t.state.RootPage, 0); err != nil {
		return err
	}
	t.state.RootPage = storage.InvalidPage
	t.state.Depth = 0
	t.state.Entries = 0
	t.changed = true
	return nil
}

func (t *Tree) dropPage(pageNumber int64, depth int) error {
	if depth >= maxDepth {
		return fmt.Errorf("%w: tree %q deeper than %d levels", ErrCorruptedNode, t.name, maxDepth)
	}
	n, err := t.readNode(pageNumber)
	if err != nil {
		return err
	}
	if n.isLeaf {
		for _, v := range n.values {
			switch v.kind {
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
		}
	} else {
		for _, child := range n.children {
			if err := t.dropPage(child, depth+1); err != nil {
				return err
			}
		}
	}
	return t.freeNode(n)
}
