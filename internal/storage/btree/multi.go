package btree

import (
	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// nested opens the tree holding the values of a multi-value entry. It
// shares the parent's accessor and scratch buffer.
func (t *Tree) nested(v leafValue) *Tree {
	return &Tree{
		tx:      t.tx,
		name:    t.name,
		state:   storage.TreeState{Type: storage.RootObjectVariableSizeTree, RootPage: v.page, Entries: v.size},
		scratch: t.scratch,
	}
}

// absorb adds the page count changes of a nested tree to t.
func (t *Tree) absorb(before, after storage.TreeState) {
	t.state.BranchPages += after.BranchPages - before.BranchPages
	t.state.LeafPages += after.LeafPages - before.LeafPages
	t.state.OverflowPages += after.OverflowPages - before.OverflowPages
	t.changed = true
}

// MultiAdd adds value to the set of values under key. Adding a value that
// is already present is a no-op.
func (t *Tree) MultiAdd(key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := checkKey(value); err != nil {
		return err
	}
	path, idx, err := t.findPath(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]
	i, found := leaf.findKeyIndex(key)

	var nested *Tree
	var version uint16
	if found {
		old := leaf.values[i]
		if old.kind != valueMulti {
			return ErrNotMultiValue
		}
		nested = t.nested(old)
		version = old.version
		_, exists, err := nested.lookup(value)
		if err != nil || exists {
			return err
		}
	} else {
		nested = &Tree{tx: t.tx, name: t.name, scratch: t.scratch}
		root, err := nested.allocateNode(true)
		if err != nil {
			return err
		}
		if err := nested.writeNode(root); err != nil {
			return err
		}
		nested.state.RootPage = root.pageNumber
		nested.state.Depth = 1
	}

	if err := nested.Add(value, nil); err != nil {
		return err
	}
	t.absorb(storage.TreeState{}, nested.state)

	v := leafValue{
		kind:    valueMulti,
		version: nextVersion(version),
		page:    nested.state.RootPage,
		size:    nested.state.Entries,
	}
	if found {
		leaf.values[i] = v
	} else {
		leaf.insertLeafAt(i, key, v)
		t.state.Entries++
	}
	return t.splitAndPropagate(path, idx)
}

// MultiDelete removes value from the set under key. The key goes away
// with its last value. Missing keys and values are a no-op.
func (t *Tree) MultiDelete(key, value []byte) error {
	if len(key) == 0 || len(value) == 0 {
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
	old := leaf.values[i]
	if old.kind != valueMulti {
		return ErrNotMultiValue
	}

	nested := t.nested(old)
	if err := nested.Delete(value); err != nil {
		return err
	}
	t.absorb(storage.TreeState{}, nested.state)
	if nested.state.Entries == old.size {
		return nil
	}

	if nested.state.Entries == 0 {
		before := nested.state
		if err := nested.Drop(); err != nil {
			return err
		}
		t.absorb(before, nested.state)
		leaf.removeLeafAt(i)
		t.state.Entries--
		return t.rebalance(path, idx)
	}

	leaf.values[i] = leafValue{
		kind:    valueMulti,
		version: nextVersion(old.version),
		page:    nested.state.RootPage,
		size:    nested.state.Entries,
	}
	return t.writeNode(leaf)
}

// MultiRead returns an iterator over the values under key in sorted
// order. A missing key yields an empty iterator.
func (t *Tree) MultiRead(key []byte) (*Iterator, error) {
	v, found, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Iterator{}, nil
	}
	if v.kind != valueMulti {
		return nil, ErrNotMultiValue
	}
	return t.nested(v).Iterate(), nil
}

// MultiCount returns how many values are stored under key.
func (t *Tree) MultiCount(key []byte) (int64, error) {
	v, found, err := t.lookup(key)
	if err != nil || !found {
		return 0, err
	}
	if v.kind != valueMulti {
		return 0, ErrNotMultiValue
	}
	return v.size, nil
}
