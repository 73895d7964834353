package env

import (
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/btree"
	"github.com/KilimcininKorOglu/voron/internal/storage/fixedsize"
)

// RootTreeName is the name the root tree is opened under.
const RootTreeName = "$root"

// Transaction errors.
var (
	ErrTreeNotFound    = errors.New("tree not found")
	ErrWrongObjectType = errors.New("root object has a different type")
	ErrInvalidTreeName = errors.New("invalid tree name")
)

// RootObject is a named object registered in the root tree.
type RootObject struct {
	Name  string
	Type  storage.RootObjectType
	State storage.TreeState
}

// Transaction gives access to the trees of an environment. Trees opened
// through a transaction are bound to it and must not be used after it
// ends.
type Transaction struct {
	llt  *LowLevelTransaction
	root *btree.Tree

	trees   map[string]*btree.Tree
	fixed   map[string]*fixedsize.Tree
	types   map[string]storage.RootObjectType
	initial map[string]storage.TreeState
}

func newTransaction(llt *LowLevelTransaction) (*Transaction, error) {
	tx := &Transaction{
		llt:     llt,
		trees:   make(map[string]*btree.Tree),
		fixed:   make(map[string]*fixedsize.Tree),
		types:   make(map[string]storage.RootObjectType),
		initial: make(map[string]storage.TreeState),
	}
	if llt.base.root.RootPage == storage.InvalidPage {
		if !llt.write {
			llt.Dispose()
			return nil, fmt.Errorf("%w: environment has no root tree", storage.ErrInvalidOperation)
		}
		root, err := btree.Create(llt, RootTreeName)
		if err != nil {
			llt.Dispose()
			return nil, err
		}
		tx.root = root
		return tx, nil
	}
	tx.root = btree.Open(llt, RootTreeName, llt.base.root)
	return tx, nil
}

// LowLevelTransaction returns the page level transaction.
func (tx *Transaction) LowLevelTransaction() *LowLevelTransaction {
	return tx.llt
}

// ID returns the transaction id.
func (tx *Transaction) ID() uint64 {
	return tx.llt.id
}

// IsWriteTransaction reports whether tx may modify trees.
func (tx *Transaction) IsWriteTransaction() bool {
	return tx.llt.write
}

// Disposed reports whether tx has ended.
func (tx *Transaction) Disposed() bool {
	return tx.llt.state >= TxCommitted
}

// RootTree returns the tree mapping names to root objects.
func (tx *Transaction) RootTree() *btree.Tree {
	return tx.root
}

func checkTreeName(name string) error {
	if name == "" || name == RootTreeName || len(name) > btree.MaxKeySize {
		return fmt.Errorf("%w: %q", ErrInvalidTreeName, name)
	}
	return nil
}

// objectState looks name up in the root tree.
func (tx *Transaction) objectState(name string) (storage.TreeState, bool, error) {
	raw, found, err := tx.root.Read([]byte(name))
	if err != nil || !found {
		return storage.TreeState{}, false, err
	}
	st, err := storage.UnmarshalTreeState(raw)
	if err != nil {
		return storage.TreeState{}, false, fmt.Errorf("root object %q: %w", name, err)
	}
	return st, true, nil
}

func (tx *Transaction) register(name string, typ storage.RootObjectType, st storage.TreeState) error {
	st.Type = typ
	tx.types[name] = typ
	tx.initial[name] = st
	return tx.root.Add([]byte(name), st.Marshal())
}

// CreateTree opens the variable-size tree called name, creating it when
// it does not exist.
func (tx *Transaction) CreateTree(name string) (*btree.Tree, error) {
	return tx.createTree(name, storage.RootObjectVariableSizeTree)
}

// CreateTableTree is CreateTree for the root tree of a table.
func (tx *Transaction) CreateTableTree(name string) (*btree.Tree, error) {
	return tx.createTree(name, storage.RootObjectTable)
}

func (tx *Transaction) createTree(name string, typ storage.RootObjectType) (*btree.Tree, error) {
	if err := checkTreeName(name); err != nil {
		return nil, err
	}
	t, err := tx.openTree(name, typ)
	if err == nil || !errors.Is(err, ErrTreeNotFound) {
		return t, err
	}
	if err := tx.llt.checkWrite(); err != nil {
		return nil, err
	}
	t, err = btree.Create(tx.llt, name)
	if err != nil {
		return nil, err
	}
	if err := tx.register(name, typ, t.State()); err != nil {
		return nil, err
	}
	tx.trees[name] = t
	return t, nil
}

// ReadTree opens the variable-size tree called name. It fails with
// ErrTreeNotFound when there is none.
func (tx *Transaction) ReadTree(name string) (*btree.Tree, error) {
	if err := tx.llt.checkOpen(); err != nil {
		return nil, err
	}
	return tx.openTree(name, storage.RootObjectVariableSizeTree)
}

// ReadTableTree opens the root tree of a table.
func (tx *Transaction) ReadTableTree(name string) (*btree.Tree, error) {
	if err := tx.llt.checkOpen(); err != nil {
		return nil, err
	}
	return tx.openTree(name, storage.RootObjectTable)
}

func (tx *Transaction) openTree(name string, typ storage.RootObjectType) (*btree.Tree, error) {
	if t, ok := tx.trees[name]; ok {
		if tx.types[name] != typ {
			return nil, fmt.Errorf("%w: %q is a %s", ErrWrongObjectType, name, tx.types[name])
		}
		return t, nil
	}
	st, found, err := tx.objectState(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrTreeNotFound, name)
	}
	if st.Type != typ {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongObjectType, name, st.Type)
	}
	t := btree.Open(tx.llt, name, st)
	tx.trees[name] = t
	tx.types[name] = typ
	tx.initial[name] = st
	return t, nil
}

// FixedTreeFor opens the fixed-size tree called name, creating it with
// values of valueSize bytes when it does not exist and tx can write.
func (tx *Transaction) FixedTreeFor(name string, valueSize int) (*fixedsize.Tree, error) {
	if err := tx.llt.checkOpen(); err != nil {
		return nil, err
	}
	if err := checkTreeName(name); err != nil {
		return nil, err
	}
	if t, ok := tx.fixed[name]; ok {
		return t, nil
	}
	if _, ok := tx.trees[name]; ok {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongObjectType, name, tx.types[name])
	}

	st, found, err := tx.objectState(name)
	if err != nil {
		return nil, err
	}
	if found {
		if st.Type != storage.RootObjectFixedSizeTree {
			return nil, fmt.Errorf("%w: %q is a %s", ErrWrongObjectType, name, st.Type)
		}
		if int(st.ValueSize) != valueSize {
			return nil, fmt.Errorf("%w: %q holds %d byte values, not %d",
				fixedsize.ErrInvalidValueSize, name, st.ValueSize, valueSize)
		}
		t := fixedsize.Open(tx.llt, name, st)
		tx.fixed[name] = t
		tx.types[name] = storage.RootObjectFixedSizeTree
		tx.initial[name] = st
		return t, nil
	}

	if !tx.llt.write {
		return nil, fmt.Errorf("%w: %q", ErrTreeNotFound, name)
	}
	t, err := fixedsize.Create(tx.llt, name, valueSize)
	if err != nil {
		return nil, err
	}
	if err := tx.register(name, storage.RootObjectFixedSizeTree, t.State()); err != nil {
		return nil, err
	}
	tx.fixed[name] = t
	return t, nil
}

// DeleteTree drops the tree or fixed-size tree called name and every page
// it owns. Deleting a missing tree is a no-op.
func (tx *Transaction) DeleteTree(name string) error {
	if err := tx.llt.checkWrite(); err != nil {
		return err
	}
	if err := checkTreeName(name); err != nil {
		return err
	}
	st, found, err := tx.objectState(name)
	if err != nil || !found {
		return err
	}

	switch st.Type {
	case storage.RootObjectFixedSizeTree:
		t, ok := tx.fixed[name]
		if !ok {
			t = fixedsize.Open(tx.llt, name, st)
		}
		if err := t.Drop(); err != nil {
			return err
		}
	default:
		t, ok := tx.trees[name]
		if !ok {
			t = btree.Open(tx.llt, name, st)
		}
		if err := t.Drop(); err != nil {
			return err
		}
	}
	delete(tx.trees, name)
	delete(tx.fixed, name)
	delete(tx.types, name)
	delete(tx.initial, name)
	return tx.root.Delete([]byte(name))
}

// RootObjects lists every object registered in the root tree, in name
// order.
func (tx *Transaction) RootObjects() ([]RootObject, error) {
	if err := tx.llt.checkOpen(); err != nil {
		return nil, err
	}
	if err := tx.storeTreeStates(); err != nil {
		return nil, err
	}
	var objects []RootObject
	it := tx.root.Iterate()
	for ok := it.SeekToFirst(); ok; ok = it.Next() {
		raw, err := it.Value()
		if err != nil {
			return nil, err
		}
		st, err := storage.UnmarshalTreeState(raw)
		if err != nil {
			return nil, fmt.Errorf("root object %q: %w", it.Key(), err)
		}
		objects = append(objects, RootObject{Name: string(it.Key()), Type: st.Type, State: st})
	}
	return objects, it.Err()
}

// storeTreeStates writes the state of every tree modified through tx into
// the root tree.
func (tx *Transaction) storeTreeStates() error {
	if !tx.llt.write {
		return nil
	}
	store := func(name string, st storage.TreeState) error {
		st.Type = tx.types[name]
		if st == tx.initial[name] {
			return nil
		}
		if err := tx.root.Add([]byte(name), st.Marshal()); err != nil {
			return fmt.Errorf("store state of %q: %w", name, err)
		}
		tx.initial[name] = st
		return nil
	}
	for name, t := range tx.trees {
		if err := store(name, t.State()); err != nil {
			return err
		}
	}
	for name, t := range tx.fixed {
		if err := store(name, t.State()); err != nil {
			return err
		}
	}
	return nil
}

// Commit makes every change of tx durable and visible to transactions
// started afterwards, then ends tx. A failed commit leaves nothing behind.
func (tx *Transaction) Commit() error {
	if err := tx.llt.checkWrite(); err != nil {
		return err
	}
	defer tx.llt.Dispose()
	if err := tx.storeTreeStates(); err != nil {
		return err
	}
	return tx.llt.commit(tx.root.State())
}

// Rollback abandons every change of tx and ends it.
func (tx *Transaction) Rollback() error {
	if err := tx.llt.checkOpen(); err != nil {
		return err
	}
	tx.llt.Dispose()
	return nil
}

// Dispose ends tx, rolling it back when it did not commit. It is safe to
// call more than once, and after Commit.
func (tx *Transaction) Dispose() {
	tx.llt.Dispose()
}
