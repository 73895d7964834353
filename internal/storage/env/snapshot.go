package env

import (
	"errors"
	"sync"

	"github.com/KilimcininKorOglu/voron/internal/storage/btree"
)

// Snapshot is a read-only view of the environment as of its creation. It
// wraps a read transaction; values it returns are copies and stay valid
// after Close. A Snapshot is safe for concurrent use.
type Snapshot struct {
	mu sync.Mutex
	tx *Transaction
}

// CreateSnapshot pins the latest committed state.
func (e *Environment) CreateSnapshot() (*Snapshot, error) {
	tx, err := e.ReadTransaction()
	if err != nil {
		return nil, err
	}
	return &Snapshot{tx: tx}, nil
}

// TransactionID returns the id of the last transaction the snapshot sees.
func (s *Snapshot) TransactionID() uint64 {
	return s.tx.ID()
}

func (s *Snapshot) tree(name string) (*btree.Tree, error) {
	return s.tx.ReadTree(name)
}

// Read returns a copy of the value stored under key in tree. A missing
// tree reads like a missing key.
func (s *Snapshot) Read(tree string, key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(tree)
	if errors.Is(err, ErrTreeNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, found, err := t.Read(key)
	if err != nil || !found {
		return nil, found, err
	}
	return append([]byte(nil), v...), true, nil
}

// ReadVersion returns the version of key in tree, 0 when it is missing.
func (s *Snapshot) ReadVersion(tree string, key []byte) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(tree)
	if errors.Is(err, ErrTreeNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return t.ReadVersion(key)
}

// Entry is a key and value copied out of a tree.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iterate returns the entries of tree with keys in [from, to), in order.
// Nil bounds are open.
func (s *Snapshot) Iterate(tree string, from, to []byte) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(tree)
	if errors.Is(err, ErrTreeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it := t.Iterate()
	if to != nil {
		it.SetEndKey(to)
	}
	var ok bool
	if from != nil {
		ok = it.Seek(from)
	} else {
		ok = it.SeekToFirst()
	}
	var entries []Entry
	for ; ok; ok = it.Next() {
		v, err := it.Value()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Key:   append([]byte(nil), it.Key()...),
			Value: append([]byte(nil), v...),
		})
	}
	return entries, it.Err()
}

// MultiRead returns copies of the values of a multi-value key, sorted.
func (s *Snapshot) MultiRead(tree string, key []byte) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(tree)
	if errors.Is(err, ErrTreeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it, err := t.MultiRead(key)
	if err != nil {
		return nil, err
	}
	var values [][]byte
	for ok := it.SeekToFirst(); ok; ok = it.Next() {
		values = append(values, append([]byte(nil), it.Key()...))
	}
	return values, it.Err()
}

// Close releases the snapshot.
func (s *Snapshot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx.Dispose()
}
