package env

import (
	"context"
	"fmt"
)

// BatchOperation is the kind of a write batch entry.
type BatchOperation int

const (
	// BatchAdd stores a value under a key.
	BatchAdd BatchOperation = iota + 1
	// BatchDelete removes a key.
	BatchDelete
	// BatchMultiAdd adds a value to a multi-value key.
	BatchMultiAdd
	// BatchMultiDelete removes a value from a multi-value key.
	BatchMultiDelete
)

// String returns the string representation of the operation.
func (op BatchOperation) String() string {
	switch op {
	case BatchAdd:
		return "Add"
	case BatchDelete:
		return "Delete"
	case BatchMultiAdd:
		return "MultiAdd"
	case BatchMultiDelete:
		return "MultiDelete"
	default:
		return "Unknown"
	}
}

// ParseBatchOperation is the inverse of BatchOperation.String.
func ParseBatchOperation(s string) (BatchOperation, error) {
	switch s {
	case "Add":
		return BatchAdd, nil
	case "Delete":
		return BatchDelete, nil
	case "MultiAdd":
		return BatchMultiAdd, nil
	case "MultiDelete":
		return BatchMultiDelete, nil
	default:
		return 0, fmt.Errorf("unknown batch operation %q", s)
	}
}

// BatchEntry is one operation of a write batch.
type BatchEntry struct {
	Op    BatchOperation
	Tree  string
	Key   []byte
	Value []byte
}

// WriteBatch collects tree operations applied together in one write
// transaction. Keys and values are copied when added.
type WriteBatch struct {
	entries []BatchEntry
}

// NewWriteBatch returns an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

func (b *WriteBatch) append(op BatchOperation, tree string, key, value []byte) *WriteBatch {
	e := BatchEntry{Op: op, Tree: tree, Key: append([]byte(nil), key...)}
	if value != nil {
		e.Value = append([]byte(nil), value...)
	}
	b.entries = append(b.entries, e)
	return b
}

// Add stores value under key in tree.
func (b *WriteBatch) Add(tree string, key, value []byte) *WriteBatch {
	return b.append(BatchAdd, tree, key, value)
}

// Delete removes key from tree.
func (b *WriteBatch) Delete(tree string, key []byte) *WriteBatch {
	return b.append(BatchDelete, tree, key, nil)
}

// MultiAdd adds value to the multi-value key in tree.
func (b *WriteBatch) MultiAdd(tree string, key, value []byte) *WriteBatch {
	return b.append(BatchMultiAdd, tree, key, value)
}

// MultiDelete removes value from the multi-value key in tree.
func (b *WriteBatch) MultiDelete(tree string, key, value []byte) *WriteBatch {
	return b.append(BatchMultiDelete, tree, key, value)
}

// AddEntry appends a prepared entry.
func (b *WriteBatch) AddEntry(e BatchEntry) *WriteBatch {
	return b.append(e.Op, e.Tree, e.Key, e.Value)
}

// Entries returns the operations in the order they were added.
func (b *WriteBatch) Entries() []BatchEntry {
	return b.entries
}

// Len returns the number of operations.
func (b *WriteBatch) Len() int {
	return len(b.entries)
}

// Reset empties the batch.
func (b *WriteBatch) Reset() {
	b.entries = b.entries[:0]
}

// Apply runs the batch inside tx, creating trees as needed.
func (b *WriteBatch) Apply(tx *Transaction) error {
	for i, e := range b.entries {
		t, err := tx.CreateTree(e.Tree)
		if err != nil {
			return fmt.Errorf("batch entry %d: %w", i, err)
		}
		switch e.Op {
		case BatchAdd:
			err = t.Add(e.Key, e.Value)
		case BatchDelete:
			err = t.Delete(e.Key)
		case BatchMultiAdd:
			err = t.MultiAdd(e.Key, e.Value)
		case BatchMultiDelete:
			err = t.MultiDelete(e.Key, e.Value)
		default:
			err = fmt.Errorf("unknown operation %d", e.Op)
		}
		if err != nil {
			return fmt.Errorf("batch entry %d (%s %q in %s): %w", i, e.Op, e.Key, e.Tree, err)
		}
	}
	return nil
}

// Write applies batch in one write transaction and commits it. The
// attached debug journal, if any, records the batch once it committed.
func (e *Environment) Write(ctx context.Context, batch *WriteBatch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	tx, err := e.WriteTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Dispose()

	if err := batch.Apply(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if r := e.debugJournal(); r != nil {
		if err := r.RecordBatch(batch); err != nil {
			e.logger.Warn("failed to record batch in debug journal", "error", err)
		}
	}
	return nil
}
