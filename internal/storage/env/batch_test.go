package env

import (
	"context"
	"errors"
	"testing"
)

type recorderFunc func(*WriteBatch) error

func (f recorderFunc) RecordBatch(b *WriteBatch) error { return f(b) }

func TestBatchOperationString(t *testing.T) {
	for _, op := range []BatchOperation{BatchAdd, BatchDelete, BatchMultiAdd, BatchMultiDelete} {
		t.Run(op.String(), func(t *testing.T) {
			got, err := ParseBatchOperation(op.String())
			if err != nil {
				t.Fatalf("ParseBatchOperation() error = %v", err)
			}
			if got != op {
				t.Errorf("ParseBatchOperation(%q) = %v, want %v", op.String(), got, op)
			}
		})
	}
	if _, err := ParseBatchOperation("Upsert"); err == nil {
		t.Error("ParseBatchOperation(Upsert) succeeded, want error")
	}
}

func TestWriteBatch(t *testing.T) {
	e := openTestEnv(t, testOptions(t))
	defer closeTestEnv(t, e)

	var recorded []BatchEntry
	e.SetDebugJournal(recorderFunc(func(b *WriteBatch) error {
		recorded = append(recorded, b.Entries()...)
		return nil
	}))

	key := []byte("k")
	b := NewWriteBatch().
		Add("kv", key, []byte("v1")).
		Add("kv", []byte("gone"), []byte("x")).
		MultiAdd("multi", key, []byte("b")).
		MultiAdd("multi", key, []byte("a")).
		MultiAdd("multi", key, []byte("c"))
	key[0] = 'z'
	if err := e.Write(context.Background(), b); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	b2 := NewWriteBatch().
		Delete("kv", []byte("gone")).
		MultiDelete("multi", []byte("k"), []byte("b"))
	if err := e.Write(context.Background(), b2); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if v, found := get(t, e, "kv", "k"); !found || v != "v1" {
		t.Errorf("kv[k] = %q, %v, want v1", v, found)
	}
	if _, found := get(t, e, "kv", "gone"); found {
		t.Error("deleted key still present")
	}

	snap, err := e.CreateSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()
	values, err := snap.MultiRead("multi", []byte("k"))
	if err != nil {
		t.Fatalf("MultiRead() error = %v", err)
	}
	if len(values) != 2 || string(values[0]) != "a" || string(values[1]) != "c" {
		t.Errorf("MultiRead() = %q, want [a c]", values)
	}

	if len(recorded) != 7 {
		t.Fatalf("recorded %d entries, want 7", len(recorded))
	}
	if recorded[5].Op != BatchDelete || string(recorded[5].Key) != "gone" {
		t.Errorf("recorded[5] = %+v, want Delete gone", recorded[5])
	}
}

func TestWriteBatchFailureRollsBack(t *testing.T) {
	e := openTestEnv(t, testOptions(t))
	defer closeTestEnv(t, e)

	calls := 0
	e.SetDebugJournal(recorderFunc(func(*WriteBatch) error {
		calls++
		return nil
	}))

	b := NewWriteBatch().
		Add("kv", []byte("a"), []byte("1")).
		Add("kv", nil, []byte("empty key"))
	if err := e.Write(context.Background(), b); err == nil {
		t.Fatal("Write() with an empty key succeeded, want error")
	}
	if _, found := get(t, e, "kv", "a"); found {
		t.Error("partial batch is visible")
	}
	if calls != 0 {
		t.Errorf("recorder called %d times for a failed batch, want 0", calls)
	}

	if err := e.Write(context.Background(), NewWriteBatch()); err != nil {
		t.Errorf("Write(empty) error = %v", err)
	}

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", b.Len())
	}
}

func TestWriteBatchRecorderErrorIgnored(t *testing.T) {
	e := openTestEnv(t, testOptions(t))
	defer closeTestEnv(t, e)
	e.SetDebugJournal(recorderFunc(func(*WriteBatch) error {
		return errors.New("disk full")
	}))

	if err := e.Write(context.Background(), NewWriteBatch().Add("kv", []byte("a"), []byte("1"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if v, _ := get(t, e, "kv", "a"); v != "1" {
		t.Errorf("a = %q, want 1", v)
	}
}
