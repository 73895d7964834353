package btree

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// =============================================================================
// Iterator Tests
// =============================================================================

func fillTree(t *testing.T, tree *Tree, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := tree.Add([]byte(k), []byte("v-"+k)); err != nil {
			t.Fatalf("Add(%s) error = %v", k, err)
		}
	}
}

func TestIteratorEmpty(t *testing.T) {
	tree, _ := newTestTree(t)
	it := tree.Iterate()
	if it.SeekToFirst() {
		t.Error("SeekToFirst() on empty tree = true")
	}
	if it.SeekToLast() {
		t.Error("SeekToLast() on empty tree = true")
	}

	var zero Iterator
	if zero.SeekToFirst() || zero.Next() || zero.Valid() {
		t.Error("zero Iterator reports entries")
	}
}

func TestIteratorSeek(t *testing.T) {
	tree, _ := newTestTree(t)
	fillTree(t, tree, "apple", "banana", "cherry", "date")

	tests := []struct {
		seek string
		want string
		ok   bool
	}{
		{"apple", "apple", true},
		{"b", "banana", true},
		{"cherry", "cherry", true},
		{"coconut", "date", true},
		{"zebra", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.seek, func(t *testing.T) {
			it := tree.Iterate()
			ok := it.Seek([]byte(tt.seek))
			if ok != tt.ok {
				t.Fatalf("Seek(%s) = %v, want %v", tt.seek, ok, tt.ok)
			}
			if ok && string(it.Key()) != tt.want {
				t.Errorf("Key() = %s, want %s", it.Key(), tt.want)
			}
		})
	}
}

func TestIteratorBothDirections(t *testing.T) {
	tree, _ := newTestTree(t)
	const n = 1200
	for i := 0; i < n; i++ {
		if err := tree.Add(keyFor(i), []byte(fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}

	it := tree.Iterate()
	count := 0
	for ok := it.SeekToLast(); ok; ok = it.Prev() {
		want := keyFor(n - 1 - count)
		if string(it.Key()) != string(want) {
			t.Fatalf("Key() = %s, want %s", it.Key(), want)
		}
		count++
	}
	if count != n {
		t.Errorf("reverse iteration saw %d keys, want %d", count, n)
	}

	// Turning around in the middle.
	if !it.Seek(keyFor(600)) || !it.Next() || !it.Prev() || !it.Prev() {
		t.Fatal("movement around key 600 failed")
	}
	if string(it.Key()) != string(keyFor(599)) {
		t.Errorf("Key() = %s, want %s", it.Key(), keyFor(599))
	}
	value, err := it.Value()
	if err != nil || string(value) != "599" {
		t.Errorf("Value() = %s, %v, want 599", value, err)
	}
	if it.Version() != 1 {
		t.Errorf("Version() = %d, want 1", it.Version())
	}
}

func TestIteratorPrefix(t *testing.T) {
	tree, _ := newTestTree(t)
	fillTree(t, tree, "a/1", "b/1", "b/2", "b/3", "c/1")

	it := tree.Iterate()
	it.SetPrefix([]byte("b/"))
	got := collectKeys(t, it)
	if want := []string{"b/1", "b/2", "b/3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("prefix keys = %v, want %v", got, want)
	}

	if !it.SeekToLast() || string(it.Key()) != "b/3" {
		t.Errorf("SeekToLast() with prefix = %s, want b/3", it.Key())
	}
	if !it.Seek([]byte("a")) || string(it.Key()) != "b/1" {
		t.Errorf("Seek(a) with prefix = %s, want b/1", it.Key())
	}
}

func TestIteratorEndKey(t *testing.T) {
	tree, _ := newTestTree(t)
	fillTree(t, tree, "a", "b", "c", "d")

	it := tree.Iterate()
	it.SetEndKey([]byte("c"))
	if got, want := collectKeys(t, it), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if !it.SeekToLast() || string(it.Key()) != "b" {
		t.Errorf("SeekToLast() with end key = %s, want b", it.Key())
	}
}

func TestPrefixSuccessor(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("ab"), []byte("ac")},
		{[]byte{'a', 0xff}, []byte("b")},
		{[]byte{0xff, 0xff}, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		if got := prefixSuccessor(tt.prefix); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("prefixSuccessor(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

// =============================================================================
// Multi-Value Tests
// =============================================================================

func multiValues(t *testing.T, tree *Tree, key string) []string {
	t.Helper()
	it, err := tree.MultiRead([]byte(key))
	if err != nil {
		t.Fatalf("MultiRead(%s) error = %v", key, err)
	}
	var out []string
	for ok := it.SeekToFirst(); ok; ok = it.Next() {
		out = append(out, string(it.Key()))
	}
	return out
}

func TestTreeMultiValues(t *testing.T) {
	tree, _ := newTestTree(t)
	key := []byte("multi-foo")

	for _, v := range []string{"CC", "AA", "BB", "AA"} {
		if err := tree.MultiAdd(key, []byte(v)); err != nil {
			t.Fatalf("MultiAdd(%s) error = %v", v, err)
		}
	}
	if got, want := multiValues(t, tree, "multi-foo"), []string{"AA", "BB", "CC"}; !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}
	if n, _ := tree.MultiCount(key); n != 3 {
		t.Errorf("MultiCount() = %d, want 3", n)
	}
	if tree.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tree.Count())
	}

	if err := tree.MultiDelete(key, []byte("BB")); err != nil {
		t.Fatal(err)
	}
	if got, want := multiValues(t, tree, "multi-foo"), []string{"AA", "CC"}; !reflect.DeepEqual(got, want) {
		t.Errorf("values after delete = %v, want %v", got, want)
	}
	if _, _, err := tree.Read(key); !errors.Is(err, ErrMultiValue) {
		t.Errorf("Read(multi key) error = %v, want ErrMultiValue", err)
	}
}

func TestTreeMultiDeleteLastValueRemovesKey(t *testing.T) {
	tree, pager := newTestTree(t)
	key := []byte("k")
	if err := tree.MultiAdd(key, []byte("only")); err != nil {
		t.Fatal(err)
	}
	if err := tree.MultiDelete(key, []byte("only")); err != nil {
		t.Fatal(err)
	}
	if tree.Count() != 0 {
		t.Errorf("Count() = %d, want 0", tree.Count())
	}
	if got := multiValues(t, tree, "k"); len(got) != 0 {
		t.Errorf("values = %v, want none", got)
	}
	if live := pager.LivePages(); len(live) != 1 {
		t.Errorf("live pages = %v, want only the root", live)
	}
	if s := tree.State(); s.LeafPages != 1 || s.BranchPages != 0 {
		t.Errorf("pages = %d leaf / %d branch, want 1 / 0", s.LeafPages, s.BranchPages)
	}
}

func TestTreeMultiValueManyValues(t *testing.T) {
	tree, pager := newTestTree(t)
	key := []byte("many")
	const n = 1000
	for i := 0; i < n; i++ {
		if err := tree.MultiAdd(key, keyFor(i)); err != nil {
			t.Fatal(err)
		}
	}
	if c, _ := tree.MultiCount(key); c != n {
		t.Errorf("MultiCount() = %d, want %d", c, n)
	}
	if got := int64(len(pager.LivePages())); got != tree.State().PageCount() {
		t.Errorf("live pages = %d, want %d", got, tree.State().PageCount())
	}
	if err := tree.Delete(key); err != nil {
		t.Fatal(err)
	}
	if got := len(pager.LivePages()); got != 1 {
		t.Errorf("live pages after Delete = %d, want 1", got)
	}
}

func TestTreeMultiOnPlainKey(t *testing.T) {
	tree, _ := newTestTree(t)
	fillTree(t, tree, "plain")

	if err := tree.MultiAdd([]byte("plain"), []byte("x")); !errors.Is(err, ErrNotMultiValue) {
		t.Errorf("MultiAdd() error = %v, want ErrNotMultiValue", err)
	}
	if _, err := tree.MultiRead([]byte("plain")); !errors.Is(err, ErrNotMultiValue) {
		t.Errorf("MultiRead() error = %v, want ErrNotMultiValue", err)
	}
	if err := tree.MultiAdd([]byte("m"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := tree.Add([]byte("m"), []byte("y")); !errors.Is(err, ErrMultiValue) {
		t.Errorf("Add() on multi key error = %v, want ErrMultiValue", err)
	}
}
