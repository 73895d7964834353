package btree

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/KilimcininKorOglu/voron/internal/storage"
	"github.com/KilimcininKorOglu/voron/internal/storage/pagetest"
)

func newTestTree(t *testing.T) (*Tree, *pagetest.MemPager) {
	t.Helper()
	pager := pagetest.New()
	tree, err := Create(pager, "test")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return tree, pager
}

func keyFor(i int) []byte {
	return []byte(fmt.Sprintf("key-%06d", i))
}

func collectKeys(t *testing.T, it *Iterator) []string {
	t.Helper()
	var keys []string
	for ok := it.SeekToFirst(); ok; ok = it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error = %v", err)
	}
	return keys
}

// =============================================================================
// Basic Operations
// =============================================================================

func TestTreeAddRead(t *testing.T) {
	tree, _ := newTestTree(t)

	if err := tree.Add([]byte("foo"), []byte("bar")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	value, found, err := tree.Read([]byte("foo"))
	if err != nil || !found {
		t.Fatalf("Read() = %v, %v, want found", found, err)
	}
	if string(value) != "bar" {
		t.Errorf("Read() = %q, want %q", value, "bar")
	}

	_, found, err = tree.Read([]byte("missing"))
	if err != nil || found {
		t.Errorf("Read(missing) found = %v, err = %v, want not found", found, err)
	}
	if tree.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tree.Count())
	}
	if !tree.Changed() {
		t.Error("Changed() = false after Add")
	}
}

func TestTreeKeyValidation(t *testing.T) {
	tree, _ := newTestTree(t)

	tests := []struct {
		name string
		key  []byte
		want error
	}{
		{"empty", nil, ErrEmptyKey},
		{"too large", bytes.Repeat([]byte("k"), MaxKeySize+1), ErrKeyTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tree.Add(tt.key, []byte("v")); !errors.Is(err, tt.want) {
				t.Errorf("Add() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := tree.Add(bytes.Repeat([]byte("k"), MaxKeySize), []byte("v")); err != nil {
		t.Errorf("Add(max key) error = %v", err)
	}
}

func TestTreeReadVersion(t *testing.T) {
	tree, _ := newTestTree(t)

	v, err := tree.ReadVersion([]byte("foo"))
	if err != nil || v != 0 {
		t.Fatalf("ReadVersion(missing) = %d, %v, want 0", v, err)
	}

	for want := uint16(1); want <= 3; want++ {
		if err := tree.Add([]byte("foo"), []byte{byte(want)}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		v, _ = tree.ReadVersion([]byte("foo"))
		if v != want {
			t.Errorf("ReadVersion() = %d, want %d", v, want)
		}
	}

	if err := tree.Delete([]byte("foo")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	v, _ = tree.ReadVersion([]byte("foo"))
	if v != 0 {
		t.Errorf("ReadVersion() after delete = %d, want 0", v)
	}
}

func TestNextVersionSkipsZero(t *testing.T) {
	if got := nextVersion(0xffff); got != 1 {
		t.Errorf("nextVersion(0xffff) = %d, want 1", got)
	}
}

func TestTreeDeleteMissingIsNoop(t *testing.T) {
	tree, _ := newTestTree(t)
	if err := tree.Add([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := tree.Delete([]byte("b")); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
	if err := tree.Delete(nil); err != nil {
		t.Errorf("Delete(nil) error = %v", err)
	}
	if tree.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tree.Count())
	}
}

func TestTreeReadOnlyAccessor(t *testing.T) {
	tree, pager := newTestTree(t)
	if err := tree.Add([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	pager.SetReadOnly(true)

	if err := tree.Add([]byte("b"), []byte("2")); !errors.Is(err, storage.ErrReadOnlyTransaction) {
		t.Errorf("Add() error = %v, want ErrReadOnlyTransaction", err)
	}
	if _, found, err := tree.Read([]byte("a")); err != nil || !found {
		t.Errorf("Read() = %v, %v, want found", found, err)
	}
}

// =============================================================================
// Split and Merge
// =============================================================================

func TestTreeManyKeys(t *testing.T) {
	tree, pager := newTestTree(t)
	const n = 3000

	order := rand.New(rand.NewSource(42)).Perm(n)
	for _, i := range order {
		if err := tree.Add(keyFor(i), []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}

	state := tree.State()
	if state.Entries != n {
		t.Errorf("Entries = %d, want %d", state.Entries, n)
	}
	if state.Depth < 2 {
		t.Errorf("Depth = %d, want >= 2", state.Depth)
	}
	if got := int64(len(pager.LivePages())); got != state.PageCount() {
		t.Errorf("live pages = %d, want %d", got, state.PageCount())
	}

	for i := 0; i < n; i++ {
		value, found, err := tree.Read(keyFor(i))
		if err != nil || !found {
			t.Fatalf("Read(%d) = %v, %v", i, found, err)
		}
		if want := fmt.Sprintf("value-%d", i); string(value) != want {
			t.Fatalf("Read(%d) = %q, want %q", i, value, want)
		}
	}

	keys := collectKeys(t, tree.Iterate())
	if len(keys) != n {
		t.Fatalf("iterated %d keys, want %d", len(keys), n)
	}
	for i, k := range keys {
		if k != string(keyFor(i)) {
			t.Fatalf("key[%d] = %s, want %s", i, k, keyFor(i))
		}
	}
}

func TestTreeDeleteAllCollapses(t *testing.T) {
	tree, pager := newTestTree(t)
	const n = 2000

	for i := 0; i < n; i++ {
		if err := tree.Add(keyFor(i), bytes.Repeat([]byte{'x'}, 40)); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}
	for _, i := range rand.New(rand.NewSource(7)).Perm(n) {
		if err := tree.Delete(keyFor(i)); err != nil {
			t.Fatalf("Delete(%d) error = %v", i, err)
		}
	}

	state := tree.State()
	if state.Entries != 0 {
		t.Errorf("Entries = %d, want 0", state.Entries)
	}
	if state.Depth != 1 {
		t.Errorf("Depth = %d, want 1", state.Depth)
	}
	if live := pager.LivePages(); len(live) != 1 || live[0] != state.RootPage {
		t.Errorf("live pages = %v, want only root %d", live, state.RootPage)
	}
	if state.BranchPages != 0 || state.LeafPages != 1 {
		t.Errorf("pages = %d branch / %d leaf, want 0 / 1", state.BranchPages, state.LeafPages)
	}
}

func TestTreeInterleavedDeleteKeepsOrder(t *testing.T) {
	tree, _ := newTestTree(t)
	const n = 1500

	for i := 0; i < n; i++ {
		if err := tree.Add(keyFor(i), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < n; i += 2 {
		if err := tree.Delete(keyFor(i)); err != nil {
			t.Fatal(err)
		}
	}

	keys := collectKeys(t, tree.Iterate())
	if len(keys) != n/2 {
		t.Fatalf("iterated %d keys, want %d", len(keys), n/2)
	}
	for j, k := range keys {
		if want := string(keyFor(2*j + 1)); k != want {
			t.Fatalf("key[%d] = %s, want %s", j, k, want)
		}
	}
}

// =============================================================================
// Overflow
// =============================================================================

func TestTreeOverflowValues(t *testing.T) {
	tree, pager := newTestTree(t)
	big := bytes.Repeat([]byte("0123456789"), 1000)

	if err := tree.Add([]byte("big"), big); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	want := int64(storage.PagesForSize(len(big)))
	if got := tree.State().OverflowPages; got != want {
		t.Errorf("OverflowPages = %d, want %d", got, want)
	}

	value, found, err := tree.Read([]byte("big"))
	if err != nil || !found {
		t.Fatalf("Read() = %v, %v", found, err)
	}
	if !bytes.Equal(value, big) {
		t.Errorf("Read() returned %d bytes, want %d", len(value), len(big))
	}

	// Replacing with a small value frees the run.
	if err := tree.Add([]byte("big"), []byte("small")); err != nil {
		t.Fatal(err)
	}
	if got := tree.State().OverflowPages; got != 0 {
		t.Errorf("OverflowPages after replace = %d, want 0", got)
	}
	if got := len(pager.LivePages()); got != 1 {
		t.Errorf("live pages = %d, want 1", got)
	}
}

func TestTreeOverflowThreshold(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		overflow bool
	}{
		{"inline max", MaxInlineValueSize, false},
		{"just over", MaxInlineValueSize + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, _ := newTestTree(t)
			if err := tree.Add([]byte("k"), make([]byte, tt.size)); err != nil {
				t.Fatal(err)
			}
			if got := tree.State().OverflowPages > 0; got != tt.overflow {
				t.Errorf("overflow = %v, want %v", got, tt.overflow)
			}
		})
	}
}

func TestTreeDropFreesEverything(t *testing.T) {
	tree, pager := newTestTree(t)
	for i := 0; i < 500; i++ {
		if err := tree.Add(keyFor(i), make([]byte, 100)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.Add([]byte("big"), make([]byte, 3*storage.PageSize)); err != nil {
		t.Fatal(err)
	}
	if err := tree.MultiAdd([]byte("multi"), []byte("a")); err != nil {
		t.Fatal(err)
	}

	if err := tree.Drop(); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if live := pager.LivePages(); len(live) != 0 {
		t.Errorf("live pages after Drop = %v, want none", live)
	}
}

// =============================================================================
// Node Encoding
// =============================================================================

func TestDecodeRejectsWrongPageType(t *testing.T) {
	buf := make([]byte, storage.PageSize)
	p := storage.NewPage(buf)
	p.Reset(3, storage.PageFlagOverflow)

	if _, err := decodeNode(p); !errors.Is(err, storage.ErrInvalidPageType) {
		t.Errorf("decodeNode() error = %v, want ErrInvalidPageType", err)
	}
}

func TestDecodeRejectsBadOffsets(t *testing.T) {
	n := &node{pageNumber: 5, isLeaf: true}
	n.insertLeafAt(0, []byte("a"), leafValue{kind: valueInline, version: 1, data: []byte("1")})

	buf := make([]byte, storage.PageSize)
	p := storage.NewPage(buf)
	n.encodeTo(p, make([]byte, storage.PageSize))
	buf[nodeHeaderSize] = 0
	buf[nodeHeaderSize+1] = 0

	if _, err := decodeNode(p); !errors.Is(err, ErrCorruptedNode) {
		t.Errorf("decodeNode() error = %v, want ErrCorruptedNode", err)
	}
}

func TestNodeEncodeDecodeRoundTrip(t *testing.T) {
	n := &node{pageNumber: 9, isLeaf: false}
	n.children = []int64{10, 11, 12}
	n.keys = [][]byte{[]byte("m"), []byte("t")}

	buf := make([]byte, storage.PageSize)
	p := storage.NewPage(buf)
	n.encodeTo(p, make([]byte, storage.PageSize))

	got, err := decodeNode(p)
	if err != nil {
		t.Fatalf("decodeNode() error = %v", err)
	}
	if got.isLeaf || got.pageNumber != 9 {
		t.Errorf("decoded leaf = %v, page = %d", got.isLeaf, got.pageNumber)
	}
	if len(got.children) != 3 || got.children[2] != 12 {
		t.Errorf("children = %v, want [10 11 12]", got.children)
	}
	if string(got.keys[0]) != "m" || string(got.keys[1]) != "t" {
		t.Errorf("keys = %q, want [m t]", got.keys)
	}
	for key, want := range map[string]int{"a": 0, "m": 1, "p": 1, "t": 2, "z": 2} {
		if ci := got.childIndex([]byte(key)); ci != want {
			t.Errorf("childIndex(%s) = %d, want %d", key, ci, want)
		}
	}
}
