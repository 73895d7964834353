package env

import (
	"slices"
	"testing"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

func TestFreeListAllocate(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		n    int
		want int64
		left []int64
	}{
		{"empty", nil, 1, 0, nil},
		{"single", []int64{7}, 1, 7, []int64{}},
		{"first of many", []int64{3, 5, 9}, 1, 3, []int64{5, 9}},
		{"contiguous run", []int64{3, 5, 6, 7, 9}, 3, 5, []int64{3, 9}},
		{"run at end", []int64{2, 10, 11}, 2, 10, []int64{2}},
		{"no run long enough", []int64{3, 5, 7}, 2, 0, []int64{3, 5, 7}},
		{"zero pages", []int64{3}, 0, 0, []int64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFreeList()
			f.pending[1] = append([]int64(nil), tt.ids...)
			for _, id := range tt.ids {
				f.cache[id] = struct{}{}
			}
			f.release(1)

			if got := f.allocate(tt.n); got != tt.want {
				t.Errorf("allocate(%d) = %d, want %d", tt.n, got, tt.want)
			}
			if tt.left != nil && !slices.Equal(f.ids, tt.left) {
				t.Errorf("ids = %v, want %v", f.ids, tt.left)
			}
			if tt.want != 0 {
				for i := 0; i < tt.n; i++ {
					if f.freed(tt.want + int64(i)) {
						t.Errorf("page %d still marked freed after allocate", tt.want+int64(i))
					}
				}
			}
		})
	}
}

func TestFreeListPendingRelease(t *testing.T) {
	f := newFreeList()
	if err := f.free(5, 10, 2); err != nil {
		t.Fatalf("free() error = %v", err)
	}
	if err := f.free(7, 20, 1); err != nil {
		t.Fatalf("free() error = %v", err)
	}
	if err := f.free(7, 11, 1); err == nil {
		t.Error("free() of a pending page succeeded, want error")
	}

	if got := f.allocate(1); got != 0 {
		t.Errorf("allocate() of pending page = %d, want 0", got)
	}
	if f.freeCount() != 0 || f.pendingCount() != 3 {
		t.Fatalf("free, pending = %d, %d, want 0, 3", f.freeCount(), f.pendingCount())
	}

	f.release(6)
	if !slices.Equal(f.ids, []int64{10, 11}) {
		t.Errorf("ids after release(6) = %v, want [10 11]", f.ids)
	}
	if f.pendingCount() != 1 {
		t.Errorf("pendingCount() = %d, want 1", f.pendingCount())
	}

	c := f.clone()
	c.rollback(7)
	if c.freed(20) {
		t.Error("rolled back page still freed in clone")
	}
	if !f.freed(20) {
		t.Error("rollback on clone changed the original")
	}

	if got := f.allocate(2); got != 10 {
		t.Errorf("allocate(2) = %d, want 10", got)
	}
}

func TestFreeListWriteRead(t *testing.T) {
	f := newFreeList()
	for i, pn := range []int64{40, 12, 13, 99} {
		if err := f.free(uint64(i+1), pn, 1); err != nil {
			t.Fatal(err)
		}
	}
	f.release(2)

	buf := make([]byte, storage.PagesForSize(f.size())*storage.PageSize)
	p := storage.NewPage(buf)
	p.SetPageNumber(3)
	if err := f.write(p); err != nil {
		t.Fatalf("write() error = %v", err)
	}
	if p.Flags() != storage.PageFlagFreelist {
		t.Errorf("Flags() = %s, want Freelist", p.Flags())
	}

	got := newFreeList()
	if err := got.read(p); err != nil {
		t.Fatalf("read() error = %v", err)
	}
	want := []int64{12, 13, 40, 99}
	if !slices.Equal(got.ids, want) {
		t.Errorf("ids = %v, want %v", got.ids, want)
	}
	if got.pendingCount() != 0 {
		t.Errorf("pendingCount() = %d after read, want 0", got.pendingCount())
	}

	leaf := storage.NewPage(make([]byte, storage.PageSize))
	leaf.Reset(4, storage.PageFlagLeaf)
	if err := got.read(leaf); err == nil {
		t.Error("read() of a leaf page succeeded, want error")
	}
}
