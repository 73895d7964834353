package env

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// freeListEntrySize is the size of each entry in a freelist run.
const freeListEntrySize = 8

// freeList tracks pages that can be handed out again.
//
// Pages freed by transaction T stay pending until no reader older than T
// is left; only then do they move to ids and become allocatable. A write
// transaction works on its own clone, which replaces the published list
// when the transaction commits.
//
// Layout of a freelist run:
//   - Bytes 0-31: page header, OverflowSize = 8 * count
//   - Bytes 32-:  sorted page numbers, free and pending alike
type freeList struct {
	ids     []int64            // sorted, allocatable
	pending map[uint64][]int64 // freed by transaction id, not yet allocatable
	cache   map[int64]struct{} // every id in ids and pending
}

func newFreeList() *freeList {
	return &freeList{
		pending: make(map[uint64][]int64),
		cache:   make(map[int64]struct{}),
	}
}

// count returns the number of free and pending pages.
func (f *freeList) count() int {
	return f.freeCount() + f.pendingCount()
}

func (f *freeList) freeCount() int {
	return len(f.ids)
}

func (f *freeList) pendingCount() int {
	n := 0
	for _, ids := range f.pending {
		n += len(ids)
	}
	return n
}

// size returns the bytes needed to persist the list.
func (f *freeList) size() int {
	return f.count() * freeListEntrySize
}

// freed reports whether pageNumber is free or pending.
func (f *freeList) freed(pageNumber int64) bool {
	_, ok := f.cache[pageNumber]
	return ok
}

// allocate removes a run of n contiguous free pages and returns its first
// page, or 0 when no run is long enough.
func (f *freeList) allocate(n int) int64 {
	if n <= 0 || len(f.ids) < n {
		return storage.InvalidPage
	}
	var initial, previous int64
	for i, id := range f.ids {
		if previous == 0 || id-previous != 1 {
			initial = id
		}
		if int(id-initial)+1 == n {
			// Remove the run and drop it from the cache.
			start := i - n + 1
			if i+1 == len(f.ids) {
				f.ids = f.ids[:start]
			} else {
				f.ids = append(f.ids[:start], f.ids[i+1:]...)
			}
			for j := int64(0); j < int64(n); j++ {
				delete(f.cache, initial+j)
			}
			return initial
		}
		previous = id
	}
	return storage.InvalidPage
}

// free marks the run starting at pageNumber as freed by txID.
func (f *freeList) free(txID uint64, pageNumber int64, numberOfPages int) error {
	if pageNumber <= storage.InvalidPage {
		return fmt.Errorf("cannot free page %d", pageNumber)
	}
	ids := f.pending[txID]
	for id := pageNumber; id < pageNumber+int64(numberOfPages); id++ {
		if _, ok := f.cache[id]; ok {
			return fmt.Errorf("page %d already freed", id)
		}
		ids = append(ids, id)
		f.cache[id] = struct{}{}
	}
	f.pending[txID] = ids
	return nil
}

// release moves every page freed by transactions up to txID to the free
// ids.
func (f *freeList) release(txID uint64) {
	var released []int64
	for tid, ids := range f.pending {
		if tid <= txID {
			released = append(released, ids...)
			delete(f.pending, tid)
		}
	}
	if len(released) == 0 {
		return
	}
	f.ids = mergeSorted(f.ids, released)
}

// rollback forgets the pages freed by txID.
func (f *freeList) rollback(txID uint64) {
	for _, id := range f.pending[txID] {
		delete(f.cache, id)
	}
	delete(f.pending, txID)
}

// all returns every free and pending id, sorted.
func (f *freeList) all() []int64 {
	var pending []int64
	for _, ids := range f.pending {
		pending = append(pending, ids...)
	}
	return mergeSorted(append([]int64(nil), f.ids...), pending)
}

func (f *freeList) clone() *freeList {
	c := &freeList{
		ids:     append([]int64(nil), f.ids...),
		pending: make(map[uint64][]int64, len(f.pending)),
		cache:   make(map[int64]struct{}, len(f.cache)),
	}
	for tid, ids := range f.pending {
		c.pending[tid] = append([]int64(nil), ids...)
	}
	for id := range f.cache {
		c.cache[id] = struct{}{}
	}
	return c
}

// write stores the list in a freelist run. The run must hold size() bytes.
func (f *freeList) write(p storage.Page) error {
	ids := f.all()
	data := p.Data()
	if len(ids)*freeListEntrySize > len(data) {
		return fmt.Errorf("freelist of %d pages does not fit a %d page run", len(ids), p.Size()/storage.PageSize)
	}
	p.SetFlags(storage.PageFlagFreelist)
	p.SetOverflowSize(len(ids) * freeListEntrySize)
	for i, id := range ids {
		binary.LittleEndian.PutUint64(data[i*freeListEntrySize:], uint64(id))
	}
	return nil
}

// read loads a freelist run. Everything it holds becomes allocatable:
// read runs at open, before any reader exists.
func (f *freeList) read(p storage.Page) error {
	if p.Flags() != storage.PageFlagFreelist {
		return fmt.Errorf("page %d: %w: %s, want Freelist", p.PageNumber(), storage.ErrInvalidPageType, p.Flags())
	}
	n := p.OverflowSize() / freeListEntrySize
	data := p.Data()
	if n*freeListEntrySize > len(data) {
		return fmt.Errorf("page %d: freelist count %d exceeds run", p.PageNumber(), n)
	}
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(binary.LittleEndian.Uint64(data[i*freeListEntrySize:]))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	f.ids = ids
	f.pending = make(map[uint64][]int64)
	f.cache = make(map[int64]struct{}, n)
	for _, id := range ids {
		f.cache[id] = struct{}{}
	}
	return nil
}

func mergeSorted(a, b []int64) []int64 {
	if len(b) == 0 {
		return a
	}
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	merged := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	return append(merged, b[j:]...)
}
