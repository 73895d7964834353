package env

import (
	"sync/atomic"

	"github.com/benbjohnson/immutable"

	"github.com/KilimcininKorOglu/voron/internal/storage/scratch"
)

// pageVersion is a committed copy of a page run living in scratch memory.
type pageVersion struct {
	buffer        *scratch.Buffer
	transactionID uint64

	// prev links to the version this one replaced. The flusher walks the
	// chain to find the newest version visible to the oldest reader, and
	// cuts it once that version reached the data file.
	prev atomic.Pointer[pageVersion]
}

// visibleAt returns the newest version in the chain committed at or
// before txID, or nil.
func (v *pageVersion) visibleAt(txID uint64) *pageVersion {
	for v != nil && v.transactionID > txID {
		v = v.prev.Load()
	}
	return v
}

// unlinkFlushed drops from the chain every version committed at or before
// txID. v itself must be newer than txID.
func (v *pageVersion) unlinkFlushed(txID uint64) {
	for v != nil {
		prev := v.prev.Load()
		if prev == nil || prev.transactionID <= txID {
			v.prev.Store(nil)
			return
		}
		v = prev
	}
}

type int64Hasher struct{}

func (int64Hasher) Hash(key int64) uint32 {
	return uint32(key) ^ uint32(key>>32)
}

func (int64Hasher) Equal(a, b int64) bool {
	return a == b
}

// pageTable maps page numbers to their latest committed version that is
// not yet in the data file. It is persistent: every update returns a new
// table and readers keep the one they started with.
type pageTable struct {
	m *immutable.Map[int64, *pageVersion]
}

func newPageTable() pageTable {
	return pageTable{m: immutable.NewMap[int64, *pageVersion](int64Hasher{})}
}

func (t pageTable) get(pageNumber int64) (*pageVersion, bool) {
	return t.m.Get(pageNumber)
}

func (t pageTable) set(pageNumber int64, v *pageVersion) pageTable {
	return pageTable{m: t.m.Set(pageNumber, v)}
}

func (t pageTable) remove(pageNumber int64) pageTable {
	return pageTable{m: t.m.Delete(pageNumber)}
}

func (t pageTable) len() int {
	return t.m.Len()
}

func (t pageTable) each(fn func(pageNumber int64, v *pageVersion)) {
	itr := t.m.Iterator()
	for !itr.Done() {
		pn, v, ok := itr.Next()
		if !ok {
			break
		}
		fn(pn, v)
	}
}
