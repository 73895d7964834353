// Package scratch hands out the private page copies write transactions
// modify, and releases them once no reader can still see them.
package scratch

import (
	"errors"
	"sort"
	"sync"

	"github.com/KilimcininKorOglu/voron/internal/memory"
	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("scratch: closed")

// Buffer is a scratch allocation of one or more contiguous pages.
type Buffer struct {
	data []byte
}

// Bytes returns the page bytes.
func (b *Buffer) Bytes() []byte { return b.data }

// Page returns a page view over the buffer.
func (b *Buffer) Page() storage.Page { return storage.NewPage(b.data) }

// NumberOfPages returns the size of the buffer in pages.
func (b *Buffer) NumberOfPages() int { return len(b.data) / storage.PageSize }

type deferred struct {
	generation uint64
	buffers    []*Buffer
}

// Stats describes scratch usage.
type Stats struct {
	InUse          int64
	Allocated      int64
	Released       int64
	PendingBatches int
}

// Space allocates scratch buffers from a buffer pool.
type Space struct {
	mu      sync.Mutex
	pool    *memory.BuffersPool
	acct    *memory.Accounting
	pending []deferred
	closed  bool
}

// New returns a scratch space drawing from pool.
func New(pool *memory.BuffersPool, name string) *Space {
	return &Space{pool: pool, acct: memory.NewAccounting(name)}
}

// Allocate returns a zeroed buffer of numberOfPages pages.
func (s *Space) Allocate(numberOfPages int) (*Buffer, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	buf, err := s.pool.GetFor(s.acct, numberOfPages*storage.PageSize)
	if err != nil {
		return nil, err
	}
	return &Buffer{data: buf}, nil
}

// Release returns buffers to the pool immediately. Use it only for
// buffers no reader can have seen.
func (s *Space) Release(buffers ...*Buffer) error {
	var errs []error
	for _, b := range buffers {
		if b == nil || b.data == nil {
			continue
		}
		if err := s.pool.Return(b.data, len(b.data), s.acct); err != nil {
			errs = append(errs, err)
		}
		b.data = nil
	}
	return errors.Join(errs...)
}

// ReleaseAfter queues buffers until every reader of a generation older
// than generation has finished.
func (s *Space) ReleaseAfter(generation uint64, buffers ...*Buffer) {
	if len(buffers) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, deferred{generation: generation, buffers: buffers})
}

// Collect releases queued buffers whose generation is at or below
// oldest, the generation of the oldest active reader. It returns how many
// buffers went back to the pool.
func (s *Space) Collect(oldest uint64) (int, error) {
	s.mu.Lock()
	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].generation < s.pending[j].generation
	})
	n := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].generation > oldest
	})
	ready := s.pending[:n:n]
	s.pending = append([]deferred(nil), s.pending[n:]...)
	s.mu.Unlock()

	count := 0
	var errs []error
	for _, d := range ready {
		count += len(d.buffers)
		if err := s.Release(d.buffers...); err != nil {
			errs = append(errs, err)
		}
	}
	return count, errors.Join(errs...)
}

// Stats returns usage counters.
func (s *Space) Stats() Stats {
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	return Stats{
		InUse:          s.acct.InUse(),
		Allocated:      s.acct.Allocated(),
		Released:       s.acct.Released(),
		PendingBatches: pending,
	}
}

// Close releases every queued buffer. Buffers still held by callers must
// be released by them.
func (s *Space) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	_, err := s.Collect(^uint64(0))
	return err
}
