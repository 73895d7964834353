// Package pagetest provides an in-memory page accessor for tree tests.
package pagetest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// MemPager keeps every page in a Go map. Freed pages are remembered so
// tests can check that trees give back what they allocate.
type MemPager struct {
	mu       sync.Mutex
	pages    map[int64][]byte
	next     int64
	freed    map[int64]int
	readOnly bool
}

// New returns an empty pager. Page 0 is never handed out.
func New() *MemPager {
	return &MemPager{
		pages: make(map[int64][]byte),
		next:  1,
		freed: make(map[int64]int),
	}
}

// SetReadOnly makes ModifyPage, AllocatePage and FreePage fail.
func (m *MemPager) SetReadOnly(ro bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = ro
}

// GetPage returns the stored bytes of a page or page run.
func (m *MemPager) GetPage(pageNumber int64) (storage.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.pages[pageNumber]
	if !ok {
		return storage.Page{}, fmt.Errorf("pagetest: page %d: %w", pageNumber, storage.ErrPageMismatch)
	}
	return storage.NewPage(buf), nil
}

// ModifyPage returns the stored bytes; the map already owns them.
func (m *MemPager) ModifyPage(pageNumber int64) (storage.Page, error) {
	if m.isReadOnly() {
		return storage.Page{}, storage.ErrReadOnlyTransaction
	}
	return m.GetPage(pageNumber)
}

// AllocatePage hands out a zeroed run of pages.
func (m *MemPager) AllocatePage(numberOfPages int) (storage.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return storage.Page{}, storage.ErrReadOnlyTransaction
	}
	if numberOfPages < 1 {
		return storage.Page{}, storage.ErrInvalidPageSize
	}
	pn := m.next
	m.next += int64(numberOfPages)
	buf := make([]byte, numberOfPages*storage.PageSize)
	p := storage.NewPage(buf)
	p.SetPageNumber(pn)
	m.pages[pn] = buf
	return p, nil
}

// FreePage drops a page run.
func (m *MemPager) FreePage(pageNumber int64, numberOfPages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return storage.ErrReadOnlyTransaction
	}
	if _, ok := m.pages[pageNumber]; !ok {
		return fmt.Errorf("pagetest: free of unknown page %d", pageNumber)
	}
	delete(m.pages, pageNumber)
	m.freed[pageNumber] = numberOfPages
	return nil
}

// LivePages returns the numbers of all allocated, unfreed page runs.
func (m *MemPager) LivePages() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.pages))
	for pn := range m.pages {
		out = append(out, pn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FreedPages returns how many page runs have been freed.
func (m *MemPager) FreedPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.freed)
}

func (m *MemPager) isReadOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readOnly
}
