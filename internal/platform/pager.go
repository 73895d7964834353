package platform

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Pager errors.
var (
	ErrPagerClosed     = errors.New("platform: pager is closed")
	ErrPageOutOfRange  = errors.New("platform: page out of mapped range")
	ErrInvalidPageSize = errors.New("platform: invalid page size")
)

// Pager gives zero-copy read access to the data file through a read-only
// shared mapping. Writes go through the file so that the mapping never has
// to be writable. Growing the file installs a new mapping; older mappings
// stay valid until Close because readers may still hold slices into them.
type Pager struct {
	shim     *Shim
	file     *os.File
	pageSize int

	current atomic.Pointer[view]
	size    atomic.Int64

	mu      sync.Mutex
	retired []*view
	closed  bool
}

// OpenPager maps the whole of file. An empty file is left unmapped until
// the first Grow.
func OpenPager(shim *Shim, file *os.File, pageSize int) (*Pager, error) {
	if pageSize <= 0 || pageSize%4096 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	p := &Pager{shim: shim, file: file, pageSize: pageSize}
	if info.Size() > 0 {
		if err := p.remap(info.Size()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// PageSize returns the page size used for addressing.
func (p *Pager) PageSize() int {
	return p.pageSize
}

// Size returns the mapped size in bytes.
func (p *Pager) Size() int64 {
	return p.size.Load()
}

// NumberOfPages returns the number of whole pages currently mapped.
func (p *Pager) NumberOfPages() int64 {
	return p.size.Load() / int64(p.pageSize)
}

// Read returns the bytes of count pages starting at pageNumber. The slice
// aliases the mapping and must not be written.
func (p *Pager) Read(pageNumber int64, count int) ([]byte, error) {
	v := p.current.Load()
	if v == nil {
		return nil, fmt.Errorf("%w: page %d, file is empty", ErrPageOutOfRange, pageNumber)
	}
	start := pageNumber * int64(p.pageSize)
	end := start + int64(count)*int64(p.pageSize)
	if pageNumber < 0 || count <= 0 || end > int64(len(v.data)) {
		return nil, fmt.Errorf("%w: page %d (+%d), mapped %d bytes", ErrPageOutOfRange, pageNumber, count, len(v.data))
	}
	return v.data[start:end:end], nil
}

// WriteAt writes whole pages to the file at the given page number.
func (p *Pager) WriteAt(data []byte, pageNumber int64) error {
	_, err := p.file.WriteAt(data, pageNumber*int64(p.pageSize))
	return err
}

// Grow extends the file to at least size bytes and maps the new range.
func (p *Pager) Grow(size int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	if size <= p.size.Load() {
		return nil
	}
	info, err := p.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < size {
		if err := p.file.Truncate(size); err != nil {
			return fmt.Errorf("extend data file to %d bytes: %w", size, err)
		}
	}
	return p.remapLocked(size)
}

func (p *Pager) remap(size int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remapLocked(size)
}

func (p *Pager) remapLocked(size int64) error {
	v, err := p.shim.mapView(p.file, size)
	if err != nil {
		return fmt.Errorf("map data file (%d bytes): %w", size, err)
	}
	_ = p.shim.advise(v, true) // advisory only
	if old := p.current.Swap(v); old != nil {
		p.retired = append(p.retired, old)
	}
	p.size.Store(size)
	return nil
}

// Sync makes written pages durable.
func (p *Pager) Sync() error {
	return p.shim.SyncFile(p.file)
}

// File returns the underlying file.
func (p *Pager) File() *os.File {
	return p.file
}

// Close unmaps every mapping. The file itself is left open for the owner
// to close.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	p.closed = true

	var firstErr error
	views := p.retired
	if v := p.current.Swap(nil); v != nil {
		views = append(views, v)
	}
	for _, v := range views {
		if err := p.shim.unmapView(v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.retired = nil
	p.size.Store(0)
	return firstErr
}
