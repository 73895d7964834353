package memory

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/KilimcininKorOglu/voron/internal/logging"
)

const (
	// PageAlignment is the alignment, and minimum size, of every buffer.
	PageAlignment = 4096

	// DefaultMaxPooledSize is the largest size class kept for reuse.
	DefaultMaxPooledSize = 16 * 1024 * 1024

	minClassShift = 12 // log2(PageAlignment)
)

// Pool errors.
var (
	ErrOutOfMemory   = errors.New("memory: out of memory")
	ErrInvalidSize   = errors.New("memory: invalid buffer size")
	ErrForeignBuffer = errors.New("memory: buffer was not allocated by this pool")
)

// PoolOptions configures a BuffersPool.
type PoolOptions struct {
	// MaxPooledSize is the largest rounded size kept on a free stack.
	// Zero selects DefaultMaxPooledSize.
	MaxPooledSize int

	// Logger receives pool events. Nil means no logging.
	Logger logging.Logger
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	AllocatedBytes int64
	PooledBytes    int64
	PooledBuffers  int
	LowMemory      bool
}

// BuffersPool hands out page-aligned buffers grouped by power-of-two size.
type BuffersPool struct {
	maxPooled int
	stacks    []*stack

	lowMemory atomic.Bool
	closed    atomic.Bool

	allocated  atomic.Int64
	pooled     atomic.Int64
	accounting *Accounting

	logger logging.Logger
}

// NewBuffersPool creates an empty pool.
func NewBuffersPool(opts PoolOptions) *BuffersPool {
	maxPooled := opts.MaxPooledSize
	if maxPooled <= 0 {
		maxPooled = DefaultMaxPooledSize
	}
	maxPooled = RoundUp(maxPooled)

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	classes := classIndex(maxPooled) + 1
	p := &BuffersPool{
		maxPooled:  maxPooled,
		stacks:     make([]*stack, classes),
		accounting: NewAccounting("pool"),
		logger:     logger.WithComponent("buffers-pool"),
	}
	for i := range p.stacks {
		p.stacks[i] = &stack{}
	}
	return p
}

// RoundUp returns size rounded up to the next power of two, and never less
// than one page.
func RoundUp(size int) int {
	if size <= PageAlignment {
		return PageAlignment
	}
	return 1 << bits.Len(uint(size-1))
}

func classIndex(rounded int) int {
	return bits.Len(uint(rounded)) - 1 - minClassShift
}

// MaxPooledSize returns the largest size class kept for reuse.
func (p *BuffersPool) MaxPooledSize() int {
	return p.maxPooled
}

// Get returns a zeroed, page-aligned buffer of at least size bytes, charged
// to the pool's own accounting token. len(buf) == size and cap(buf) is the
// rounded size.
func (p *BuffersPool) Get(size int) ([]byte, *Accounting, error) {
	buf, err := p.GetFor(p.accounting, size)
	return buf, p.accounting, err
}

// GetFor is Get charged to the supplied accounting token.
func (p *BuffersPool) GetFor(acct *Accounting, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	rounded := RoundUp(size)

	if rounded <= p.maxPooled {
		if buf, ok := p.stacks[classIndex(rounded)].pop(); ok {
			p.pooled.Add(-int64(rounded))
			acct.onAllocate(rounded)
			return buf[:size], nil
		}
	}

	buf, err := allocateAligned(rounded)
	if err != nil {
		return nil, err
	}
	p.allocated.Add(int64(rounded))
	acct.onAllocate(rounded)
	return buf[:size], nil
}

// Return gives a buffer back. The memory is zeroed before it is either kept
// for reuse or released to the OS. A nil buffer is ignored.
func (p *BuffersPool) Return(buf []byte, size int, acct *Accounting) error {
	if buf == nil {
		return nil
	}
	rounded := RoundUp(size)
	if cap(buf) != rounded {
		return fmt.Errorf("%w: capacity %d for size %d", ErrForeignBuffer, cap(buf), size)
	}
	buf = buf[:rounded]
	clear(buf)
	acct.onRelease(rounded)

	if rounded > p.maxPooled || p.lowMemory.Load() || p.closed.Load() {
		return p.free(buf)
	}

	s := p.stacks[classIndex(rounded)]
	s.push(buf)
	p.pooled.Add(int64(rounded))

	// A low-memory signal may have drained the stacks between the check
	// above and the push.
	if p.lowMemory.Load() {
		return p.drain(s, rounded)
	}
	return nil
}

func (p *BuffersPool) free(buf []byte) error {
	p.allocated.Add(-int64(cap(buf)))
	return freeAligned(buf)
}

func (p *BuffersPool) drain(s *stack, rounded int) error {
	var firstErr error
	for {
		buf, ok := s.pop()
		if !ok {
			return firstErr
		}
		p.pooled.Add(-int64(rounded))
		if err := p.free(buf); err != nil && firstErr == nil {
			firstErr = err
		}
	}
}

// ReleaseUnmanagedResources frees every pooled buffer back to the OS.
// Buffers currently handed out are not affected.
func (p *BuffersPool) ReleaseUnmanagedResources() error {
	before := p.pooled.Load()
	var firstErr error
	for i, s := range p.stacks {
		if err := p.drain(s, PageAlignment<<i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if before > 0 {
		p.logger.Debug("released pooled memory", "size", humanize.IBytes(uint64(before)))
	}
	return firstErr
}

// LowMemory switches the pool into low-memory mode and drains it.
func (p *BuffersPool) LowMemory() {
	if p.lowMemory.CompareAndSwap(false, true) {
		p.logger.Info("low memory signalled, releasing pooled buffers")
	}
	if err := p.ReleaseUnmanagedResources(); err != nil {
		p.logger.Warn("failed to release pooled buffers", "error", err)
	}
}

// LowMemoryOver resumes pooling of returned buffers.
func (p *BuffersPool) LowMemoryOver() {
	if p.lowMemory.CompareAndSwap(true, false) {
		p.logger.Info("low memory condition over")
	}
}

// IsLowMemory reports whether the pool is in low-memory mode.
func (p *BuffersPool) IsLowMemory() bool {
	return p.lowMemory.Load()
}

// Stats returns current usage.
func (p *BuffersPool) Stats() PoolStats {
	count := 0
	for _, s := range p.stacks {
		count += s.len()
	}
	return PoolStats{
		AllocatedBytes: p.allocated.Load(),
		PooledBytes:    p.pooled.Load(),
		PooledBuffers:  count,
		LowMemory:      p.lowMemory.Load(),
	}
}

// Peek returns the buffer that the next Get of the given size would reuse,
// or nil. It lets tests inspect pooled memory.
func (p *BuffersPool) Peek(size int) []byte {
	rounded := RoundUp(size)
	if rounded > p.maxPooled {
		return nil
	}
	return p.stacks[classIndex(rounded)].peek()
}

// Close releases all pooled memory; later returns free immediately.
func (p *BuffersPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.ReleaseUnmanagedResources()
}
