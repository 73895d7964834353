package memory

import "sync/atomic"

// Accounting tracks native memory handed out to one owner, such as a
// transaction or the pool itself. It is safe for concurrent use.
type Accounting struct {
	name      string
	allocated atomic.Int64
	released  atomic.Int64
}

// NewAccounting returns an empty accounting token.
func NewAccounting(name string) *Accounting {
	return &Accounting{name: name}
}

// Name returns the owner name given at creation.
func (a *Accounting) Name() string {
	return a.name
}

// Allocated returns the total bytes handed out to this owner.
func (a *Accounting) Allocated() int64 {
	return a.allocated.Load()
}

// Released returns the total bytes this owner has given back.
func (a *Accounting) Released() int64 {
	return a.released.Load()
}

// InUse returns bytes currently held by this owner.
func (a *Accounting) InUse() int64 {
	return a.allocated.Load() - a.released.Load()
}

func (a *Accounting) onAllocate(n int) {
	if a != nil {
		a.allocated.Add(int64(n))
	}
}

func (a *Accounting) onRelease(n int) {
	if a != nil {
		a.released.Add(int64(n))
	}
}
