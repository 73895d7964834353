package memory

import "sync/atomic"

type stackNode struct {
	buf  []byte
	next *stackNode
}

// stack is a Treiber stack of free buffers for a single size class.
// Nodes are never reused, so a CAS on the head pointer cannot suffer ABA.
type stack struct {
	head  atomic.Pointer[stackNode]
	count atomic.Int64
}

func (s *stack) push(buf []byte) {
	n := &stackNode{buf: buf}
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			s.count.Add(1)
			return
		}
	}
}

func (s *stack) pop() ([]byte, bool) {
	for {
		old := s.head.Load()
		if old == nil {
			return nil, false
		}
		if s.head.CompareAndSwap(old, old.next) {
			s.count.Add(-1)
			return old.buf, true
		}
	}
}

func (s *stack) peek() []byte {
	if n := s.head.Load(); n != nil {
		return n.buf
	}
	return nil
}

func (s *stack) len() int {
	return int(s.count.Load())
}
