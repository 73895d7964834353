package btree

import (
	"bytes"
	"fmt"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// splitAndPropagate writes the last node of path, splitting it and its
// ancestors for as long as they do not fit in a page.
func (t *Tree) splitAndPropagate(path []*node, idx []int) error {
	for level := len(path) - 1; ; level-- {
		n := path[level]
		if n.fitsInPage() {
			return t.writeNode(n)
		}

		right, sep, err := t.splitNode(n)
		if err != nil {
			return err
		}
		if err := t.writeNode(n); err != nil {
			return err
		}
		if err := t.writeNode(right); err != nil {
			return err
		}

		if level == 0 {
			return t.createNewRoot(n.pageNumber, sep, right.pageNumber)
		}
		path[level-1].insertChild(idx[level-1], sep, right.pageNumber)
	}
}

// splitNode moves the upper half of n into a new sibling and returns the
// sibling with the separator key to promote.
func (t *Tree) splitNode(n *node) (*node, []byte, error) {
	if n.entryCount() < 2 {
		return nil, nil, fmt.Errorf("%w: cannot split page %d with %d entries", ErrCorruptedNode, n.pageNumber, n.entryCount())
	}
	s := n.splitPoint()
	right, err := t.allocateNode(n.isLeaf)
	if err != nil {
		return nil, nil, err
	}

	if !n.isLeaf {
		sep := bytes.Clone(n.keys[s-1])
		right.keys = cloneKeys(n.keys[s:])
		right.children = append([]int64(nil), n.children[s:]...)
		n.keys = n.keys[:s-1:s-1]
		n.children = n.children[:s:s]
		return right, sep, nil
	}

	right.keys = cloneKeys(n.keys[s:])
	right.values = cloneValues(n.values[s:])
	n.keys = n.keys[:s:s]
	n.values = n.values[:s:s]

	right.next = n.next
	right.prev = n.pageNumber
	n.next = right.pageNumber
	if right.next != storage.InvalidPage {
		if err := t.relink(right.next, func(next *node) { next.prev = right.pageNumber }); err != nil {
			return nil, nil, err
		}
	}
	return right, bytes.Clone(right.keys[0]), nil
}

// cloneKeys copies keys out of the page buffer they were decoded from,
// which writeNode may rewrite in place.
func cloneKeys(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = bytes.Clone(k)
	}
	return out
}

func cloneValues(values []leafValue) []leafValue {
	out := make([]leafValue, len(values))
	for i, v := range values {
		v.data = bytes.Clone(v.data)
		out[i] = v
	}
	return out
}

// relink rewrites the sibling links of the leaf at pageNumber.
func (t *Tree) relink(pageNumber int64, update func(*node)) error {
	n, err := t.readNode(pageNumber)
	if err != nil {
		return err
	}
	update(n)
	return t.writeNode(n)
}

// createNewRoot grows the tree by one level.
func (t *Tree) createNewRoot(left int64, sep []byte, right int64) error {
	root, err := t.allocateNode(false)
	if err != nil {
		return err
	}
	root.keys = [][]byte{sep}
	root.children = []int64{left, right}
	if err := t.writeNode(root); err != nil {
		return err
	}
	t.state.RootPage = root.pageNumber
	t.state.Depth++
	return nil
}

// writeOverflow stores value in a fresh overflow run.
func (t *Tree) writeOverflow(value []byte, version uint16) (leafValue, error) {
	pages := storage.PagesForSize(len(value))
	p, err := t.tx.AllocatePage(pages)
	if err != nil {
		return leafValue{}, err
	}
	pageNumber := p.PageNumber()
	p.Reset(pageNumber, storage.PageFlagOverflow)
	p.SetOverflowSize(len(value))
	copy(p.Data(), value)
	t.state.OverflowPages += int64(pages)
	t.changed = true
	return leafValue{
		kind:    valueOverflow,
		version: version,
		page:    pageNumber,
		size:    int64(len(value)),
	}, nil
}

func (t *Tree) readOverflow(v leafValue) ([]byte, error) {
	p, err := t.tx.GetPage(v.page)
	if err != nil {
		return nil, err
	}
	if !p.IsOverflow() || int64(p.OverflowSize()) != v.size || int64(len(p.Data())) < v.size {
		return nil, fmt.Errorf("%w: overflow page %d does not hold %d bytes", ErrCorruptedNode, v.page, v.size)
	}
	return p.Data()[:v.size], nil
}

func (t *Tree) freeOverflow(v leafValue) error {
	pages := storage.PagesForSize(int(v.size))
	if err := t.tx.FreePage(v.page, pages); err != nil {
		return err
	}
	t.state.OverflowPages -= int64(pages)
	t.changed = true
	return nil
}
