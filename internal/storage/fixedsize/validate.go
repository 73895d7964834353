package fixedsize

import (
	"fmt"
	"math"
)

// ValidateTree walks the whole tree and returns a descriptive error on the
// first inconsistency: wrong page type, unsorted keys, keys outside their
// parent's bounds, leaves at different depths, or counts that disagree
// with the tree state.
func (t *Tree) ValidateTree() error {
	v := &validator{tree: t, leafDepth: -1}
	if err := v.visit(t.state.RootPage, math.MinInt64, math.MaxInt64, false, 0); err != nil {
		return err
	}
	s := t.state
	if v.entries != s.Entries {
		return fmt.Errorf("fixed-size tree %q: found %d entries, state says %d", t.name, v.entries, s.Entries)
	}
	if v.leaves != s.LeafPages || v.branches != s.BranchPages {
		return fmt.Errorf("fixed-size tree %q: found %d leaf / %d branch pages, state says %d / %d",
			t.name, v.leaves, v.branches, s.LeafPages, s.BranchPages)
	}
	if int32(v.leafDepth+1) != s.Depth {
		return fmt.Errorf("fixed-size tree %q: depth is %d, state says %d", t.name, v.leafDepth+1, s.Depth)
	}
	return nil
}

type validator struct {
	tree      *Tree
	entries   int64
	leaves    int64
	branches  int64
	leafDepth int
}

// visit checks the subtree at pageNumber whose keys must be >= lo and,
// when bounded is set, < hi.
func (v *validator) visit(pageNumber, lo, hi int64, bounded bool, depth int) error {
	if depth >= maxDepth {
		return fmt.Errorf("fixed-size tree %q: deeper than %d levels", v.tree.name, maxDepth)
	}
	n, err := v.tree.read(pageNumber)
	if err != nil {
		return fmt.Errorf("fixed-size tree %q: page %d: %w", v.tree.name, pageNumber, err)
	}

	start := 0
	if !n.isLeaf {
		start = 1
	}
	for i := start; i < len(n.keys); i++ {
		k := n.keys[i]
		if i > start && k <= n.keys[i-1] {
			return fmt.Errorf("fixed-size tree %q: page %d: key %d at %d is not greater than %d",
				v.tree.name, pageNumber, k, i, n.keys[i-1])
		}
		if k < lo || (bounded && k >= hi) {
			return fmt.Errorf("fixed-size tree %q: page %d: key %d outside [%d, %d)",
				v.tree.name, pageNumber, k, lo, hi)
		}
	}

	if n.isLeaf {
		if v.leafDepth == -1 {
			v.leafDepth = depth
		} else if v.leafDepth != depth {
			return fmt.Errorf("fixed-size tree %q: leaf page %d at depth %d, others at %d",
				v.tree.name, pageNumber, depth, v.leafDepth)
		}
		if depth > 0 && len(n.keys) == 0 {
			return fmt.Errorf("fixed-size tree %q: non-root leaf page %d is empty", v.tree.name, pageNumber)
		}
		v.leaves++
		v.entries += int64(len(n.keys))
		return nil
	}

	v.branches++
	if len(n.children) == 0 {
		return fmt.Errorf("fixed-size tree %q: branch page %d has no children", v.tree.name, pageNumber)
	}
	if depth == 0 && len(n.children) < 2 {
		return fmt.Errorf("fixed-size tree %q: root branch page %d has a single child", v.tree.name, pageNumber)
	}
	for i, child := range n.children {
		childLo := lo
		if i > 0 {
			childLo = n.keys[i]
		}
		childHi, childBounded := hi, bounded
		if i+1 < len(n.children) {
			childHi, childBounded = n.keys[i+1], true
		}
		if err := v.visit(child, childLo, childHi, childBounded, depth+1); err != nil {
			return err
		}
	}
	return nil
}
