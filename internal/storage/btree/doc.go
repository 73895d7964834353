// Package btree implements the variable-size B+ tree used for every named
// tree in a storage environment.
//
// # Overview
//
// Keys are byte strings compared lexicographically, up to MaxKeySize bytes.
// Each tree lives in pages obtained through a PageAccessor, normally a
// transaction. Page numbers are stable: modifying a page makes the
// transaction hand out a private copy under the same number, so parents
// never need rewriting when a child changes.
//
// # Node Structure
//
// Nodes are decoded from a page into a node value, modified in memory and
// encoded back, the same way for leaves and branches:
//
//   - Branch pages: (key, child page) entries; the first key is empty
//   - Leaf pages: (key, value) entries plus prev/next sibling links
//
// Values up to MaxInlineValueSize bytes live in the leaf. Larger values
// are written to a contiguous overflow run. A multi-value key stores the
// root of a nested tree whose keys are the values.
//
// # Usage
//
//	t, err := btree.Create(tx, "users")
//	err = t.Add([]byte("users/1"), []byte("alice"))
//	value, found, err := t.Read([]byte("users/1"))
//
//	it := t.Iterate()
//	for ok := it.SeekToFirst(); ok; ok = it.Next() {
//	    fmt.Printf("%s\n", it.Key())
//	}
package btree
