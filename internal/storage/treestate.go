package storage

import (
	"encoding/binary"
	"fmt"
)

// TreeStateSize is the encoded size of a TreeState.
const TreeStateSize = 56

// RootObjectType identifies what a name in the root tree refers to.
type RootObjectType uint8

const (
	// RootObjectNone is an unknown or missing object.
	RootObjectNone RootObjectType = iota
	// RootObjectVariableSizeTree is a byte-keyed B+Tree.
	RootObjectVariableSizeTree
	// RootObjectFixedSizeTree is an int64-keyed tree with fixed-width values.
	RootObjectFixedSizeTree
	// RootObjectTable is a table root tree holding a schema.
	RootObjectTable
)

// String returns the string representation of the type.
func (t RootObjectType) String() string {
	switch t {
	case RootObjectVariableSizeTree:
		return "VariableSizeTree"
	case RootObjectFixedSizeTree:
		return "FixedSizeTree"
	case RootObjectTable:
		return "Table"
	default:
		return "None"
	}
}

// TreeState is the persistent description of a tree, stored as the value
// of its name in the root tree (or, for the root tree itself, in the
// journal record and file header).
type TreeState struct {
	Type          RootObjectType
	ValueSize     uint16 // fixed-size trees only
	Depth         int32
	RootPage      int64
	BranchPages   int64
	LeafPages     int64
	OverflowPages int64
	Entries       int64
}

// PageCount returns the total number of pages owned by the tree.
func (s TreeState) PageCount() int64 {
	return s.BranchPages + s.LeafPages + s.OverflowPages
}

// MarshalTo encodes the state into buf, which must be TreeStateSize long.
func (s TreeState) MarshalTo(buf []byte) {
	buf[0] = byte(s.Type)
	buf[1] = 0
	binary.LittleEndian.PutUint16(buf[2:4], s.ValueSize)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.Depth))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(s.RootPage))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(s.BranchPages))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(s.LeafPages))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(s.OverflowPages))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(s.Entries))
	clear(buf[48:TreeStateSize])
}

// Marshal encodes the state into a new slice.
func (s TreeState) Marshal() []byte {
	buf := make([]byte, TreeStateSize)
	s.MarshalTo(buf)
	return buf
}

// UnmarshalTreeState decodes a state written by MarshalTo.
func UnmarshalTreeState(buf []byte) (TreeState, error) {
	if len(buf) < TreeStateSize {
		return TreeState{}, fmt.Errorf("tree state: %d bytes, want %d", len(buf), TreeStateSize)
	}
	return TreeState{
		Type:          RootObjectType(buf[0]),
		ValueSize:     binary.LittleEndian.Uint16(buf[2:4]),
		Depth:         int32(binary.LittleEndian.Uint32(buf[4:8])),
		RootPage:      int64(binary.LittleEndian.Uint64(buf[8:16])),
		BranchPages:   int64(binary.LittleEndian.Uint64(buf[16:24])),
		LeafPages:     int64(binary.LittleEndian.Uint64(buf[24:32])),
		OverflowPages: int64(binary.LittleEndian.Uint64(buf[32:40])),
		Entries:       int64(binary.LittleEndian.Uint64(buf[40:48])),
	}, nil
}
