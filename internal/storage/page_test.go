package storage

import (
	"testing"
)

// =============================================================================
// PageFlags Tests
// =============================================================================

func TestPageFlagsString(t *testing.T) {
	tests := []struct {
		flags    PageFlags
		expected string
	}{
		{0, "None"},
		{PageFlagBranch, "Branch"},
		{PageFlagLeaf, "Leaf"},
		{PageFlagOverflow, "Overflow"},
		{PageFlagFixedSizeBranch, "FixedSizeBranch"},
		{PageFlagFixedSizeLeaf, "FixedSizeLeaf"},
		{PageFlagFreelist, "Freelist"},
		{PageFlagLeaf | PageFlagOverflow, "PageFlags(0x6)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.flags.String(); got != tt.expected {
				t.Errorf("PageFlags.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// =============================================================================
// Page Tests
// =============================================================================

func TestPageReset(t *testing.T) {
	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = 0xAB
	}
	p := NewPage(buf)
	p.Reset(42, PageFlagLeaf)

	if p.PageNumber() != 42 {
		t.Errorf("PageNumber() = %v, want 42", p.PageNumber())
	}
	if p.Flags() != PageFlagLeaf {
		t.Errorf("Flags() = %v, want Leaf", p.Flags())
	}
	if !p.IsLeaf() || p.IsBranch() || p.IsOverflow() {
		t.Errorf("IsLeaf/IsBranch/IsOverflow = %v/%v/%v, want true/false/false", p.IsLeaf(), p.IsBranch(), p.IsOverflow())
	}
	if p.Lower() != PageHeaderSize {
		t.Errorf("Lower() = %v, want %v", p.Lower(), PageHeaderSize)
	}
	if p.Upper() != PageSize {
		t.Errorf("Upper() = %v, want %v", p.Upper(), PageSize)
	}
	if p.NumberOfEntries() != 0 || p.OverflowSize() != 0 || p.ValueSize() != 0 {
		t.Errorf("entries/overflow/value size = %v/%v/%v, want zeros", p.NumberOfEntries(), p.OverflowSize(), p.ValueSize())
	}
	for i, b := range p.Data() {
		if b != 0 {
			t.Fatalf("Data()[%d] = %#x, want 0", i, b)
		}
	}
}

func TestPageAccessors(t *testing.T) {
	p := NewPage(make([]byte, PageSize))
	p.Reset(7, PageFlagFixedSizeLeaf)

	p.SetPageNumber(1<<40 + 3)
	p.SetLower(100)
	p.SetUpper(3000)
	p.SetNumberOfEntries(250)
	p.SetValueSize(8)
	p.SetOverflowSize(12345)

	if p.PageNumber() != 1<<40+3 {
		t.Errorf("PageNumber() = %v, want %v", p.PageNumber(), int64(1<<40+3))
	}
	if p.Lower() != 100 {
		t.Errorf("Lower() = %v, want 100", p.Lower())
	}
	if p.Upper() != 3000 {
		t.Errorf("Upper() = %v, want 3000", p.Upper())
	}
	if p.NumberOfEntries() != 250 {
		t.Errorf("NumberOfEntries() = %v, want 250", p.NumberOfEntries())
	}
	if p.ValueSize() != 8 {
		t.Errorf("ValueSize() = %v, want 8", p.ValueSize())
	}
	if p.OverflowSize() != 12345 {
		t.Errorf("OverflowSize() = %v, want 12345", p.OverflowSize())
	}
	if p.Flags() != PageFlagFixedSizeLeaf {
		t.Errorf("Flags() = %v, want FixedSizeLeaf", p.Flags())
	}
	if len(p.Bytes()) != PageSize || len(p.Data()) != PageSize-PageHeaderSize {
		t.Errorf("Bytes/Data = %d/%d, want %d/%d", len(p.Bytes()), len(p.Data()), PageSize, PageSize-PageHeaderSize)
	}
}

func TestPageIsNil(t *testing.T) {
	var p Page
	if !p.IsNil() {
		t.Error("zero Page IsNil() = false, want true")
	}
	if NewPage(make([]byte, PageSize)).IsNil() {
		t.Error("NewPage IsNil() = true, want false")
	}
}

func TestPageNumberOfPages(t *testing.T) {
	tests := []struct {
		name     string
		flags    PageFlags
		overflow int
		expected int
	}{
		{"leaf", PageFlagLeaf, 0, 1},
		{"branch ignores overflow size", PageFlagBranch, 9000, 1},
		{"small overflow", PageFlagOverflow, 100, 1},
		{"overflow spilling", PageFlagOverflow, PageSize, 2},
		{"freelist run", PageFlagFreelist, 3 * PageSize, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage(make([]byte, PageSize))
			p.Reset(1, tt.flags)
			p.SetOverflowSize(tt.overflow)
			if got := p.NumberOfPages(); got != tt.expected {
				t.Errorf("NumberOfPages() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPagesForSize(t *testing.T) {
	tests := []struct {
		size     int
		expected int
	}{
		{0, 1},
		{PageSize - PageHeaderSize, 1},
		{PageSize - PageHeaderSize + 1, 2},
		{2*PageSize - PageHeaderSize, 2},
		{2*PageSize - PageHeaderSize + 1, 3},
		{1 << 20, 257},
	}

	for _, tt := range tests {
		if got := PagesForSize(tt.size); got != tt.expected {
			t.Errorf("PagesForSize(%d) = %v, want %v", tt.size, got, tt.expected)
		}
	}
}

func TestPageResetRun(t *testing.T) {
	p := NewPage(make([]byte, 3*PageSize))
	p.Reset(10, PageFlagOverflow)

	if p.Size() != 3*PageSize {
		t.Errorf("Size() = %v, want %v", p.Size(), 3*PageSize)
	}
	if p.Upper() != PageSize {
		t.Errorf("Upper() = %v, want %v", p.Upper(), PageSize)
	}
}
