//go:build !unix && !windows

package memory

import "unsafe"

// allocateAligned over-allocates from the Go heap and trims the slice to a
// page boundary.
func allocateAligned(size int) ([]byte, error) {
	raw := make([]byte, size+PageAlignment)
	off := int(uintptr(unsafe.Pointer(&raw[0])) & (PageAlignment - 1))
	if off != 0 {
		off = PageAlignment - off
	}
	return raw[off : off+size : off+size], nil
}

func freeAligned(_ []byte) error {
	return nil
}
