//go:build unix

package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocateAligned maps anonymous memory, which the kernel always hands out
// on page boundaries.
func allocateAligned(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrOutOfMemory, size, err)
	}
	return buf, nil
}

func freeAligned(buf []byte) error {
	return unix.Munmap(buf[:cap(buf)])
}
