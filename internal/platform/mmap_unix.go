//go:build unix

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

var (
	nativeMap    = mapUnix
	nativeUnmap  = unmapUnix
	nativeAdvise = adviseUnix
)

func mapUnix(f *os.File, size int64) (*view, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &view{data: data}, nil
}

func unmapUnix(v *view) error {
	if v.data == nil {
		return nil
	}
	err := unix.Munmap(v.data)
	v.data = nil
	return err
}

func adviseUnix(v *view, random bool) error {
	advice := unix.MADV_NORMAL
	if random {
		advice = unix.MADV_RANDOM
	}
	return unix.Madvise(v.data, advice)
}
