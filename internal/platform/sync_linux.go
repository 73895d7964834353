//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

func nativeSync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
