//go:build darwin

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// nativeSync uses F_FULLFSYNC, since fsync on darwin does not flush the
// drive cache.
func nativeSync(f *os.File) error {
	if _, err := unix.FcntlInt(f.Fd(), unix.F_FULLFSYNC, 0); err != nil {
		return f.Sync()
	}
	return nil
}
