//go:build !linux && !darwin

package platform

import "os"

func nativeSync(f *os.File) error {
	return f.Sync()
}
