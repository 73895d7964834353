//go:build !unix && !windows

package platform

import "os"

var (
	nativeMap    func(f *os.File, size int64) (*view, error)
	nativeUnmap  func(v *view) error
	nativeAdvise func(v *view, random bool) error
)
