package platform

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"
)

// ErrUnsupportedPlatform is returned when no native implementation exists
// for the running OS or architecture.
var ErrUnsupportedPlatform = errors.New("platform: unsupported platform")

// Shim is the set of native entry points used by the engine.
type Shim struct {
	OS       string
	Arch     string
	PageSize int

	// SyncFile makes file data durable. Metadata sync is skipped where the
	// OS allows it.
	SyncFile func(f *os.File) error

	mapView   func(f *os.File, size int64) (*view, error)
	unmapView func(v *view) error
	advise    func(v *view, random bool) error
}

var (
	resolveOnce sync.Once
	resolved    *Shim
	resolveErr  error
)

// Resolve returns the shim for this process, selecting it on first use.
func Resolve() (*Shim, error) {
	resolveOnce.Do(func() {
		resolved, resolveErr = resolve(runtime.GOOS, runtime.GOARCH)
	})
	return resolved, resolveErr
}

func resolve(goos, goarch string) (*Shim, error) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		return nil, fmt.Errorf("%w: %s/%s is not a 64-bit platform", ErrUnsupportedPlatform, goos, goarch)
	}
	if nativeMap == nil {
		return nil, fmt.Errorf("%w: no memory mapping support for %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return &Shim{
		OS:        goos,
		Arch:      goarch,
		PageSize:  os.Getpagesize(),
		SyncFile:  nativeSync,
		mapView:   nativeMap,
		unmapView: nativeUnmap,
		advise:    nativeAdvise,
	}, nil
}

// view is one mapping of the data file.
type view struct {
	data   []byte
	handle uintptr
}
