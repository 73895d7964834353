//go:build windows

package platform

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	nativeMap    = mapWindows
	nativeUnmap  = unmapWindows
	nativeAdvise = adviseWindows
)

func mapWindows(f *os.File, size int64) (*view, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY,
		uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	return &view{
		data:   unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
		handle: uintptr(h),
	}, nil
}

func unmapWindows(v *view) error {
	if v.data == nil {
		return nil
	}
	err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&v.data[0])))
	if cerr := windows.CloseHandle(windows.Handle(v.handle)); err == nil {
		err = cerr
	}
	v.data = nil
	return err
}

func adviseWindows(_ *view, _ bool) error {
	return nil
}
