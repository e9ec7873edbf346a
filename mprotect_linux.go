package retext

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	mprotectRX  = unix.PROT_READ | unix.PROT_EXEC
	mprotectRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
)

// mprotect changes the protection of every page overlapping buf.
func mprotect(buf []byte, flags int) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	pageSize := uintptr(unix.Getpagesize())

	pageStart := addr &^ (pageSize - 1)
	end := addr + uintptr(len(buf))
	regionSize := (end - pageStart + pageSize - 1) &^ (pageSize - 1)

	region := unsafe.Slice((*byte)(unsafe.Pointer(pageStart)), regionSize)
	return unix.Mprotect(region, flags)
}

// writeCode copies src over the live code at dst.
func writeCode(dst, src []byte) error {
	if err := mprotect(dst, mprotectRWX); err != nil {
		return err
	}
	copy(dst, src)
	return mprotect(dst, mprotectRX)
}
