package vmm

import "unsafe"

//go:nosplit
func unsafePointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // raw physical/direct-map access, not a Go-managed object
}
