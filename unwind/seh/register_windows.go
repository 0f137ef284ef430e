//go:build windows

package seh

import (
	"golang.org/x/sys/windows"
)

var (
	modkernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procRtlAddFunctionTable = modkernel32.NewProc("RtlAddFunctionTable")
)

// Register installs a GC-allocated code block's RUNTIME_FUNCTION table with
// the OS, so the Win64 unwinder consults it during exception dispatch; the
// table's base address tracks the GC-allocated block itself, per the
// contract's "patched on GC move" rule.
func Register(functionTable uintptr, entryCount uint32, baseAddr uintptr) error {
	r, _, err := procRtlAddFunctionTable.Call(functionTable, uintptr(entryCount), baseAddr)
	if r == 0 {
		return err
	}
	return nil
}
