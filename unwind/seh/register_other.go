//go:build !windows

package seh

import "errors"

// Register is a non-Windows no-op stub; nothing outside a Win64 host
// process ever calls the OS function-table API.
func Register(functionTable uintptr, entryCount uint32, baseAddr uintptr) error {
	return errors.New("seh.Register is only available on windows")
}
