//go:build windows

package file

import (
	"os"

	"golang.org/x/sys/windows"
)

// whole-file range, as the Go toolchain's own lockedfile does.
const allBytes = ^uint32(0)

// Open handles lack FILE_SHARE_DELETE, so a locked file cannot be removed.
const removeWhileLocked = false

func lock(f *os.File, exclusive bool) error {
	var flags uint32
	if exclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, allBytes, allBytes, ol)
}

func unlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, allBytes, allBytes, ol)
}
