//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

const removeWhileLocked = true

func lock(f *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
