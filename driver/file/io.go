package file

import (
	"errors"
	"io"
	"os"
)

// withLock opens path, takes a shared or exclusive lock and runs fn.
// The lock is released before the file is closed.
//
// If path was removed or replaced while waiting for the lock, the handle is
// dropped and the open retried: fn only ever sees the file path names.
func withLock(path string, flag int, perm os.FileMode, exclusive bool, fn func(*os.File) error) error {
	for {
		err := lockOnce(path, flag, perm, exclusive, fn)
		if err != errUnlinked {
			return err
		}
	}
}

var errUnlinked = errors.New("file unlinked while waiting for lock")

func lockOnce(path string, flag int, perm os.FileMode, exclusive bool, fn func(*os.File) error) (err error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := lock(f, exclusive); err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(f); err == nil {
			err = uerr
		}
	}()
	if !linked(f, path) {
		return errUnlinked
	}
	return fn(f)
}

// linked reports whether f is still the file named by path.
func linked(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	named, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, named)
}

func readLocked(path string) ([]byte, error) {
	var b []byte
	err := withLock(path, os.O_RDONLY, 0, false, func(f *os.File) error {
		var err error
		b, err = io.ReadAll(f)
		return err
	})
	return b, err
}

// writeLocked replaces the contents of path with b. The file is truncated
// only after the exclusive lock is held (O_TRUNC on open would race with
// readers holding a shared lock).
func writeLocked(path string, b []byte, perm os.FileMode) error {
	return withLock(path, os.O_WRONLY|os.O_CREATE, perm, true, func(f *os.File) error {
		return rewrite(f, b)
	})
}

func rewrite(f *os.File, b []byte) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	n, err := f.WriteAt(b, 0)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}
