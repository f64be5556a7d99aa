package stash

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("stash: not found")
	// ErrNotNumeric is returned by Increment/Decrement when the stored
	// payload is not an integer. The payload is left untouched.
	ErrNotNumeric = errors.New("stash: value is not an integer")
	// ErrOverflow is returned by Increment/Decrement when the result does
	// not fit in an int64. The payload is left untouched.
	ErrOverflow = errors.New("stash: increment overflows int64")
	// ErrRejected is returned when a backend refuses a write (admission
	// policy, entry too large).
	ErrRejected = errors.New("stash: write rejected by backend")
	// ErrStorageDir is returned at construction when the storage directory
	// does not exist or is not writable.
	ErrStorageDir = errors.New("stash: unusable storage directory")
)

// FlushFailure is one entry that could not be removed during Flush.
type FlushFailure struct {
	Path string
	Err  error
}

// FlushError reports a partial flush. Entries removed before the failure
// stay removed.
type FlushError struct {
	Removed  int
	Failures []FlushFailure
}

func (e *FlushError) Error() string {
	switch len(e.Failures) {
	case 0:
		return "flush: unknown error"
	case 1:
		return fmt.Sprintf("flush: removed %d, failed %s: %v",
			e.Removed, e.Failures[0].Path, e.Failures[0].Err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "flush: removed %d, %d failed:", e.Removed, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, " %s: %v;", f.Path, f.Err)
	}
	return strings.TrimSuffix(b.String(), ";")
}

func (e *FlushError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
