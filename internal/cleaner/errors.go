package cleaner

import (
	"errors"
	"fmt"
	"os"
)

// ErrorKind buckets deletion failures by what the caller can do about them.
type ErrorKind int

const (
	ErrOther ErrorKind = iota
	ErrNotFound
	ErrPermissionDenied
	ErrLocked
	ErrDiskFull
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "not found"
	case ErrPermissionDenied:
		return "permission denied"
	case ErrLocked:
		return "locked"
	case ErrDiskFull:
		return "disk full"
	default:
		return "error"
	}
}

// DeletionError wraps a failed deletion with its classification.
type DeletionError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("delete %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *DeletionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether waiting and retrying can plausibly succeed.
// Lock errors clear when the holding process lets go; permission errors
// do not.
func (e *DeletionError) Retryable() bool {
	return e.Kind == ErrLocked
}

// classify maps an OS error to an ErrorKind. Permission-shaped errors are
// ambiguous on some platforms where a sharing violation also surfaces as
// access-denied, so the caller re-probes the lock before trusting
// ErrPermissionDenied.
func classify(path string, err error) *DeletionError {
	kind := ErrOther
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		kind = ErrNotFound
	case isLockErr(err):
		kind = ErrLocked
	case errors.Is(err, os.ErrPermission):
		kind = ErrPermissionDenied
	case isDiskFullErr(err):
		kind = ErrDiskFull
	}
	return &DeletionError{Path: path, Kind: kind, Err: err}
}
