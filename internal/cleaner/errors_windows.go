//go:build windows

package cleaner

import (
	"errors"
	"syscall"
)

const (
	errSharingViolation syscall.Errno = 32
	errLockViolation    syscall.Errno = 33
	errDiskFull         syscall.Errno = 112
)

func isLockErr(err error) bool {
	return errors.Is(err, errSharingViolation) || errors.Is(err, errLockViolation)
}

func isDiskFullErr(err error) bool {
	return errors.Is(err, errDiskFull)
}
