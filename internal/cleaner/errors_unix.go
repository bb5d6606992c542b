//go:build !windows

package cleaner

import (
	"errors"
	"syscall"
)

func isLockErr(err error) bool {
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY) ||
		errors.Is(err, syscall.EWOULDBLOCK)
}

func isDiskFullErr(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
