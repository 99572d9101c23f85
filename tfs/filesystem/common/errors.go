package common

import (
	"errors"
	"io/fs"
	"syscall"
)

// Error vocabulary shared by the operation adapter and the FUSE binding.
var (
	// ErrNotFound is returned when a path does not resolve. It is
	// fs.ErrNotExist so callers can test with either.
	ErrNotFound = fs.ErrNotExist

	ErrNotADirectory = errors.New("not a directory")
	ErrNotAFile      = errors.New("not a regular file")
	ErrInvalidOffset = errors.New("invalid offset")
)

// ToErrno maps an error to the status code the dispatch runtime reports
// to the kernel. Unknown errors become EIO.
func ToErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrNotAFile):
		return syscall.EISDIR
	case errors.Is(err, ErrInvalidOffset):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

// IsExpected reports whether err belongs to the adapter's taxonomy, as
// opposed to an internal failure worth logging loudly.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotADirectory) ||
		errors.Is(err, ErrNotAFile) ||
		errors.Is(err, ErrInvalidOffset)
}
