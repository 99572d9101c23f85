package trees

import "errors"

var (
	ErrNilNode         = errors.New("node cannot be nil")
	ErrAlreadyAttached = errors.New("node is already attached to a directory")
	ErrCycle           = errors.New("node cannot be attached beneath itself")
	ErrNotDirectory    = errors.New("node is not a directory")
	ErrReadOnlyTx      = errors.New("tree is opened read-only")
	ErrPathNotFound    = errors.New("path not found")
)
