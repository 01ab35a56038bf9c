package store

import (
	"errors"
	"fmt"
)

// ErrProjectNotFound is returned by operations that require the project file
// to exist. A plain Read reports absence via its exists flag instead.
var ErrProjectNotFound = errors.New("project not found")

// ErrProjectExists is returned by Create when the project file is already
// present.
var ErrProjectExists = errors.New("project already exists")

// ErrInvalidProject is returned for project names that cannot be used as a
// file name (empty, or containing path separators).
var ErrInvalidProject = errors.New("invalid project name")

// CorruptionError reports a project file that exists but cannot be decoded.
// Distinct from I/O failures so callers can tell "disk broken" from "content
// broken".
type CorruptionError struct {
	Project string
	Err     error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("project %q file is corrupt: %v", e.Project, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// StorageError wraps an underlying I/O failure, unchanged, with the operation
// that hit it.
type StorageError struct {
	Op      string
	Project string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Project, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
