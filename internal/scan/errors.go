// Package scan builds the extent graph for a file tree.
//
// This file contains the error types the scan reports when it aborts.
package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrSharedExtent indicates two inodes claim the same physical offset
	ErrSharedExtent = errors.New("cannot handle files with shared extents")

	// ErrNotFileOrDir indicates the path given is neither a regular file
	// nor a directory
	ErrNotFileOrDir = errors.New("not a file or directory")
)

// Error wraps a failed operation with the path being scanned when it
// failed. The scan stops at the first one.
type Error struct {
	Op   string // Operation that failed, in manual-page notation
	Path string // Path being scanned
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	return fmt.Sprintf("while scanning '%s': %s: %v", e.Path, e.Op, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// Operation names as they appear in error messages
const (
	OpOpen    = "open(2)"
	OpOpenat  = "openat(2)"
	OpFstat   = "fstat(2)"
	OpFstatat = "fstatat(2)"
	OpFsync   = "fsync(2)"
	OpReadDir = "readdir(3)"
	OpFiemap  = "ioctl(2) FS_IOC_FIEMAP"
)
