// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrInvalidFilesystemPath is the sentinel error wrapped by InvalidFilesystemPathError.
	ErrInvalidFilesystemPath = errors.New("invalid filesystem path")

	// ErrInvalidContainerPath is the sentinel error wrapped by InvalidContainerPathError.
	ErrInvalidContainerPath = errors.New("invalid container path")
)

type (
	// FilesystemPath represents an absolute or relative host filesystem path.
	// A valid path must be non-empty and not whitespace-only.
	FilesystemPath string

	// InvalidFilesystemPathError is returned when a FilesystemPath value is
	// empty or whitespace-only.
	InvalidFilesystemPathError struct {
		Value FilesystemPath
	}

	// ContainerPath is a POSIX path inside an image filesystem.
	// A valid path is absolute, clean, and contains no whitespace.
	ContainerPath string

	// InvalidContainerPathError is returned when a ContainerPath is not an
	// absolute, clean POSIX path.
	InvalidContainerPathError struct {
		Value  ContainerPath
		Reason string
	}
)

// String returns the string representation of the FilesystemPath.
func (p FilesystemPath) String() string { return string(p) }

// Validate returns an error if the FilesystemPath is empty or whitespace-only.
func (p FilesystemPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidFilesystemPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidFilesystemPathError.
func (e *InvalidFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid filesystem path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidFilesystemPath for errors.Is() compatibility.
func (e *InvalidFilesystemPathError) Unwrap() error { return ErrInvalidFilesystemPath }

// String returns the string representation of the ContainerPath.
func (p ContainerPath) String() string { return string(p) }

// Validate returns an error unless the path is absolute, already clean,
// and free of whitespace.
func (p ContainerPath) Validate() error {
	s := string(p)
	switch {
	case s == "":
		return &InvalidContainerPathError{Value: p, Reason: "must be non-empty"}
	case !path.IsAbs(s):
		return &InvalidContainerPathError{Value: p, Reason: "must be absolute"}
	case path.Clean(s) != s:
		return &InvalidContainerPathError{Value: p, Reason: "must be clean (no trailing slash, '.' or '..')"}
	case strings.ContainsAny(s, " \t\r\n"):
		return &InvalidContainerPathError{Value: p, Reason: "must not contain whitespace"}
	}
	return nil
}

// Error implements the error interface for InvalidContainerPathError.
func (e *InvalidContainerPathError) Error() string {
	return fmt.Sprintf("invalid container path %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidContainerPath for errors.Is() compatibility.
func (e *InvalidContainerPathError) Unwrap() error { return ErrInvalidContainerPath }
