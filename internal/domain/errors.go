package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateRoot    = errors.New("duplicate root")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidStructure = errors.New("invalid structure")
)

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a referenced node does not exist
	NotFoundError struct {
		Message string
	}

	// DuplicateRootError indicates an attempt to create a second root
	DuplicateRootError struct {
		Message string
	}

	// InvalidArgumentError indicates a malformed argument, e.g. a node given as its own parent
	InvalidArgumentError struct {
		Message string
	}

	// InvalidStructureError indicates the operation would break the tree shape
	InvalidStructureError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string         { return e.Message }
func (e *DuplicateRootError) Error() string    { return e.Message }
func (e *InvalidArgumentError) Error() string  { return e.Message }
func (e *InvalidStructureError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int         { return http.StatusNotFound }
func (e *DuplicateRootError) StatusCode() int    { return http.StatusMethodNotAllowed }
func (e *InvalidArgumentError) StatusCode() int  { return http.StatusBadRequest }
func (e *InvalidStructureError) StatusCode() int { return http.StatusConflict }

// Is allows errors.Is() to match each type against its sentinel
func (e *NotFoundError) Is(target error) bool         { return target == ErrNotFound }
func (e *DuplicateRootError) Is(target error) bool    { return target == ErrDuplicateRoot }
func (e *InvalidArgumentError) Is(target error) bool  { return target == ErrInvalidArgument }
func (e *InvalidStructureError) Is(target error) bool { return target == ErrInvalidStructure }

// NodeNotFound returns the NotFoundError for an unknown node ID
func NodeNotFound(id string) error {
	return &NotFoundError{Message: fmt.Sprintf("node %s not found", id)}
}

// InvalidStructure returns an InvalidStructureError with a formatted message
func InvalidStructure(format string, args ...any) error {
	return &InvalidStructureError{Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument returns an InvalidArgumentError with a formatted message
func InvalidArgument(format string, args ...any) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}
