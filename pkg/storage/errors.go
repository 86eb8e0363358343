package storage

import (
	"errors"
	"fmt"
)

// Op names the filesystem operation that failed.
type Op string

const (
	OpWrite            Op = "write"
	OpRead             Op = "read"
	OpDelete           Op = "delete"
	OpDeleteDirectory  Op = "delete_directory"
	OpCreateDirectory  Op = "create_directory"
	OpMove             Op = "move"
	OpCopy             Op = "copy"
	OpCheckExistence   Op = "check_existence"
	OpRetrieveMetadata Op = "retrieve_metadata"
	OpSetVisibility    Op = "set_visibility"
)

var (
	// ErrRootDirectory is returned when deleting the container root.
	ErrRootDirectory = errors.New("refusing to operate on the container root")

	// ErrNoMimeType is returned when the store holds no content type for a file.
	ErrNoMimeType = errors.New("mime type unavailable")
)

// OperationError reports a failed adapter operation.
//
// Err is the provider error (or one of this package's sentinels), so
// provider.IsNotFound and friends work on an OperationError.
type OperationError struct {
	Op          Op
	Path        string
	Destination string
	Err         error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Destination != "" {
		return fmt.Sprintf("unable to %s %q to %q: %v", e.Op, e.Path, e.Destination, e.Err)
	}
	return fmt.Sprintf("unable to %s %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsOp reports whether err is an OperationError for op.
func IsOp(err error, op Op) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Op == op
}
