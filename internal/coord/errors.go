package coord

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Session or Client wraps exactly one
// of these and can be classified with errors.Is.
var (
	// ErrConnection means a session could not be established.
	ErrConnection = errors.New("connection error")

	// ErrConnectionLoss means an established session dropped mid-call.
	ErrConnectionLoss = errors.New("connection loss")

	// ErrNodeExists means a non-sequential create collided with an existing path.
	ErrNodeExists = errors.New("node already exists")

	// ErrVersionMismatch means the node was modified since its version was read.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrNoNode means the node (or its parent, for creates) does not exist.
	ErrNoNode = errors.New("node does not exist")

	// ErrNotEmpty means a delete targeted a node that still has children.
	ErrNotEmpty = errors.New("node has children")

	// ErrOperation is any other service-side failure.
	ErrOperation = errors.New("operation failed")
)

// OpError records the operation and path that failed.
type OpError struct {
	// Op is the operation name: connect, create, multi, exists, delete, children.
	Op string
	// Path is the node path, or the server list for connect.
	Path string
	// Kind is one of the Err* sentinels.
	Kind error
	// Err is the underlying library error, if any.
	Err error
}

func (e *OpError) Error() string {
	cause := e.Kind
	if e.Err != nil && e.Err != e.Kind {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, cause, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, cause)
}

// Unwrap exposes both the kind and the library error to errors.Is.
func (e *OpError) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, path string, kind, err error) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// IsNodeExists reports whether err is an ErrNodeExists.
func IsNodeExists(err error) bool {
	return errors.Is(err, ErrNodeExists)
}

// IsNoNode reports whether err is an ErrNoNode.
func IsNoNode(err error) bool {
	return errors.Is(err, ErrNoNode)
}
