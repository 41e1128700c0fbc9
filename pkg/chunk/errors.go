package chunk

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a requested object does not exist in the backend.
var ErrNotFound = errors.New("object not found")

// ReadError wraps a failure to fetch or parse a stored chunk.
type ReadError struct {
	Key string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading chunk %s: %v", e.Key, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps a failure to write a chunk or artifact.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing object %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SignError wraps a failure to generate a signed retrieval URL.
type SignError struct {
	Key string
	Err error
}

func (e *SignError) Error() string {
	return fmt.Sprintf("signing url for %s: %v", e.Key, e.Err)
}

func (e *SignError) Unwrap() error { return e.Err }
