package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("memory not found")
	// ErrInvalidTransition is returned when a prospective memory is not in
	// the state the requested transition starts from.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StoreIOError reports a failed read, write or parse of a store file.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *StoreIOError) Unwrap() error { return e.Err }
