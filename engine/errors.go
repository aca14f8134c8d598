package engine

import "errors"

var (
	// ErrPoolClosed is returned when work is submitted to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrNotFound is returned when a requested id has no stored value.
	ErrNotFound = errors.New("not found")
)
