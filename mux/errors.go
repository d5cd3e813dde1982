package mux

import "errors"

// Writer lifecycle errors.
var (
	// ErrNotStarted indicates an operation on a writer before Start.
	ErrNotStarted = errors.New("writer not started")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("writer already started")

	// ErrWriterFailed indicates the writer latched a hard encoder or
	// container failure and will accept no more data.
	ErrWriterFailed = errors.New("writer failed")
)

// Destination errors.
var (
	// ErrDestinationOpen indicates the output destination could not be
	// opened. This is a fatal session error, not a per-frame drop.
	ErrDestinationOpen = errors.New("cannot open destination")
)
