package pipeline

import "errors"

// Lifecycle errors. These are recoverable call errors, not session
// failures: the caller's request is rejected and the pipeline keeps
// its current state.
var (
	// ErrInvalidState indicates an operation illegal in the current
	// controller state, such as starting while already recording.
	ErrInvalidState = errors.New("invalid pipeline state")

	// ErrNotRecording indicates a stop with no session to stop.
	ErrNotRecording = errors.New("no recording in progress")

	// ErrNoComposedDestination indicates a start without the one
	// mandatory output.
	ErrNoComposedDestination = errors.New("composed destination is required")
)

// Session errors. These abort the session.
var (
	// ErrSessionFailed wraps the per-destination reasons when a session
	// cannot be brought up.
	ErrSessionFailed = errors.New("recording session failed")
)
