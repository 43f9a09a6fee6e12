package compute

import "errors"

var (
	// ErrConfiguration is returned when texture dimensions or agent count
	// cannot be dispatched exactly. It is detected before any GPU work.
	ErrConfiguration = errors.New("compute: invalid configuration")

	// ErrResourceMissing indicates a stage was used before its resources
	// were created. It is raised as a panic because it is a programming error.
	ErrResourceMissing = errors.New("compute: stage resource missing")

	// ErrCompileFailed is reported for a stage whose pipeline failed to
	// compile. The stage stays in Loading for the rest of the process.
	ErrCompileFailed = errors.New("compute: pipeline compilation failed")

	// ErrResizeUnsupported is returned when the shared images are asked
	// to change size after creation.
	ErrResizeUnsupported = errors.New("compute: shared images cannot be resized")

	// ErrClosed is returned when a closed orchestrator is used.
	ErrClosed = errors.New("compute: orchestrator closed")
)
