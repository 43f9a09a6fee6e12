package slime

import (
	"errors"

	"github.com/gogpu/slime/internal/compute"
)

// Errors returned by the simulation. Check them with errors.Is.
var (
	// ErrConfiguration reports a texture size or agent count that cannot be
	// dispatched exactly. It is returned before any GPU resource exists.
	ErrConfiguration = compute.ErrConfiguration

	// ErrResourceMissing is carried by the panic raised when a stage is used
	// before its buffers exist.
	ErrResourceMissing = compute.ErrResourceMissing

	// ErrCompileFailed wraps the errors reported by [Simulation.Failed].
	ErrCompileFailed = compute.ErrCompileFailed

	// ErrResizeUnsupported is returned by [Simulation.Resize].
	ErrResizeUnsupported = compute.ErrResizeUnsupported

	// ErrClosed is returned by Frame after Close.
	ErrClosed = compute.ErrClosed

	// ErrNoDevice is returned by NewFromProvider when the provider does not
	// expose a HAL device and queue.
	ErrNoDevice = errors.New("slime: provider has no HAL device")
)
