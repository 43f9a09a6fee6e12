package compute

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/slime/internal/kernel"
)

const (
	// TileSize is the edge length of the square workgroup used by the
	// texture stages. It matches @workgroup_size(8, 8, 1) in the kernels.
	TileSize = 8

	// AgentGroupSize is the workgroup width of the agent stage. It matches
	// @workgroup_size(16, 1, 1) in simulation.wgsl.
	AgentGroupSize = 16

	// MaxBlurRadius is the largest blur radius the blur kernel accepts.
	MaxBlurRadius = 7
)

// Config holds the startup parameters of the compute pipeline.
// It is read once by NewOrchestrator and cannot change afterwards.
type Config struct {
	// Width and Height are the shared image dimensions in pixels.
	Width  uint32
	Height uint32

	// Agents is the fixed agent population.
	Agents uint32

	// Limits bounds texture size and dispatch counts. The zero value
	// means gputypes.DefaultLimits().
	Limits gputypes.Limits
}

// limits returns the configured limits, falling back to the WebGPU defaults.
func (c Config) limits() gputypes.Limits {
	if c.Limits.MaxTextureDimension2D == 0 {
		return gputypes.DefaultLimits()
	}
	return c.Limits
}

// Validate checks that every stage can be dispatched with an exact
// workgroup count. All failures wrap ErrConfiguration.
func (c Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: texture size %dx%d is empty", ErrConfiguration, c.Width, c.Height)
	}
	if c.Width%TileSize != 0 || c.Height%TileSize != 0 {
		return fmt.Errorf("%w: texture size %dx%d is not a multiple of %d",
			ErrConfiguration, c.Width, c.Height, TileSize)
	}
	if c.Agents == 0 {
		return fmt.Errorf("%w: agent count is zero", ErrConfiguration)
	}
	if c.Agents%AgentGroupSize != 0 {
		return fmt.Errorf("%w: agent count %d is not a multiple of %d",
			ErrConfiguration, c.Agents, AgentGroupSize)
	}

	lim := c.limits()
	if c.Width > lim.MaxTextureDimension2D || c.Height > lim.MaxTextureDimension2D {
		return fmt.Errorf("%w: texture size %dx%d exceeds device limit %d",
			ErrConfiguration, c.Width, c.Height, lim.MaxTextureDimension2D)
	}
	if groups := c.Agents / AgentGroupSize; groups > lim.MaxComputeWorkgroupsPerDimension {
		return fmt.Errorf("%w: %d agent workgroups exceed device limit %d",
			ErrConfiguration, groups, lim.MaxComputeWorkgroupsPerDimension)
	}
	if size := uint64(c.Agents) * kernel.AgentSize; size > lim.MaxStorageBufferBindingSize {
		return fmt.Errorf("%w: agent buffer of %d bytes exceeds device limit %d",
			ErrConfiguration, size, lim.MaxStorageBufferBindingSize)
	}
	return nil
}
