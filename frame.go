package slime

import (
	"github.com/gogpu/slime/config"
	"github.com/gogpu/slime/internal/compute"
)

// FrameContext is the per-frame input of the simulation. It is passed by
// value and never modified.
type FrameContext struct {
	// Pause freezes agents and trails. Stages still dispatch.
	Pause bool

	// Agent steering.
	Speed            float32 // pixels per frame
	SenseAngleOffset float32 // radians between the center and side sensors
	SenseDistance    float32 // pixels ahead of the agent
	TurnSpeed        float32
	TurnRandomness   float32

	// Trail post-processing.
	FadeRate   float32
	HasTrails  bool
	BlurRadius uint32 // clamped to 0..7
	Color      [4]float32

	// DeltaTime is the duration of the previous frame in seconds and Time
	// the elapsed time since start.
	DeltaTime float32
	Time      float32
}

// DefaultFrameContext returns the frame context of the default settings,
// unpaused, with a 60 Hz delta time.
func DefaultFrameContext() FrameContext {
	fc, _ := FrameContextFromSettings(config.Default())
	fc.Pause = false
	fc.DeltaTime = 1.0 / 60
	return fc
}

// FrameContextFromSettings maps persisted settings to a frame context.
// Timing fields are left zero. The only error is an unparsable color.
func FrameContextFromSettings(s config.Settings) (FrameContext, error) {
	color, err := s.RGBA()
	if err != nil {
		return FrameContext{}, err
	}
	return FrameContext{
		Pause:            s.Pause,
		Speed:            s.Speed,
		SenseAngleOffset: s.SenseAngleOffset,
		SenseDistance:    s.SenseDistance,
		TurnSpeed:        s.TurnSpeed,
		TurnRandomness:   s.TurnRandomness,
		FadeRate:         s.FadeRate,
		HasTrails:        s.HasTrails,
		BlurRadius:       s.BlurRadius,
		Color:            color,
	}, nil
}

// ConfigFromSettings returns the startup configuration of s.
func ConfigFromSettings(s config.Settings) Config {
	return Config{
		Width:  s.Texture.Width,
		Height: s.Texture.Height,
		Agents: s.Agents,
	}
}

func (fc FrameContext) toCompute() compute.FrameContext {
	return compute.FrameContext(fc)
}
