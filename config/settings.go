// Package config loads and saves the simulation settings file.
//
// Settings are stored as TOML. A missing file is created with defaults by
// [LoadOrCreate], mirroring what a first run of the simulation does.
package config

import (
	"errors"
	"fmt"

	css "github.com/mazznoer/csscolorparser"

	"github.com/gogpu/slime/internal/kernel"
)

// DefaultPath is the settings file used when none is given.
const DefaultPath = "slime_simulation_config.toml"

// MaxBlurRadius is the largest blur radius accepted by the blur kernel.
const MaxBlurRadius = 7

// MaxFadeRate is the largest fade rate, in intensity per second.
const MaxFadeRate = 5

// ErrInvalid is returned for settings that cannot drive a simulation.
var ErrInvalid = errors.New("config: invalid settings")

// Size is a width and height in pixels.
type Size struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

// Settings are the user-tunable simulation parameters.
type Settings struct {
	Pause            bool    `toml:"pause"`
	Agents           uint32  `toml:"agents"`
	Speed            float32 `toml:"speed"`
	SenseAngleOffset float32 `toml:"sense_angle_offset"`
	SenseDistance    float32 `toml:"sense_distance"`
	TurnSpeed        float32 `toml:"turn_speed"`
	TurnRandomness   float32 `toml:"turn_randomness"`

	// Color is any CSS color: a name, #rrggbb, rgb() or hsl().
	Color string `toml:"color"`

	HasTrails  bool    `toml:"has_trails"`
	FadeRate   float32 `toml:"fade_rate"`
	BlurRadius uint32  `toml:"blur_radius"`

	Window  Size `toml:"window"`
	Texture Size `toml:"texture"`
}

// Default returns the settings of a fresh install.
func Default() Settings {
	return Settings{
		Pause:            true,
		Agents:           1_000_000,
		Speed:            1,
		SenseAngleOffset: 0.5,
		SenseDistance:    20,
		TurnSpeed:        1,
		TurnRandomness:   0.1,
		Color:            "white",
		HasTrails:        true,
		FadeRate:         0.15,
		BlurRadius:       1,
		Window:           Size{Width: 1280, Height: 720},
		Texture:          Size{Width: 2560, Height: 1440},
	}
}

// RGBA parses Color into straight-alpha components in [0, 1].
func (s Settings) RGBA() ([4]float32, error) {
	c, err := css.Parse(s.Color)
	if err != nil {
		return [4]float32{}, fmt.Errorf("%w: color %q: %w", ErrInvalid, s.Color, err)
	}
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}, nil
}

// Normalize clamps the tunables to the ranges the kernels accept.
func (s *Settings) Normalize() {
	s.BlurRadius = kernel.Clamp(s.BlurRadius, 0, MaxBlurRadius)
	s.FadeRate = kernel.Clamp(s.FadeRate, 0, MaxFadeRate)
	s.TurnRandomness = max(s.TurnRandomness, 0)
	s.SenseDistance = max(s.SenseDistance, 0)
}

// Validate reports settings that no clamp can repair.
func (s Settings) Validate() error {
	if s.Agents == 0 {
		return fmt.Errorf("%w: agents must be positive", ErrInvalid)
	}
	if s.Texture.Width == 0 || s.Texture.Height == 0 {
		return fmt.Errorf("%w: texture size %dx%d", ErrInvalid, s.Texture.Width, s.Texture.Height)
	}
	if s.BlurRadius > MaxBlurRadius {
		return fmt.Errorf("%w: blur radius %d exceeds %d", ErrInvalid, s.BlurRadius, MaxBlurRadius)
	}
	if _, err := s.RGBA(); err != nil {
		return err
	}
	return nil
}
