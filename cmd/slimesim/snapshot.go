package main

import (
	"fmt"
	"image"
	"image/png"
	"math/rand/v2"
	"os"

	"golang.org/x/image/draw"

	"github.com/gogpu/slime"
	"github.com/gogpu/slime/config"
	"github.com/gogpu/slime/internal/compute"
	"github.com/gogpu/slime/internal/kernel"
	"github.com/gogpu/slime/internal/parallel"
)

// snapshotOptions sizes the CPU reference run. The GPU texture is usually
// too large to step on the CPU, so the model runs on a reduced image and
// is scaled to the window size on output.
type snapshotOptions struct {
	path   string
	width  uint32
	height uint32
	agents uint32
	frames int
	seed   uint64
}

// writeSnapshot steps the CPU model with the frame context the GPU would
// receive and writes the result as a PNG scaled to window.
func writeSnapshot(opts snapshotOptions, fc slime.FrameContext, window config.Size) error {
	cfg := compute.Config{Width: opts.width, Height: opts.height, Agents: opts.agents}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	model := kernel.NewModel(cfg.Width, cfg.Height, int(cfg.Agents), rng)
	model.Pool = parallel.NewPool(0)
	defer model.Pool.Close()

	fc.Pause = false
	for i := range opts.frames {
		fc.Time = float32(i) * fc.DeltaTime
		params, err := compute.KernelParams(compute.FrameContext(fc), cfg)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		model.Step(params)
	}

	out := image.NewRGBA(image.Rect(0, 0, int(window.Width), int(window.Height)))
	draw.BiLinear.Scale(out, out.Bounds(), model.Head(), model.Head().Bounds(), draw.Src, nil)

	f, err := os.Create(opts.path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := png.Encode(f, out); err != nil {
		_ = f.Close()
		return fmt.Errorf("snapshot: encode %s: %w", opts.path, err)
	}
	return f.Close()
}
