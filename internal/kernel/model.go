package kernel

import (
	"image"
	"math/rand/v2"

	"github.com/gogpu/slime/internal/parallel"
)

// BandHeight is the number of rows one pooled image task covers.
const BandHeight = 64

// FrameParams bundles the inputs of all four kernels for one frame.
type FrameParams struct {
	Simulation SimulationParams
	Fade       FadeParams
	Blur       BlurParams
	Recolor    RecolorParams
}

// Model runs the four kernels on the CPU in dispatch order.
type Model struct {
	Agents []Agent

	// Images has the same roles as the GPU pair: 0 is the snapshot,
	// 1 the accumulation target.
	Images [2]*image.RGBA

	// Pool splits the image kernels into row bands. Nil runs them on the
	// calling goroutine. Simulate is always sequential because agents
	// deposit into shared pixels.
	Pool *parallel.Pool
}

// NewModel allocates both images and seeds agents like the GPU path does.
func NewModel(width, height uint32, agents int, rng *rand.Rand) *Model {
	r := image.Rect(0, 0, int(width), int(height))
	return &Model{
		Agents: SeedAgents(agents, width, height, rng),
		Images: [2]*image.RGBA{image.NewRGBA(r), image.NewRGBA(r)},
	}
}

// Step runs Simulation, Fade, Blur and Recolor, then copies the
// accumulation image into the snapshot, which the presentation side does
// between GPU frames.
func (m *Model) Step(p FrameParams) {
	src, head := m.Images[0], m.Images[1]
	Simulate(m.Agents, src, head, p.Simulation)

	y0, y1 := head.Rect.Min.Y, head.Rect.Max.Y
	if !p.Fade.Pause {
		if p.Fade.HasTrails {
			step := p.Fade.FadeRate * p.Fade.DeltaTime
			m.Pool.Rows(y0, y1, BandHeight, func(a, b int) { fadeRows(head, a, b, step) })
		} else {
			clear(head.Pix)
		}
	}
	if !p.Blur.Pause && p.Blur.Radius > 0 {
		m.Pool.Rows(y0, y1, BandHeight, func(a, b int) { blurRows(src, head, a, b, p.Blur.Radius) })
	}
	m.Pool.Rows(y0, y1, BandHeight, func(a, b int) { recolorRows(head, a, b, p.Recolor.Color) })
	copy(src.Pix, head.Pix)
}

// Head returns the accumulation image.
func (m *Model) Head() *image.RGBA { return m.Images[1] }
