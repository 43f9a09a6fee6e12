package kernel

import (
	"image"
	"math"

	"golang.org/x/image/math/f32"
)

// SimulationParams holds the per-frame inputs of the simulation kernel.
type SimulationParams struct {
	Pause            bool
	Speed            float32 // pixels per frame
	SenseAngleOffset float32 // radians
	SenseDistance    float32 // pixels
	TurnSpeed        float32 // turns per second
	TurnRandomness   float32 // radians of jitter per frame
	DeltaTime        float32
	Time             float32
}

// Simulate advances every agent one step and deposits full intensity at
// its new position in dst. Sensing reads src. With Pause set nothing is
// modified.
func Simulate(agents []Agent, src, dst *image.RGBA, p SimulationParams) {
	if p.Pause {
		return
	}
	b := src.Bounds()
	w, h := float32(b.Dx()), float32(b.Dy())
	turn := p.TurnSpeed * 2 * math.Pi * p.DeltaTime
	seed := uint32(p.Time * 100000)

	for i := range agents {
		a := &agents[i]
		pixel := uint32(a.Pos[1])*uint32(w) + uint32(a.Pos[0])
		rnd := hash(pixel + hash(uint32(i)+seed))
		steer := unit(rnd)

		forward := sense(src, *a, 0, p.SenseDistance)
		left := sense(src, *a, p.SenseAngleOffset, p.SenseDistance)
		right := sense(src, *a, -p.SenseAngleOffset, p.SenseDistance)

		switch {
		case forward > left && forward > right:
			// Keep heading.
		case forward < left && forward < right:
			a.Angle += (steer - 0.5) * 2 * turn
		case right > left:
			a.Angle -= steer * turn
		case left > right:
			a.Angle += steer * turn
		}
		a.Angle += (steer - 0.5) * p.TurnRandomness

		sin, cos := math.Sincos(float64(a.Angle))
		next := f32.Vec2{
			a.Pos[0] + float32(cos)*p.Speed,
			a.Pos[1] + float32(sin)*p.Speed,
		}
		if next[0] < 0 || next[0] >= w || next[1] < 0 || next[1] >= h {
			next[0] = Clamp(next[0], 0, w-1)
			next[1] = Clamp(next[1], 0, h-1)
			a.Angle = unit(hash(rnd)) * 2 * math.Pi
		}
		a.Pos = next

		deposit(dst, int(next[0]), int(next[1]))
	}
}

// sense sums trail intensity in the 3x3 neighbourhood of the sensor placed
// distance pixels ahead of the agent, rotated by offset.
func sense(img *image.RGBA, a Agent, offset, distance float32) float32 {
	sin, cos := math.Sincos(float64(a.Angle + offset))
	cx := int(a.Pos[0] + float32(cos)*distance)
	cy := int(a.Pos[1] + float32(sin)*distance)

	b := img.Bounds()
	var sum float32
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x := Clamp(cx+dx, b.Min.X, b.Max.X-1)
			y := Clamp(cy+dy, b.Min.Y, b.Max.Y-1)
			sum += fromUnorm(img.Pix[img.PixOffset(x, y)+3])
		}
	}
	return sum
}

func deposit(img *image.RGBA, x, y int) {
	i := img.PixOffset(x, y)
	img.Pix[i+0] = 255
	img.Pix[i+1] = 255
	img.Pix[i+2] = 255
	img.Pix[i+3] = 255
}
