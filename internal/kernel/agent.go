package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/image/math/f32"
)

// AgentSize is the byte size of one agent in the GPU storage buffer.
const AgentSize = 16

// ErrAgentData is returned when an agent buffer has a size that is not a
// multiple of AgentSize.
var ErrAgentData = errors.New("kernel: malformed agent data")

// Agent is one particle. Its GPU layout is {pos vec2<f32>, angle f32, pad u32}.
type Agent struct {
	Pos   f32.Vec2
	Angle float32
}

// SeedAgents places n agents uniformly inside a disk centered on the image
// with a radius of a quarter of the shorter side. Each agent gets a random
// heading in [0, 2π).
func SeedAgents(n int, width, height uint32, rng *rand.Rand) []Agent {
	cx := float64(width) / 2
	cy := float64(height) / 2
	radius := float64(min(width, height)) / 4

	agents := make([]Agent, n)
	for i := range agents {
		r := radius * math.Sqrt(rng.Float64())
		theta := rng.Float64() * 2 * math.Pi
		agents[i] = Agent{
			Pos: f32.Vec2{
				float32(cx + r*math.Cos(theta)),
				float32(cy + r*math.Sin(theta)),
			},
			Angle: float32(rng.Float64() * 2 * math.Pi),
		}
	}
	return agents
}

// EncodeAgents serializes agents in GPU layout.
func EncodeAgents(agents []Agent) []byte {
	buf := make([]byte, len(agents)*AgentSize)
	for i, a := range agents {
		b := buf[i*AgentSize:]
		binary.LittleEndian.PutUint32(b[0:], math.Float32bits(a.Pos[0]))
		binary.LittleEndian.PutUint32(b[4:], math.Float32bits(a.Pos[1]))
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(a.Angle))
		// b[12:16] is padding and stays zero.
	}
	return buf
}

// DecodeAgents parses agents from GPU layout.
func DecodeAgents(b []byte) ([]Agent, error) {
	if len(b)%AgentSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrAgentData, len(b))
	}
	agents := make([]Agent, len(b)/AgentSize)
	for i := range agents {
		p := b[i*AgentSize:]
		agents[i] = Agent{
			Pos: f32.Vec2{
				math.Float32frombits(binary.LittleEndian.Uint32(p[0:])),
				math.Float32frombits(binary.LittleEndian.Uint32(p[4:])),
			},
			Angle: math.Float32frombits(binary.LittleEndian.Uint32(p[8:])),
		}
	}
	return agents, nil
}
