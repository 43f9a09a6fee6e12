package compute

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/kernel"
)

// simulationParamsSize is the padded size of SimulationParams in WGSL.
const simulationParamsSize = 48

// SimulationParams mirrors the SimParams uniform of simulation.wgsl.
type SimulationParams struct {
	Pause            bool
	Width            uint32
	Height           uint32
	Speed            float32
	SenseAngleOffset float32
	SenseDistance    float32
	TurnSpeed        float32
	TurnRandomness   float32
	DeltaTime        float32
	Time             float32
}

func simulationParamsFrom(fc FrameContext, cfg Config) SimulationParams {
	return SimulationParams{
		Pause:            fc.Pause,
		Width:            cfg.Width,
		Height:           cfg.Height,
		Speed:            fc.Speed,
		SenseAngleOffset: fc.SenseAngleOffset,
		SenseDistance:    fc.SenseDistance,
		TurnSpeed:        fc.TurnSpeed,
		TurnRandomness:   fc.TurnRandomness,
		DeltaTime:        fc.DeltaTime,
		Time:             fc.Time,
	}
}

func (p SimulationParams) toBytes() []byte {
	w := uniformWriter{buf: make([]byte, 0, simulationParamsSize)}
	w.flag(p.Pause)
	w.u32(p.Width)
	w.u32(p.Height)
	w.f32(p.Speed)
	w.f32(p.SenseAngleOffset)
	w.f32(p.SenseDistance)
	w.f32(p.TurnSpeed)
	w.f32(p.TurnRandomness)
	w.f32(p.DeltaTime)
	w.f32(p.Time)
	return w.bytes()
}

// DecodeSimulationParams parses a simulation uniform block.
func DecodeSimulationParams(b []byte) (SimulationParams, error) {
	r, err := newUniformReader(StageSimulation, b)
	if err != nil {
		return SimulationParams{}, err
	}
	return SimulationParams{
		Pause:            r.flag(),
		Width:            r.u32(),
		Height:           r.u32(),
		Speed:            r.f32(),
		SenseAngleOffset: r.f32(),
		SenseDistance:    r.f32(),
		TurnSpeed:        r.f32(),
		TurnRandomness:   r.f32(),
		DeltaTime:        r.f32(),
		Time:             r.f32(),
	}, nil
}

// Kernel converts the block to the CPU reference parameters.
func (p SimulationParams) Kernel() kernel.SimulationParams {
	return kernel.SimulationParams{
		Pause:            p.Pause,
		Speed:            p.Speed,
		SenseAngleOffset: p.SenseAngleOffset,
		SenseDistance:    p.SenseDistance,
		TurnSpeed:        p.TurnSpeed,
		TurnRandomness:   p.TurnRandomness,
		DeltaTime:        p.DeltaTime,
		Time:             p.Time,
	}
}

// @binding(0) uniform params
// @binding(1) storage(read_write) agents
// @binding(2) texture_storage_2d<rgba8unorm, read> trail_in (image 0)
// @binding(3) texture_storage_2d<rgba8unorm, write> trail_out (image 1)
func simulationLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		uniformEntry(0),
		storageBufferEntry(1, kernel.AgentSize),
		storageImageEntry(2, gputypes.StorageTextureAccessReadOnly),
		storageImageEntry(3, gputypes.StorageTextureAccessWriteOnly),
	}
}

func simulationBindEntries(params, agents hal.Buffer, images *ImagePair) []gputypes.BindGroupEntry {
	return []gputypes.BindGroupEntry{
		bufferBinding(0, params),
		bufferBinding(1, agents),
		imageBinding(2, images.Snapshot().View),
		imageBinding(3, images.Head().View),
	}
}
