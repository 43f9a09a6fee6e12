package compute

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/kernel"
)

const fadeParamsSize = 16

// FadeParams mirrors the FadeParams uniform of fade.wgsl.
type FadeParams struct {
	Pause     bool
	FadeRate  float32
	DeltaTime float32
	HasTrails bool
}

func fadeParamsFrom(fc FrameContext) FadeParams {
	return FadeParams{
		Pause:     fc.Pause,
		FadeRate:  fc.FadeRate,
		DeltaTime: fc.DeltaTime,
		HasTrails: fc.HasTrails,
	}
}

func (p FadeParams) toBytes() []byte {
	w := uniformWriter{buf: make([]byte, 0, fadeParamsSize)}
	w.flag(p.Pause)
	w.f32(p.FadeRate)
	w.f32(p.DeltaTime)
	w.flag(p.HasTrails)
	return w.bytes()
}

// DecodeFadeParams parses a fade uniform block.
func DecodeFadeParams(b []byte) (FadeParams, error) {
	r, err := newUniformReader(StageFade, b)
	if err != nil {
		return FadeParams{}, err
	}
	return FadeParams{
		Pause:     r.flag(),
		FadeRate:  r.f32(),
		DeltaTime: r.f32(),
		HasTrails: r.flag(),
	}, nil
}

// Kernel converts the block to the CPU reference parameters.
func (p FadeParams) Kernel() kernel.FadeParams {
	return kernel.FadeParams(p)
}

// @binding(0) uniform params
// @binding(1) texture_storage_2d<rgba8unorm, read_write> trail (image 1)
func fadeLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		uniformEntry(0),
		storageImageEntry(1, gputypes.StorageTextureAccessReadWrite),
	}
}

func fadeBindEntries(params hal.Buffer, images *ImagePair) []gputypes.BindGroupEntry {
	return []gputypes.BindGroupEntry{
		bufferBinding(0, params),
		imageBinding(1, images.Head().View),
	}
}
