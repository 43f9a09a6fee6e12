package compute

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/kernel"
)

const recolorParamsSize = 16

// RecolorParams mirrors the RecolorParams uniform of recolor.wgsl.
type RecolorParams struct {
	Color [4]float32
}

func recolorParamsFrom(fc FrameContext) RecolorParams {
	return RecolorParams{Color: fc.Color}
}

func (p RecolorParams) toBytes() []byte {
	w := uniformWriter{buf: make([]byte, 0, recolorParamsSize)}
	for _, c := range p.Color {
		w.f32(c)
	}
	return w.bytes()
}

// DecodeRecolorParams parses a recolor uniform block.
func DecodeRecolorParams(b []byte) (RecolorParams, error) {
	r, err := newUniformReader(StageRecolor, b)
	if err != nil {
		return RecolorParams{}, err
	}
	var p RecolorParams
	for i := range p.Color {
		p.Color[i] = r.f32()
	}
	return p, nil
}

// Kernel converts the block to the CPU reference parameters.
func (p RecolorParams) Kernel() kernel.RecolorParams {
	return kernel.RecolorParams{Color: p.Color}
}

// @binding(0) uniform params
// @binding(1) texture_storage_2d<rgba8unorm, read_write> trail (image 1)
func recolorLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		uniformEntry(0),
		storageImageEntry(1, gputypes.StorageTextureAccessReadWrite),
	}
}

func recolorBindEntries(params hal.Buffer, images *ImagePair) []gputypes.BindGroupEntry {
	return []gputypes.BindGroupEntry{
		bufferBinding(0, params),
		imageBinding(1, images.Head().View),
	}
}
