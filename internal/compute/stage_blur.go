package compute

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/kernel"
)

const blurParamsSize = 16

// BlurParams mirrors the BlurParams uniform of blur.wgsl.
type BlurParams struct {
	Pause      bool
	Width      uint32
	Height     uint32
	BlurRadius uint32
}

func blurParamsFrom(fc FrameContext, cfg Config) BlurParams {
	return BlurParams{
		Pause:      fc.Pause,
		Width:      cfg.Width,
		Height:     cfg.Height,
		BlurRadius: min(fc.BlurRadius, MaxBlurRadius),
	}
}

func (p BlurParams) toBytes() []byte {
	w := uniformWriter{buf: make([]byte, 0, blurParamsSize)}
	w.flag(p.Pause)
	w.u32(p.Width)
	w.u32(p.Height)
	w.u32(p.BlurRadius)
	return w.bytes()
}

// DecodeBlurParams parses a blur uniform block.
func DecodeBlurParams(b []byte) (BlurParams, error) {
	r, err := newUniformReader(StageBlur, b)
	if err != nil {
		return BlurParams{}, err
	}
	return BlurParams{
		Pause:      r.flag(),
		Width:      r.u32(),
		Height:     r.u32(),
		BlurRadius: r.u32(),
	}, nil
}

// Kernel converts the block to the CPU reference parameters.
func (p BlurParams) Kernel() kernel.BlurParams {
	return kernel.BlurParams{Pause: p.Pause, Radius: int(p.BlurRadius)}
}

// @binding(0) uniform params
// @binding(1) texture_storage_2d<rgba8unorm, read> src (image 0)
// @binding(2) texture_storage_2d<rgba8unorm, read_write> dst (image 1)
func blurLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		uniformEntry(0),
		storageImageEntry(1, gputypes.StorageTextureAccessReadOnly),
		storageImageEntry(2, gputypes.StorageTextureAccessReadWrite),
	}
}

func blurBindEntries(params hal.Buffer, images *ImagePair) []gputypes.BindGroupEntry {
	return []gputypes.BindGroupEntry{
		bufferBinding(0, params),
		imageBinding(1, images.Snapshot().View),
		imageBinding(2, images.Head().View),
	}
}
