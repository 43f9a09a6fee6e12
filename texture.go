package slime

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/compute"
)

var _ gpucontext.Texture = (*Texture)(nil)

// Texture is one of the two shared images.
type Texture struct {
	img *compute.Image
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.img.Width() }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.img.Height() }

// View returns the view bound by the kernels and used for presentation.
func (t *Texture) View() hal.TextureView { return t.img.View }

// HalTexture returns the underlying HAL texture.
func (t *Texture) HalTexture() hal.Texture { return t.img.Texture }
