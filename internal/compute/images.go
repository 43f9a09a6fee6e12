// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const (
	// imageFormat is the pixel format of both shared images.
	imageFormat = gputypes.TextureFormatRGBA8Unorm

	// imageUsage is fixed at creation. CopySrc is deliberately absent:
	// the images are only written by kernels or host uploads.
	imageUsage = gputypes.TextureUsageCopyDst |
		gputypes.TextureUsageStorageBinding |
		gputypes.TextureUsageTextureBinding
)

// Image roles in the shared pair. The roles never rotate.
const (
	// ImageSnapshot holds the previous frame's trail.
	ImageSnapshot = 0

	// ImageAccum is the accumulation target and the presented image.
	ImageAccum = 1

	imageCount = 2
)

// Image is one of the two shared textures.
type Image struct {
	Texture hal.Texture
	View    hal.TextureView

	width  uint32
	height uint32
}

// Width returns the image width in pixels.
func (i *Image) Width() int { return int(i.width) }

// Height returns the image height in pixels.
func (i *Image) Height() int { return int(i.height) }

// ImagePair owns the two shared images. It is created once and never
// reallocated.
type ImagePair struct {
	device hal.Device
	images [imageCount]Image
}

// newImagePair allocates both images. On failure nothing is leaked.
func newImagePair(device hal.Device, width, height uint32) (*ImagePair, error) {
	p := &ImagePair{device: device}
	labels := [imageCount]string{"trail_snapshot", "trail_accum"}

	for i := range p.images {
		tex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label:         labels[i],
			Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        imageFormat,
			Usage:         imageUsage,
		})
		if err != nil {
			p.destroy()
			return nil, fmt.Errorf("compute: create %s texture: %w", labels[i], err)
		}
		p.images[i].Texture = tex

		view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:           labels[i] + "_view",
			Format:          imageFormat,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if err != nil {
			p.destroy()
			return nil, fmt.Errorf("compute: create %s view: %w", labels[i], err)
		}
		p.images[i].View = view
		p.images[i].width = width
		p.images[i].height = height
	}

	slogger().Info("compute: shared images allocated",
		"width", width,
		"height", height,
		"format", imageFormat.String())
	return p, nil
}

// Len returns the number of images, which is always 2.
func (p *ImagePair) Len() int { return imageCount }

// At returns image i. It panics for indices other than ImageSnapshot and
// ImageAccum.
func (p *ImagePair) At(i int) *Image {
	if i < 0 || i >= imageCount {
		panic(fmt.Sprintf("compute: image index %d out of range", i))
	}
	img := &p.images[i]
	if img.View == nil {
		panic(fmt.Errorf("%w: image %d", ErrResourceMissing, i))
	}
	return img
}

// Snapshot returns image 0.
func (p *ImagePair) Snapshot() *Image { return p.At(ImageSnapshot) }

// Head returns image 1, the image presentation reads.
func (p *ImagePair) Head() *Image { return p.At(ImageAccum) }

// Size returns the fixed image dimensions.
func (p *ImagePair) Size() (width, height uint32) {
	return p.images[0].width, p.images[0].height
}

// Resize rejects any change of dimensions. Requesting the current size is
// a no-op. A new size requires a new process.
func (p *ImagePair) Resize(width, height uint32) error {
	w, h := p.Size()
	if width == w && height == h {
		return nil
	}
	slogger().Warn("compute: shared image resize rejected",
		"current_width", w,
		"current_height", h,
		"requested_width", width,
		"requested_height", height)
	return fmt.Errorf("%w: %dx%d -> %dx%d", ErrResizeUnsupported, w, h, width, height)
}

func (p *ImagePair) destroy() {
	for i := range p.images {
		img := &p.images[i]
		if img.View != nil {
			p.device.DestroyTextureView(img.View)
			img.View = nil
		}
		if img.Texture != nil {
			p.device.DestroyTexture(img.Texture)
			img.Texture = nil
		}
	}
}
