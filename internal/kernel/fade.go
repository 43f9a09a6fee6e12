package kernel

import "image"

// FadeParams holds the per-frame inputs of the fade kernel.
type FadeParams struct {
	Pause     bool
	FadeRate  float32
	DeltaTime float32
	HasTrails bool
}

// Fade decays img in place by FadeRate per second. Without trails every
// pixel is cleared so only this frame's deposits survive. Pause leaves img
// untouched.
func Fade(img *image.RGBA, p FadeParams) {
	if p.Pause {
		return
	}
	if !p.HasTrails {
		clear(img.Pix)
		return
	}
	fadeRows(img, img.Rect.Min.Y, img.Rect.Max.Y, p.FadeRate*p.DeltaTime)
}

func fadeRows(img *image.RGBA, y0, y1 int, step float32) {
	for y := y0; y < y1; y++ {
		row := rowPix(img, y)
		for i, v := range row {
			row[i] = toUnorm(fromUnorm(v) - step)
		}
	}
}

// rowPix returns the pixels of row y.
func rowPix(img *image.RGBA, y int) []uint8 {
	o := img.PixOffset(img.Rect.Min.X, y)
	return img.Pix[o : o+4*img.Rect.Dx()]
}
