package kernel

import "image"

// RecolorParams holds the tint of the recolor kernel.
type RecolorParams struct {
	Color [4]float32
}

// Recolor sets the RGB channels of every pixel to Color scaled by the
// pixel's trail intensity (alpha). Alpha is kept, so repeated application
// gives the same result.
func Recolor(img *image.RGBA, p RecolorParams) {
	recolorRows(img, img.Rect.Min.Y, img.Rect.Max.Y, p.Color)
}

func recolorRows(img *image.RGBA, y0, y1 int, c [4]float32) {
	for y := y0; y < y1; y++ {
		row := rowPix(img, y)
		for i := 0; i+3 < len(row); i += 4 {
			intensity := fromUnorm(row[i+3]) * c[3]
			row[i+0] = toUnorm(c[0] * intensity)
			row[i+1] = toUnorm(c[1] * intensity)
			row[i+2] = toUnorm(c[2] * intensity)
		}
	}
}
