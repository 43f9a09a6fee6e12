package kernel

import "image"

// BlurParams holds the per-frame inputs of the blur kernel.
type BlurParams struct {
	Pause  bool
	Radius int
}

// Blur box-filters src with the given radius and averages the result into
// dst. A radius of zero or Pause leaves dst untouched. src and dst must
// have the same bounds.
func Blur(src, dst *image.RGBA, p BlurParams) {
	if p.Pause || p.Radius <= 0 {
		return
	}
	blurRows(src, dst, src.Rect.Min.Y, src.Rect.Max.Y, p.Radius)
}

func blurRows(src, dst *image.RGBA, y0, y1, r int) {
	b := src.Bounds()
	for y := y0; y < y1; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sum [4]float32
			var n float32
			for dy := -r; dy <= r; dy++ {
				sy := Clamp(y+dy, b.Min.Y, b.Max.Y-1)
				for dx := -r; dx <= r; dx++ {
					sx := Clamp(x+dx, b.Min.X, b.Max.X-1)
					o := src.PixOffset(sx, sy)
					for c := range sum {
						sum[c] += fromUnorm(src.Pix[o+c])
					}
					n++
				}
			}
			o := dst.PixOffset(x, y)
			for c := range sum {
				cur := fromUnorm(dst.Pix[o+c])
				dst.Pix[o+c] = toUnorm((cur + sum[c]/n) * 0.5)
			}
		}
	}
}
