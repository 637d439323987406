package crop

import (
	"image"
	"math"
)

// DefaultSampleRadius is the half-width of the window averaged on each side
// of a seam.
const DefaultSampleRadius = 3

// SampleColor averages the (2*radius+1)² window centred at (x, y). Window
// coordinates are clamped to the image, so windows near an edge repeat the
// edge pixels instead of reading outside the buffer.
func SampleColor(img *image.NRGBA, x, y, radius int) RGB {
	b := img.Bounds()
	if b.Empty() {
		return RGB{}
	}
	if radius < 0 {
		radius = 0
	}

	var r, g, bl, n int
	for dy := -radius; dy <= radius; dy++ {
		sy := clampInt(y+dy, b.Min.Y, b.Max.Y-1)
		for dx := -radius; dx <= radius; dx++ {
			sx := clampInt(x+dx, b.Min.X, b.Max.X-1)
			i := img.PixOffset(sx, sy)
			r += int(img.Pix[i+0])
			g += int(img.Pix[i+1])
			bl += int(img.Pix[i+2])
			n++
		}
	}

	return RGB{
		R: uint8(math.Round(float64(r) / float64(n))),
		G: uint8(math.Round(float64(g) / float64(n))),
		B: uint8(math.Round(float64(bl) / float64(n))),
	}
}

// AverageLuma estimates the mean perceived brightness of img in [0, 255],
// visiting every 5th pixel.
func AverageLuma(img *image.NRGBA) float64 {
	const step = 5
	b := img.Bounds()
	w, total := b.Dx(), b.Dx()*b.Dy()
	var sum float64
	var n int
	for k := 0; k < total; k += step {
		i := img.PixOffset(b.Min.X+k%w, b.Min.Y+k/w)
		sum += 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
