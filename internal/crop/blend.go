package crop

import (
	"image"
	"math"
)

// smoothstep is the S-curve t²(3-2t) with t clamped to [0, 1].
func smoothstep(t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return t * t * (3 - 2*t)
}

// seamColors samples the boundary colour on both sides of the seam for every
// position along it. near is the segment that stays in place (above or
// left), moved is the segment shifted against it (below or right).
func seamColors(near, moved *image.NRGBA, o Orientation, radius int) (nearSide, movedSide []RGB) {
	nb, mb := near.Bounds(), moved.Bounds()
	if o == Horizontal {
		n := mb.Dx()
		nearSide, movedSide = make([]RGB, n), make([]RGB, n)
		for i := 0; i < n; i++ {
			nearSide[i] = SampleColor(near, nb.Min.X+i, nb.Max.Y-1, radius)
			movedSide[i] = SampleColor(moved, mb.Min.X+i, mb.Min.Y, radius)
		}
		return nearSide, movedSide
	}
	n := mb.Dy()
	nearSide, movedSide = make([]RGB, n), make([]RGB, n)
	for i := 0; i < n; i++ {
		nearSide[i] = SampleColor(near, nb.Max.X-1, nb.Min.Y+i, radius)
		movedSide[i] = SampleColor(moved, mb.Min.X, mb.Min.Y+i, radius)
	}
	return nearSide, movedSide
}

// blendSeam rewrites the first feather rows (horizontal) or columns
// (vertical) of moved with a gradient running from the near-side boundary
// colour at the seam to the moved-side boundary colour at depth feather.
// Alpha is kept. moved must be a buffer owned by the caller.
func blendSeam(moved, near *image.NRGBA, o Orientation, feather, sampleRadius int) {
	if feather <= 0 {
		return
	}
	nearSide, movedSide := seamColors(near, moved, o, sampleRadius)

	b := moved.Bounds()
	depth := b.Dy()
	if o == Vertical {
		depth = b.Dx()
	}
	depth = min(depth, feather)

	for j := 0; j < depth; j++ {
		w := smoothstep(float64(j) / float64(feather))
		for i := range nearSide {
			x, y := b.Min.X+i, b.Min.Y+j
			if o == Vertical {
				x, y = b.Min.X+j, b.Min.Y+i
			}
			a, c := nearSide[i], movedSide[i]
			p := moved.PixOffset(x, y)
			moved.Pix[p+0] = lerp(a.R, c.R, w)
			moved.Pix[p+1] = lerp(a.G, c.G, w)
			moved.Pix[p+2] = lerp(a.B, c.B, w)
		}
	}
}

func lerp(a, b uint8, w float64) uint8 {
	return uint8(math.Round(float64(a)*(1-w) + float64(b)*w))
}
