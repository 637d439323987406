package crop

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowImage paints every row y with a colour derived from y, so rows can be
// identified after compositing.
func rowImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(y), G: uint8(x), B: uint8(x + y), A: 255})
		}
	}
	return img
}

// splitImage is red above row split and blue from it onwards.
func splitImage(w, h, split int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := color.NRGBA{R: 220, G: 30, B: 30, A: 255}
		if y >= split {
			c = color.NRGBA{R: 20, G: 40, B: 210, A: 200}
		}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func requireRowsEqual(t *testing.T, got *image.NRGBA, gotY int, want *image.NRGBA, wantY int) {
	t.Helper()
	w := got.Bounds().Dx()
	g := got.Pix[got.PixOffset(0, gotY) : got.PixOffset(0, gotY)+4*w]
	e := want.Pix[want.PixOffset(0, wantY) : want.PixOffset(0, wantY)+4*w]
	require.Equal(t, e, g, "row %d should equal source row %d", gotY, wantY)
}

func TestApplyHorizontalScenario(t *testing.T) {
	src := rowImage(100, 100)
	out, err := Apply(src, Region{X: 0, Y: 40, Width: 100, Height: 20}, Horizontal, 0)
	require.NoError(t, err)
	require.Equal(t, 100, out.Bounds().Dx())
	require.Equal(t, 80, out.Bounds().Dy())

	for y := 0; y < 40; y++ {
		requireRowsEqual(t, out, y, src, y)
	}
	for y := 40; y < 80; y++ {
		requireRowsEqual(t, out, y, src, y+20)
	}
}

func TestApplyVertical(t *testing.T) {
	src := rowImage(100, 60)
	out, err := Apply(src, Region{X: 30, Y: 0, Width: 25, Height: 60}, Vertical, 0)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 75, 60), out.Bounds())

	for y := 0; y < 60; y++ {
		for x := 0; x < 75; x++ {
			sx := x
			if x >= 30 {
				sx = x + 25
			}
			require.Equal(t, src.NRGBAAt(sx, y), out.NRGBAAt(x, y))
		}
	}
}

func TestApplyDimensions(t *testing.T) {
	src := rowImage(64, 48)
	cases := []struct {
		region Region
		o      Orientation
		w, h   int
	}{
		{Region{0, 1, 64, 1}, Horizontal, 64, 47},
		{Region{0, 10, 64, 30}, Horizontal, 64, 18},
		{Region{0, 0, 64, 47}, Horizontal, 64, 1},
		{Region{1, 0, 1, 48}, Vertical, 63, 48},
		{Region{20, 0, 44, 48}, Vertical, 20, 48},
		{Region{0, 0, 63, 48}, Vertical, 1, 48},
	}
	for _, c := range cases {
		out, err := Apply(src, c.region, c.o, 0)
		require.NoError(t, err, c.region.String())
		assert.Equal(t, c.w, out.Bounds().Dx(), c.region.String())
		assert.Equal(t, c.h, out.Bounds().Dy(), c.region.String())
	}
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	src := splitImage(40, 40, 20)
	before := append([]uint8(nil), src.Pix...)

	_, err := Apply(src, Region{0, 15, 40, 10}, Horizontal, 8)
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
}

func TestApplyDegenerateTopEdge(t *testing.T) {
	src := rowImage(50, 50)
	for _, feather := range []int{0, 10} {
		out, err := Apply(src, Region{0, 0, 50, 10}, Horizontal, feather)
		require.NoError(t, err)
		require.Equal(t, 40, out.Bounds().Dy())
		for y := 0; y < 40; y++ {
			requireRowsEqual(t, out, y, src, y+10)
		}
	}
}

func TestApplyDegenerateBottomAndSides(t *testing.T) {
	src := rowImage(50, 50)

	out, err := Apply(src, Region{0, 40, 50, 10}, Horizontal, 10)
	require.NoError(t, err)
	require.Equal(t, 40, out.Bounds().Dy())
	for y := 0; y < 40; y++ {
		requireRowsEqual(t, out, y, src, y)
	}

	out, err = Apply(src, Region{0, 0, 5, 50}, Vertical, 10)
	require.NoError(t, err)
	require.Equal(t, 45, out.Bounds().Dx())
	assert.Equal(t, src.NRGBAAt(5, 7), out.NRGBAAt(0, 7))
}

func TestApplyErrors(t *testing.T) {
	src := rowImage(20, 20)
	cases := []struct {
		name    string
		region  Region
		o       Orientation
		feather int
		want    error
	}{
		{"out of bounds", Region{0, 15, 20, 10}, Horizontal, 0, ErrRegionOutOfBounds},
		{"negative", Region{-1, 0, 5, 20}, Vertical, 0, ErrRegionOutOfBounds},
		{"empty", Region{0, 5, 20, 0}, Horizontal, 0, ErrEmptyRegion},
		{"whole image", Region{0, 0, 20, 20}, Vertical, 0, ErrNothingLeft},
		{"negative feather", Region{0, 5, 20, 5}, Horizontal, -1, ErrInvalidFeather},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Apply(src, c.region, c.o, c.feather)
			require.ErrorIs(t, err, c.want)
			var compErr *CompositingError
			require.ErrorAs(t, err, &compErr)
		})
	}

	_, err := Apply(src, Region{0, 5, 20, 5}, Orientation("diagonal"), 0)
	var compErr *CompositingError
	require.ErrorAs(t, err, &compErr)
}

func TestApplyNonZeroOrigin(t *testing.T) {
	full := rowImage(30, 30)
	sub := full.SubImage(image.Rect(5, 5, 25, 25)).(*image.NRGBA)

	out, err := Apply(sub, Region{0, 5, 20, 5}, Horizontal, 0)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 20, 15), out.Bounds())
	assert.Equal(t, full.NRGBAAt(5, 5), out.NRGBAAt(0, 0))
	assert.Equal(t, full.NRGBAAt(5, 15), out.NRGBAAt(0, 5))
}

func TestSeamContinuity(t *testing.T) {
	// Red rows [0,30), blue rows [30,60); removing rows [20,30) joins red
	// directly onto blue at row 20 of the output.
	src := splitImage(40, 60, 30)
	region := Region{0, 20, 40, 10}

	hard, err := Apply(src, region, Horizontal, 0)
	require.NoError(t, err)
	soft, err := Apply(src, region, Horizontal, 12)
	require.NoError(t, err)

	hardContrast := SeamContrast(hard, 20, Horizontal)
	softContrast := SeamContrast(soft, 20, Horizontal)
	require.Greater(t, hardContrast, 0.0)
	assert.Less(t, softContrast, hardContrast)

	// Blending only touches colour; alpha of the moved segment is kept.
	assert.Equal(t, uint8(200), soft.NRGBAAt(3, 20).A)
	// Beyond the feather band the texture is untouched.
	assert.Equal(t, hard.NRGBAAt(3, 20+12), soft.NRGBAAt(3, 20+12))
}

func TestSeamContinuityVertical(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 60, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 60; x++ {
			c := color.NRGBA{R: 250, G: 250, B: 250, A: 255}
			if x >= 30 {
				c = color.NRGBA{R: 10, G: 10, B: 10, A: 255}
			}
			src.SetNRGBA(x, y, c)
		}
	}
	region := Region{25, 0, 5, 20}

	hard, err := Apply(src, region, Vertical, 0)
	require.NoError(t, err)
	soft, err := Apply(src, region, Vertical, 6)
	require.NoError(t, err)

	assert.Less(t, SeamContrast(soft, 25, Vertical), SeamContrast(hard, 25, Vertical))
}

func TestBlendGradient(t *testing.T) {
	src := splitImage(10, 40, 20)
	out, err := Apply(src, Region{0, 15, 10, 5}, Horizontal, 10)
	require.NoError(t, err)

	// First blended row takes the near-side colour, and red decreases
	// monotonically towards the moved-side colour.
	first := out.NRGBAAt(5, 15)
	assert.Equal(t, uint8(220), first.R)
	prev := first.R
	for y := 16; y < 25; y++ {
		r := out.NRGBAAt(5, y).R
		assert.LessOrEqual(t, r, prev)
		prev = r
	}
	assert.Equal(t, uint8(20), out.NRGBAAt(5, 25).R)
}

func TestSmoothstep(t *testing.T) {
	assert.Equal(t, 0.0, smoothstep(-1))
	assert.Equal(t, 0.0, smoothstep(0))
	assert.Equal(t, 0.5, smoothstep(0.5))
	assert.Equal(t, 1.0, smoothstep(1))
	assert.Equal(t, 1.0, smoothstep(3))
}

func TestSampleColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(10 * (x + 3*y)), G: 100, B: 255, A: 255})
		}
	}

	// Centre window covers all nine pixels: mean of 0..80 step 10.
	assert.Equal(t, RGB{R: 40, G: 100, B: 255}, SampleColor(img, 1, 1, 1))
	// Radius 0 reads one pixel.
	assert.Equal(t, RGB{R: 80, G: 100, B: 255}, SampleColor(img, 2, 2, 0))
	// Corner windows repeat edge pixels: (0,0)x4, (1,0)x2, (0,1)x2, (1,1)x1.
	// (0*4 + 10*2 + 30*2 + 40) / 9 = 13.33
	assert.Equal(t, RGB{R: 13, G: 100, B: 255}, SampleColor(img, 0, 0, 1))
	// Far outside coordinates clamp to the nearest pixel.
	assert.Equal(t, RGB{R: 80, G: 100, B: 255}, SampleColor(img, 50, 50, 0))
}

func TestAverageLuma(t *testing.T) {
	white := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	assert.InDelta(t, 255, AverageLuma(white), 0.01)
	assert.InDelta(t, 0, AverageLuma(image.NewNRGBA(image.Rect(0, 0, 10, 10))), 0.01)
}
