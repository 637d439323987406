package crop

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

// Compositor removes one strip from an image and joins the remaining
// segments.
type Compositor struct {
	// SampleRadius is the half-width of the window averaged when sampling
	// boundary colours for the seam blend.
	SampleRadius int
}

// NewCompositor returns a Compositor sampling seam colours with the given
// radius.
func NewCompositor(sampleRadius int) *Compositor {
	if sampleRadius < 0 {
		sampleRadius = 0
	}
	return &Compositor{SampleRadius: sampleRadius}
}

var defaultCompositor = NewCompositor(DefaultSampleRadius)

// Apply composites src with the default compositor.
func Apply(src image.Image, region Region, o Orientation, feather int) (*image.NRGBA, error) {
	return defaultCompositor.Apply(src, region, o, feather)
}

// Apply removes region from src along orientation o and returns a new image.
//
// Horizontal crops delete rows [Y, Y+Height) and stack the rows above on top
// of the rows below; vertical crops do the same with columns. A segment with
// zero extent is omitted. When feather is positive and both segments exist,
// the first feather rows or columns of the shifted segment are blended
// towards the colour across the seam. src is never modified.
func (c *Compositor) Apply(src image.Image, region Region, o Orientation, feather int) (dst *image.NRGBA, err error) {
	const op = "apply crop"

	defer func() {
		if r := recover(); r != nil {
			dst, err = nil, &CompositingError{Op: op, Err: fmt.Errorf("unexpected failure: %v", r)}
		}
	}()

	if src == nil {
		return nil, &CompositingError{Op: op, Err: errors.New("no image")}
	}
	if !o.Valid() {
		return nil, &CompositingError{Op: op, Err: fmt.Errorf("unknown orientation %q", o)}
	}
	if feather < 0 {
		return nil, &CompositingError{Op: op, Err: ErrInvalidFeather}
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if !region.Within(w, h) {
		return nil, &CompositingError{Op: op, Err: fmt.Errorf("%w: %s in %dx%d image", ErrRegionOutOfBounds, region, w, h)}
	}

	cut, removed, total := region.Y, region.Height, h
	if o == Vertical {
		cut, removed, total = region.X, region.Width, w
	}
	switch {
	case removed == 0:
		return nil, &CompositingError{Op: op, Err: ErrEmptyRegion}
	case removed == total:
		return nil, &CompositingError{Op: op, Err: ErrNothingLeft}
	}

	nearRect := image.Rect(0, 0, w, cut)
	movedRect := image.Rect(0, cut+removed, w, h)
	outW, outH := w, h-removed
	movedAt := image.Pt(0, cut)
	if o == Vertical {
		nearRect = image.Rect(0, 0, cut, h)
		movedRect = image.Rect(cut+removed, 0, w, h)
		outW, outH = w-removed, h
		movedAt = image.Pt(cut, 0)
	}

	var near, moved *image.NRGBA
	if !nearRect.Empty() {
		near = imaging.Crop(src, nearRect.Add(b.Min))
	}
	if !movedRect.Empty() {
		moved = imaging.Crop(src, movedRect.Add(b.Min))
	}
	if near != nil && moved != nil {
		blendSeam(moved, near, o, feather, c.SampleRadius)
	}

	dst = imaging.New(outW, outH, color.NRGBA{})
	if near != nil {
		draw.Draw(dst, near.Bounds(), near, image.Point{}, draw.Src)
	}
	if moved != nil {
		draw.Draw(dst, moved.Bounds().Add(movedAt), moved, image.Point{}, draw.Src)
	}
	return dst, nil
}

// SeamContrast returns the mean RGB distance between the two lines of pixels
// meeting at a seam: rows seam-1 and seam for horizontal joins, columns for
// vertical ones. It returns 0 when there is no such pair of lines.
func SeamContrast(img *image.NRGBA, seam int, o Orientation) float64 {
	b := img.Bounds()
	n, extent := b.Dx(), b.Dy()
	if o == Vertical {
		n, extent = b.Dy(), b.Dx()
	}
	if seam <= 0 || seam >= extent || n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		x0, y0, x1, y1 := b.Min.X+i, b.Min.Y+seam-1, b.Min.X+i, b.Min.Y+seam
		if o == Vertical {
			x0, y0, x1, y1 = b.Min.X+seam-1, b.Min.Y+i, b.Min.X+seam, b.Min.Y+i
		}
		sum += toColorful(img, x0, y0).DistanceRgb(toColorful(img, x1, y1))
	}
	return sum / float64(n)
}

func toColorful(img *image.NRGBA, x, y int) colorful.Color {
	p := img.PixOffset(x, y)
	return colorful.Color{
		R: float64(img.Pix[p+0]) / 255,
		G: float64(img.Pix[p+1]) / 255,
		B: float64(img.Pix[p+2]) / 255,
	}
}
