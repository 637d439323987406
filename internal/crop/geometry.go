package crop

import "math"

// DefaultRegionRatio is the share of the crop axis covered by DefaultRegion.
const DefaultRegionRatio = 0.2

// Rect is a rectangle in display or image space with fractional coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Transform maps display coordinates to image coordinates:
//
//	image = (display - offset) * scale
type Transform struct {
	ScaleX  float64 `json:"scale_x"`
	ScaleY  float64 `json:"scale_y"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// Identity maps image coordinates onto themselves.
var Identity = Transform{ScaleX: 1, ScaleY: 1}

// NewDisplayTransform builds the transform for an image with natural size
// naturalW×naturalH rendered at clientW×clientH, offset inside its container
// by (offsetX, offsetY).
func NewDisplayTransform(naturalW, naturalH int, clientW, clientH, offsetX, offsetY float64) Transform {
	t := Transform{ScaleX: 1, ScaleY: 1, OffsetX: offsetX, OffsetY: offsetY}
	if clientW > 0 {
		t.ScaleX = float64(naturalW) / clientW
	}
	if clientH > 0 {
		t.ScaleY = float64(naturalH) / clientH
	}
	return t
}

// FitTransform returns the transform from a preview that is at most maxWidth
// pixels wide back to the full w×h image. Images that already fit map 1:1.
func FitTransform(w, h, maxWidth int) Transform {
	if maxWidth <= 0 || w <= maxWidth {
		return Identity
	}
	scale := float64(w) / float64(maxWidth)
	return Transform{ScaleX: scale, ScaleY: scale}
}

// Inverse returns the transform mapping image coordinates back to display
// coordinates.
func (t Transform) Inverse() Transform {
	inv := Transform{ScaleX: 1, ScaleY: 1}
	if t.ScaleX != 0 {
		inv.ScaleX = 1 / t.ScaleX
	}
	if t.ScaleY != 0 {
		inv.ScaleY = 1 / t.ScaleY
	}
	inv.OffsetX = -t.OffsetX * t.ScaleX
	inv.OffsetY = -t.OffsetY * t.ScaleY
	return inv
}

// Apply maps r without any clamping.
func (t Transform) Apply(r Rect) Rect {
	return Rect{
		X:      (r.X - t.OffsetX) * t.ScaleX,
		Y:      (r.Y - t.OffsetY) * t.ScaleY,
		Width:  r.Width * t.ScaleX,
		Height: r.Height * t.ScaleY,
	}
}

// ToImage maps a display rectangle into a w×h image. Out-of-range values are
// clamped to the nearest valid pixel so the result always satisfies
// Region.Within(w, h).
func (t Transform) ToImage(r Rect, w, h int) Region {
	m := t.Apply(r)
	x := clampInt(round(m.X), 0, w)
	y := clampInt(round(m.Y), 0, h)
	return Region{
		X:      x,
		Y:      y,
		Width:  clampInt(round(m.Width), 0, w-x),
		Height: clampInt(round(m.Height), 0, h-y),
	}
}

// ToDisplay maps an image region back into display space, e.g. for drawing
// the selection overlay.
func (t Transform) ToDisplay(reg Region) Rect {
	return t.Inverse().Apply(Rect{
		X:      float64(reg.X),
		Y:      float64(reg.Y),
		Width:  float64(reg.Width),
		Height: float64(reg.Height),
	})
}

// DefaultRegion is the selection offered for a freshly loaded w×h image: a
// centred strip spanning 20% of the height (horizontal) or width (vertical).
func DefaultRegion(w, h int, o Orientation) Region {
	if o == Vertical {
		size := round(float64(w) * DefaultRegionRatio)
		return Region{X: (w - size) / 2, Y: 0, Width: size, Height: h}
	}
	size := round(float64(h) * DefaultRegionRatio)
	return Region{X: 0, Y: (h - size) / 2, Width: w, Height: size}
}

func round(v float64) int {
	return int(math.Round(v))
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
