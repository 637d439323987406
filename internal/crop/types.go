// Package crop implements inverse cropping: removing a horizontal or vertical
// strip from an image and joining the remaining segments with a blended seam.
//
// A Sequencer keeps the ordered history of crop steps applied to an original
// image and derives the current preview from it. Images handled by this
// package are never modified once produced.
package crop

import (
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"
)

// Orientation selects which axis a crop removes.
type Orientation string

const (
	// Horizontal removes a full-width band of rows; the segments above and
	// below are joined vertically.
	Horizontal Orientation = "horizontal"
	// Vertical removes a full-height band of columns; the segments left and
	// right are joined horizontally.
	Vertical Orientation = "vertical"
)

// ParseOrientation accepts "horizontal"/"vertical" and the short forms "h"/"v".
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "horizontal", "h":
		return Horizontal, nil
	case "vertical", "v":
		return Vertical, nil
	default:
		return "", fmt.Errorf("unknown orientation %q", s)
	}
}

func (o Orientation) Valid() bool {
	return o == Horizontal || o == Vertical
}

func (o *Orientation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal orientation: %w", err)
	}
	parsed, err := ParseOrientation(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Region is a rectangle in image pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Region) String() string {
	return fmt.Sprintf("region(x=%d,y=%d,w=%d,h=%d)", r.X, r.Y, r.Width, r.Height)
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Within reports whether the region lies fully inside a w×h image.
func (r Region) Within(w, h int) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width >= 0 && r.Height >= 0 &&
		r.X+r.Width <= w && r.Y+r.Height <= h
}

// Step is one committed crop. It records only the request; the resulting
// image is always derived by replaying history.
type Step struct {
	ID          string      `json:"id"`
	Region      Region      `json:"region"`
	Orientation Orientation `json:"orientation"`
	CreatedAt   time.Time   `json:"created_at"`
}

// State is a read-only snapshot of a Sequencer.
type State struct {
	Original    *image.NRGBA
	Preview     *image.NRGBA
	History     []Step
	ActiveIndex int
}

// RGB is an 8-bit colour without alpha.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}
