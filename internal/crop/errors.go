package crop

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSelection is returned by Add when no region has been selected.
	ErrMissingSelection = errors.New("crop: no region selected")

	// ErrRegionOutOfBounds is returned when a region does not lie inside the image.
	ErrRegionOutOfBounds = errors.New("crop: region out of bounds")

	// ErrEmptyRegion is returned when a region removes nothing along the crop axis.
	ErrEmptyRegion = errors.New("crop: region has zero extent")

	// ErrNothingLeft is returned when a region would remove the whole image.
	ErrNothingLeft = errors.New("crop: region covers the entire image")

	// ErrInvalidFeather is returned for a negative feather radius.
	ErrInvalidFeather = errors.New("crop: feather radius must not be negative")

	// ErrIndexOutOfRange is returned by UndoTo for an index outside the history.
	ErrIndexOutOfRange = errors.New("crop: history index out of range")
)

// DecodeError reports an image that could not be read or decoded.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CompositingError reports a failure inside the pixel pipeline. The state of
// the sequencer that returned it is unchanged.
type CompositingError struct {
	Op  string
	Err error
}

func (e *CompositingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CompositingError) Unwrap() error { return e.Err }

// Error kinds reported by Describe.
const (
	KindDecode           = "decode"
	KindMissingSelection = "missing_selection"
	KindCompositing      = "compositing"
	KindUnknown          = "unknown"
)

// Describe maps an error to its kind and a message suitable for showing to a
// user.
func Describe(err error) (kind, message string) {
	var decodeErr *DecodeError
	var compErr *CompositingError
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &decodeErr):
		return KindDecode, "The image could not be read. Make sure it is a valid JPEG, PNG, GIF, WebP, BMP or TIFF file."
	case errors.Is(err, ErrMissingSelection):
		return KindMissingSelection, "Select a region to remove first."
	case errors.As(err, &compErr):
		switch {
		case errors.Is(err, ErrRegionOutOfBounds):
			return KindCompositing, "The selected region lies outside the image."
		case errors.Is(err, ErrEmptyRegion):
			return KindCompositing, "The selected region is empty."
		case errors.Is(err, ErrNothingLeft):
			return KindCompositing, "The selected region covers the whole image."
		case errors.Is(err, ErrIndexOutOfRange):
			return KindCompositing, "That step is not in the crop history."
		}
		return KindCompositing, "The crop could not be applied."
	}
	return KindUnknown, "Something went wrong."
}

// IsGeometry reports whether err was caused by an unusable region or index
// rather than by an internal failure.
func IsGeometry(err error) bool {
	return errors.Is(err, ErrRegionOutOfBounds) ||
		errors.Is(err, ErrEmptyRegion) ||
		errors.Is(err, ErrNothingLeft) ||
		errors.Is(err, ErrInvalidFeather) ||
		errors.Is(err, ErrIndexOutOfRange)
}
