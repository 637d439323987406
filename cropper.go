package main

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/rs/zerolog/log"

	"inversecrop/internal/codec"
	"inversecrop/internal/config"
	"inversecrop/internal/crop"
)

// Cropper renders a recipe of operations over an encoded image.
type Cropper interface {
	Crop(ctx context.Context, r io.Reader, w io.Writer, ops Operations) error
}

// SequenceCropper is an implementation of the Cropper interface that replays
// the operations through a crop.Sequencer and exports the final render.
type SequenceCropper struct {
	cfg *config.Config
}

// Crop reads an image from r, applies ops in order and writes the final
// render to w in the configured export format.
func (c *SequenceCropper) Crop(ctx context.Context, r io.Reader, w io.Writer, ops Operations) error {
	src, format, err := codec.DecodeReader(r)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str("format", format).Stringer("size", src.Bounds().Size()).Msg("decoded")

	out, err := c.Render(ctx, src, ops)
	if err != nil {
		return err
	}
	return codec.Encode(w, out, c.cfg.Export.Format, c.cfg.ExportOptions())
}

// Render replays ops over src and returns the final render at the export
// feather radius.
func (c *SequenceCropper) Render(ctx context.Context, src image.Image, ops Operations) (*image.NRGBA, error) {
	seq, err := crop.NewSequencer(src, c.cfg.SequencerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to start sequencer: %w", err)
	}
	for i, op := range ops {
		if err := op.Apply(ctx, seq); err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op, err)
		}
	}

	out, err := seq.FinalRender(ctx, c.cfg.Compositing.ExportFeatherRadius)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().
		Int("steps", len(seq.History())).
		Stringer("size", out.Bounds().Size()).
		Msg("rendered")
	return out, nil
}

// NewSequenceCropper creates a new instance of SequenceCropper
func NewSequenceCropper(cfg *config.Config) *SequenceCropper {
	return &SequenceCropper{cfg: cfg}
}
