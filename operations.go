package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"inversecrop/internal/codec"
	"inversecrop/internal/crop"
)

type Operations = []Operation

// Operation is one entry of a crop recipe, replayed against a Sequencer.
type Operation struct {
	Crop  *CropOperation
	Undo  *UndoOperation
	Reset *ResetOperation
}

// unmarshal
func (o *Operation) UnmarshalJSON(data []byte) error {
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	switch op.Type {
	case "crop":
		var c CropOperation
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal crop operation: %w", err)
		}
		o.Crop = &c
	case "undo":
		var u UndoOperation
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("failed to unmarshal undo operation: %w", err)
		}
		o.Undo = &u
	case "reset":
		o.Reset = &ResetOperation{}
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch {
	case o.Crop != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			*CropOperation
		}{"crop", o.Crop})
	case o.Undo != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			*UndoOperation
		}{"undo", o.Undo})
	case o.Reset != nil:
		return []byte(`{"type":"reset"}`), nil
	}
	return nil, fmt.Errorf("empty operation")
}

func (o Operation) String() string {
	switch {
	case o.Crop != nil:
		return o.Crop.String()
	case o.Undo != nil:
		return fmt.Sprintf("undo(%d)", o.Undo.Index)
	case o.Reset != nil:
		return "reset"
	}
	return "noop"
}

// CropOperation removes a strip. Either Region is given in pixels of the
// image the step applies to, or Offset and Size describe a full-span strip
// along the orientation's axis.
type CropOperation struct {
	Orientation crop.Orientation `json:"orientation,omitempty"`
	Region      *crop.Region     `json:"region,omitempty"`
	Offset      int              `json:"offset,omitempty"`
	Size        int              `json:"size,omitempty"`
}

func (c CropOperation) String() string {
	if c.Region != nil {
		return fmt.Sprintf("crop(%s,%s)", c.Orientation, c.Region)
	}
	return fmt.Sprintf("crop(%s,offset=%d,size=%d)", c.Orientation, c.Offset, c.Size)
}

// RegionIn resolves the operation against a w×h image.
func (c CropOperation) RegionIn(w, h int) crop.Region {
	if c.Region != nil {
		return *c.Region
	}
	if c.Orientation == crop.Vertical {
		return crop.Region{X: c.Offset, Y: 0, Width: c.Size, Height: h}
	}
	return crop.Region{X: 0, Y: c.Offset, Width: w, Height: c.Size}
}

// ParseCropFlag parses the command line form "h:OFFSET:SIZE" or
// "v:OFFSET:SIZE".
func ParseCropFlag(s string) (CropOperation, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return CropOperation{}, fmt.Errorf("invalid crop %q: expected ORIENTATION:OFFSET:SIZE", s)
	}
	o, err := crop.ParseOrientation(parts[0])
	if err != nil {
		return CropOperation{}, fmt.Errorf("invalid crop %q: %w", s, err)
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil {
		return CropOperation{}, fmt.Errorf("invalid crop offset in %q: %w", s, err)
	}
	size, err := strconv.Atoi(parts[2])
	if err != nil {
		return CropOperation{}, fmt.Errorf("invalid crop size in %q: %w", s, err)
	}
	return CropOperation{Orientation: o, Offset: offset, Size: size}, nil
}

type UndoOperation struct {
	Index int `json:"index"`
}

type ResetOperation struct{}

// Apply runs the operation against s.
func (o Operation) Apply(ctx context.Context, s *crop.Sequencer) error {
	switch {
	case o.Crop != nil:
		b := s.Preview().Bounds()
		region := o.Crop.RegionIn(b.Dx(), b.Dy())
		orientation := o.Crop.Orientation
		if orientation == "" {
			orientation = crop.Horizontal
		}
		_, err := s.Add(ctx, &region, orientation)
		return err
	case o.Undo != nil:
		return s.UndoTo(ctx, o.Undo.Index)
	case o.Reset != nil:
		s.Reset(ctx)
	}
	return nil
}

// RecipeID identifies a list of operations; it is stable across runs and
// used to name output files.
func RecipeID(ops Operations) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	m := md5.New()
	_, err := m.Write([]byte(strings.Join(parts, ";")))
	if err != nil {
		log.Error().Err(err).Msg("failed to hash recipe")
		return ""
	}
	return fmt.Sprintf("%x", m.Sum(nil))[:12]
}

// LoadRecipe reads a JSON array of operations.
func LoadRecipe(path string) (Operations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe %s: %w", path, err)
	}
	var ops Operations
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to parse recipe %s: %w", path, err)
	}
	return ops, nil
}

type OperationExecutor struct {
	OutputDir string
	MimeType  string
	Cropper   Cropper
}

// Exec applies ops to every file independently and writes the results to
// OutputDir. Files are processed concurrently; each gets its own sequencer.
func (r OperationExecutor) Exec(ctx context.Context, files []string, ops Operations) error {
	if len(files) == 0 {
		log.Ctx(ctx).Warn().Msg("no files to process")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	recipe := RecipeID(ops)
	for _, file := range files {
		pooler.Go(func(ctx context.Context) error {
			if err := r.executeFile(ctx, file, recipe, ops); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("filename", file).
					Msg("failed to process file")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func (r OperationExecutor) executeFile(ctx context.Context, file, recipe string, ops Operations) error {
	log.Ctx(ctx).Info().Str("filename", file).Str("recipe", recipe).Msg("cropping")
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", file, err)
	}
	defer f.Close()

	var b bytes.Buffer
	if err := r.Cropper.Crop(ctx, f, &b, ops); err != nil {
		return fmt.Errorf("failed to crop %s: %w", file, err)
	}

	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	newName := fmt.Sprintf("%s-%s.%s", base, recipe, codec.Extension(r.MimeType))
	croppedPath := filepath.Join(r.OutputDir, newName)
	wf, err := os.Create(croppedPath)
	if err != nil {
		return fmt.Errorf("failed to create cropped file %s: %w", newName, err)
	}
	defer wf.Close()
	if _, err := b.WriteTo(wf); err != nil {
		return fmt.Errorf("failed to write cropped data to file %s: %w", newName, err)
	}
	return nil
}
