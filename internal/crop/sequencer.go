package crop

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultFeatherRadius is the blend width used for live previews.
const DefaultFeatherRadius = 20

// Sequencer applies an ordered history of crops to an original image.
//
// The preview is always the original composited through every step of the
// history. Mutations (Add, UndoTo, Reset) are serialised; a mutation that
// fails leaves the state exactly as it was. Readers never observe a
// half-applied mutation.
type Sequencer struct {
	mu sync.RWMutex

	compositor *Compositor
	feather    int
	cache      *prefixCache
	now        func() time.Time

	original *image.NRGBA
	preview  *image.NRGBA
	history  []Step
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithFeatherRadius sets the blend width used for the live preview.
func WithFeatherRadius(radius int) SequencerOption {
	return func(s *Sequencer) { s.feather = radius }
}

// WithCompositor replaces the default compositor.
func WithCompositor(c *Compositor) SequencerOption {
	return func(s *Sequencer) {
		if c != nil {
			s.compositor = c
		}
	}
}

// WithCacheSize bounds the number of cached intermediate previews. Zero
// disables caching.
func WithCacheSize(n int) SequencerOption {
	return func(s *Sequencer) { s.cache = newPrefixCache(n) }
}

// WithClock overrides the time source used to stamp steps.
func WithClock(now func() time.Time) SequencerOption {
	return func(s *Sequencer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSequencer starts a session on a private copy of original.
func NewSequencer(original image.Image, opts ...SequencerOption) (*Sequencer, error) {
	if original == nil {
		return nil, &CompositingError{Op: "new sequencer", Err: fmt.Errorf("no image")}
	}
	s := &Sequencer{
		compositor: defaultCompositor,
		feather:    DefaultFeatherRadius,
		cache:      newPrefixCache(DefaultCacheSize),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.feather < 0 {
		return nil, &CompositingError{Op: "new sequencer", Err: ErrInvalidFeather}
	}
	s.original = imaging.Clone(original)
	s.preview = s.original
	return s, nil
}

// Add appends a crop of the current preview and makes it the active step.
// A nil region fails with ErrMissingSelection.
func (s *Sequencer) Add(ctx context.Context, region *Region, o Orientation) (Step, error) {
	if region == nil {
		return Step{}, ErrMissingSelection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	next, err := s.compositor.Apply(s.preview, *region, o, s.feather)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Stringer("region", region).Str("orientation", string(o)).Msg("crop rejected")
		return Step{}, err
	}

	step := Step{
		ID:          uuid.NewString(),
		Region:      *region,
		Orientation: o,
		CreatedAt:   s.now(),
	}
	history := append(slices.Clip(s.history), step)
	s.cache.put(keysOf(history), s.feather, next)
	s.history, s.preview = history, next

	if ev := log.Ctx(ctx).Debug(); ev.Enabled() {
		seam := region.Y
		if o == Vertical {
			seam = region.X
		}
		ev.Str("step", step.ID).
			Stringer("region", region).
			Str("orientation", string(o)).
			Int("width", next.Bounds().Dx()).
			Int("height", next.Bounds().Dy()).
			Float64("seam_contrast", SeamContrast(next, seam, o)).
			Dur("took", time.Since(start)).
			Msg("crop added")
	}
	return step, nil
}

// UndoTo keeps history[0..index] and discards the rest. Index -1 restores
// the original image with an empty history. The preview is rebuilt by
// replaying the retained steps over the original.
func (s *Sequencer) UndoTo(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < -1 || index >= len(s.history) {
		return &CompositingError{
			Op:  "undo",
			Err: fmt.Errorf("%w: %d not in [-1, %d]", ErrIndexOutOfRange, index, len(s.history)-1),
		}
	}

	history := slices.Clone(s.history[:index+1])
	preview, err := s.replay(history, s.feather, true)
	if err != nil {
		return err
	}
	s.history, s.preview = history, preview

	log.Ctx(ctx).Debug().Int("index", index).Int("steps", len(history)).Msg("crop history truncated")
	return nil
}

// Reset discards the whole history.
func (s *Sequencer) Reset(ctx context.Context) {
	// UndoTo(-1) replays nothing and cannot fail.
	_ = s.UndoTo(ctx, -1)
}

// FinalRender composites the full history over the original at the given
// feather radius, typically higher quality than the live preview. It does not
// change the sequencer state.
func (s *Sequencer) FinalRender(ctx context.Context, feather int) (*image.NRGBA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	img, err := s.replay(s.history, feather, false)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().
		Int("steps", len(s.history)).
		Int("feather", feather).
		Dur("took", time.Since(start)).
		Msg("final render")
	return img, nil
}

// replay composites history over the original, resuming from the longest
// cached prefix. Intermediate results are cached only when store is set,
// which requires the write lock.
func (s *Sequencer) replay(history []Step, feather int, store bool) (*image.NRGBA, error) {
	if feather < 0 {
		return nil, &CompositingError{Op: "replay", Err: ErrInvalidFeather}
	}
	keys := keysOf(history)
	n, img := s.cache.longest(keys, feather)
	if img == nil {
		img = s.original
	}
	for i := n; i < len(history); i++ {
		next, err := s.compositor.Apply(img, history[i].Region, history[i].Orientation, feather)
		if err != nil {
			return nil, fmt.Errorf("replay step %d: %w", i, err)
		}
		if store {
			s.cache.put(keys[:i+1], feather, next)
		}
		img = next
	}
	return img, nil
}

// Snapshot returns a consistent copy of the state. The images are shared and
// must not be modified.
func (s *Sequencer) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Original:    s.original,
		Preview:     s.preview,
		History:     slices.Clone(s.history),
		ActiveIndex: len(s.history) - 1,
	}
}

func (s *Sequencer) Original() *image.NRGBA {
	return s.original
}

func (s *Sequencer) Preview() *image.NRGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview
}

func (s *Sequencer) History() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

func (s *Sequencer) FeatherRadius() int {
	return s.feather
}
