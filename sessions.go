package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"inversecrop/internal/codec"
	"inversecrop/internal/config"
	"inversecrop/internal/crop"
)

var errSessionNotFound = errors.New("session not found")

// Session is one image being edited.
type Session struct {
	ID         string
	Source     string
	Sequencer  *crop.Sequencer
	Background string
	CreatedAt  time.Time
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type SessionState struct {
	ID             string                           `json:"id"`
	Name           string                           `json:"name"`
	Original       Size                             `json:"original"`
	Preview        Size                             `json:"preview"`
	History        []crop.Step                      `json:"history"`
	ActiveIndex    int                              `json:"active_index"`
	FeatherRadius  int                              `json:"feather_radius"`
	DefaultRegions map[crop.Orientation]crop.Region `json:"default_regions"`
	Background     string                           `json:"background"`
}

// State returns a JSON friendly snapshot of the session.
func (s *Session) State(downloadName string) SessionState {
	snap := s.Sequencer.Snapshot()
	ob, pb := snap.Original.Bounds(), snap.Preview.Bounds()
	history := snap.History
	if history == nil {
		history = []crop.Step{}
	}
	return SessionState{
		ID:            s.ID,
		Name:          downloadName,
		Original:      Size{Width: ob.Dx(), Height: ob.Dy()},
		Preview:       Size{Width: pb.Dx(), Height: pb.Dy()},
		History:       history,
		ActiveIndex:   snap.ActiveIndex,
		FeatherRadius: s.Sequencer.FeatherRadius(),
		DefaultRegions: map[crop.Orientation]crop.Region{
			crop.Horizontal: crop.DefaultRegion(pb.Dx(), pb.Dy(), crop.Horizontal),
			crop.Vertical:   crop.DefaultRegion(pb.Dx(), pb.Dy(), crop.Vertical),
		},
		Background: s.Background,
	}
}

// backgroundFor picks the container colour that contrasts with the image.
func backgroundFor(avgLuma float64) string {
	if avgLuma > 128 {
		return "black"
	}
	return "white"
}

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      *config.Config
}

func NewSessionStore(cfg *config.Config) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// Open decodes handle and starts a new session on it.
func (s *SessionStore) Open(ctx context.Context, handle string) (*Session, error) {
	img, err := codec.Decode(ctx, handle)
	if err != nil {
		return nil, err
	}
	seq, err := crop.NewSequencer(img, s.cfg.SequencerOptions()...)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:         uuid.NewString(),
		Source:     handle,
		Sequencer:  seq,
		Background: backgroundFor(crop.AverageLuma(seq.Original())),
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Ctx(ctx).Info().
		Str("session", sess.ID).
		Stringer("size", seq.Original().Bounds().Size()).
		Msg("session opened")
	return sess, nil
}

func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return errSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
