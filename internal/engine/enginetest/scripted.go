// Package enginetest provides a scripted engine.Engine for tests.
package enginetest

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/kalambet/wildguide/internal/engine"
)

var errNoVision = errors.New("projector has no vision capability")

// Call records one method invocation on a Scripted engine.
type Call struct {
	Method string
	Arg    string
}

// Scripted implements engine.Engine by replaying canned completions. Each
// Begin consumes the next script; when the scripts run out Fallback is used.
type Scripted struct {
	// Fallback pieces streamed when no script is queued.
	Fallback []string

	// LoadErr is returned by Load and LoadWithProjector when set.
	LoadErr error

	// ProjectorErr is returned by LoadWithProjector when set; Load still works.
	ProjectorErr error

	// Vision controls whether EnableMultimodal succeeds.
	Vision bool

	// StepErr is returned by the first Step of every completion when set.
	StepErr error

	// Gate, when non-nil, makes every Step wait for a value before producing
	// a piece. Close it to release all steps.
	Gate chan struct{}

	mu         sync.Mutex
	scripts    [][]string
	calls      []Call
	images     [][]byte
	model      string
	multimodal bool
	pending    []string
	active     bool
	failNext   bool
}

// New returns a Scripted engine that streams the given completions in order.
func New(completions ...[]string) *Scripted {
	s := &Scripted{}
	for _, c := range completions {
		s.Script(c...)
	}
	return s
}

// Script queues one completion made of pieces.
func (s *Scripted) Script(pieces ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, pieces)
	return s
}

// Calls returns every recorded call in order.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Prompts returns the prompts passed to Begin and BeginWithImages.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if c.Method == "Begin" || c.Method == "BeginWithImages" {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Count returns how many times method was called.
func (s *Scripted) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Images returns the contents of every file accepted by AddImage.
func (s *Scripted) Images() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.images...)
}

func (s *Scripted) record(method, arg string) {
	s.calls = append(s.calls, Call{Method: method, Arg: arg})
}

func (s *Scripted) Load(_ context.Context, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Load", model)
	return s.loadLocked(model)
}

func (s *Scripted) loadLocked(model string) error {
	if s.LoadErr != nil {
		return s.LoadErr
	}
	s.model = model
	s.multimodal = false
	s.pending = nil
	s.active = false
	return nil
}

// LoadWithProjector records one call with Arg "model projector".
func (s *Scripted) LoadWithProjector(_ context.Context, model, projector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("LoadWithProjector", model+" "+projector)
	if s.ProjectorErr != nil {
		return s.ProjectorErr
	}
	if err := s.loadLocked(model); err != nil {
		return err
	}
	if !s.Vision {
		return errNoVision
	}
	s.multimodal = true
	return nil
}

func (s *Scripted) Begin(_ context.Context, prompt string) error {
	return s.begin("Begin", prompt)
}

func (s *Scripted) BeginWithImages(_ context.Context, prompt string) error {
	return s.begin("BeginWithImages", prompt)
}

func (s *Scripted) begin(method, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(method, prompt)

	if s.model == "" {
		return engine.ErrNotLoaded
	}
	if s.active {
		return engine.ErrGenerating
	}

	pieces := s.Fallback
	if len(s.scripts) > 0 {
		pieces = s.scripts[0]
		s.scripts = s.scripts[1:]
	}
	s.pending = append([]string(nil), pieces...)
	s.active = true
	s.failNext = s.StepErr != nil
	return nil
}

func (s *Scripted) Step(ctx context.Context) (string, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return "", nil
	}
	if s.failNext {
		s.failNext = false
		s.active = false
		s.pending = nil
		return "", s.StepErr
	}
	if len(s.pending) == 0 {
		s.active = false
		return "", nil
	}

	piece := s.pending[0]
	s.pending = s.pending[1:]
	if len(s.pending) == 0 {
		s.active = false
	}
	return piece, nil
}

func (s *Scripted) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.active
}

func (s *Scripted) AddImage(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AddImage", path)
	if !s.multimodal {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	s.images = append(s.images, data)
	return true
}

func (s *Scripted) EnableMultimodal(_ context.Context, projector string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("EnableMultimodal", projector)
	if s.Vision && s.model != "" {
		s.multimodal = true
	}
	return s.multimodal
}

func (s *Scripted) HasMultimodal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.multimodal
}

func (s *Scripted) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Reset", "")
	s.pending = nil
	s.active = false
}

var _ engine.Engine = (*Scripted)(nil)
