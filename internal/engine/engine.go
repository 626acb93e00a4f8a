package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotLoaded is returned when a completion is started before a model is loaded.
	ErrNotLoaded = errors.New("no model loaded")

	// ErrGenerating is returned when a completion is started while another is
	// still streaming.
	ErrGenerating = errors.New("completion already in progress")
)

// Engine is a stateful local inference backend. Each completion extends the
// engine's conversation state until Reset is called, so callers feed only the
// new prompt text rather than the whole transcript.
//
// A completion is started with Begin or BeginWithImages and then driven with
// Step until Finished reports true. The context passed to Begin governs the
// whole completion.
type Engine interface {
	// Load makes model the active model. The conversation state is reset.
	Load(ctx context.Context, model string) error

	// LoadWithProjector loads model and enables multimodal input through
	// projector in one step.
	LoadWithProjector(ctx context.Context, model, projector string) error

	// Begin starts a text-only completion for prompt.
	Begin(ctx context.Context, prompt string) error

	// BeginWithImages starts a completion that consumes the images queued by
	// AddImage.
	BeginWithImages(ctx context.Context, prompt string) error

	// Step returns the next piece of generated text. Once the completion has
	// finished it returns "" and a nil error.
	Step(ctx context.Context) (string, error)

	// Finished reports whether no completion is streaming.
	Finished() bool

	// AddImage queues the image at path for the next BeginWithImages call.
	// It returns false when multimodal input is disabled or the file cannot be read.
	AddImage(path string) bool

	// EnableMultimodal turns on image input using projector. An empty projector
	// means the loaded model handles images itself.
	EnableMultimodal(ctx context.Context, projector string) bool

	// HasMultimodal reports whether image input is enabled.
	HasMultimodal() bool

	// Reset drops the conversation state, any queued images and any
	// streaming completion. The loaded model stays loaded.
	Reset()
}

// Backend is the model-management surface of a local inference server.
type Backend interface {
	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
