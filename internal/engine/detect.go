package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoBackend is returned by Detect when no local inference backend answers.
var ErrNoBackend = errors.New("no local inference engine is running")

// DetectConfig holds parameters for backend detection.
type DetectConfig struct {
	OllamaBaseURL string
}

// Detect probes available local inference backends and returns the first one
// that responds. Ollama is the only backend today.
func Detect(ctx context.Context, cfg DetectConfig) (*OllamaEngine, error) {
	e := NewOllamaEngine(cfg.OllamaBaseURL)
	if !e.IsRunning(ctx) {
		return nil, fmt.Errorf("%w: ollama at %s did not respond; please ensure ollama is started", ErrNoBackend, cfg.OllamaBaseURL)
	}
	return e, nil
}
