package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/kalambet/wildguide/internal/ollama"
)

// OllamaEngine implements Engine on top of a local Ollama server. Ollama's
// /api/generate returns a context token array with each finished completion;
// the engine keeps it and sends it back with the next prompt, which is what
// makes the conversation stateful.
type OllamaEngine struct {
	client *ollama.Client
	logger *slog.Logger

	mu         sync.Mutex
	model      string
	projector  string // vision-capable model used for image completions
	multimodal bool
	state      []int
	images     []string // base64, queued for the next BeginWithImages
	stream     *ollama.GenerateStream
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL), logger: slog.Default()}
}

func (e *OllamaEngine) Load(ctx context.Context, model string) error {
	if !e.client.HasModel(ctx, model) {
		return fmt.Errorf("loading %s: %w", model, ollama.ErrModelNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeStreamLocked()
	e.model = model
	e.projector = ""
	e.multimodal = false
	e.state = nil
	e.images = nil
	return nil
}

func (e *OllamaEngine) LoadWithProjector(ctx context.Context, model, projector string) error {
	if err := e.Load(ctx, model); err != nil {
		return err
	}
	if !e.EnableMultimodal(ctx, projector) {
		return fmt.Errorf("enabling multimodal input for %s: projector %q has no vision capability", model, projector)
	}
	return nil
}

func (e *OllamaEngine) EnableMultimodal(ctx context.Context, projector string) bool {
	e.mu.Lock()
	model := e.model
	e.mu.Unlock()
	if model == "" {
		return false
	}

	name := projector
	if name == "" {
		name = model
	}
	info, err := e.client.Show(ctx, name)
	if err != nil {
		e.logger.Debug("multimodal probe failed", "model", name, "error", err)
		return false
	}
	if !info.HasCapability("vision") {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if name != e.projector && name != e.model {
		// Context tokens do not carry across models.
		e.state = nil
	}
	e.projector = name
	e.multimodal = true
	return true
}

func (e *OllamaEngine) HasMultimodal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.multimodal
}

func (e *OllamaEngine) AddImage(path string) bool {
	e.mu.Lock()
	enabled := e.multimodal
	e.mu.Unlock()
	if !enabled {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warn("failed to read image", "path", path, "error", err)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.images = append(e.images, base64.StdEncoding.EncodeToString(data))
	return true
}

func (e *OllamaEngine) Begin(ctx context.Context, prompt string) error {
	return e.begin(ctx, prompt, false)
}

func (e *OllamaEngine) BeginWithImages(ctx context.Context, prompt string) error {
	return e.begin(ctx, prompt, true)
}

func (e *OllamaEngine) begin(ctx context.Context, prompt string, withImages bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == "" {
		return ErrNotLoaded
	}
	if e.stream != nil {
		return ErrGenerating
	}

	req := ollama.GenerateRequest{
		Model:   e.activeModelLocked(),
		Prompt:  prompt,
		Context: e.state,
	}
	if withImages {
		req.Images = e.images
		e.images = nil
	}

	stream, err := e.client.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("starting completion: %w", err)
	}
	e.stream = stream
	return nil
}

// activeModelLocked returns the model completions run against. Once
// multimodal input is enabled every completion goes to the projector so the
// context tokens stay valid.
func (e *OllamaEngine) activeModelLocked() string {
	if e.multimodal && e.projector != "" {
		return e.projector
	}
	return e.model
}

func (e *OllamaEngine) Step(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		e.closeStreamLocked()
		return "", err
	}

	chunk, err := e.stream.Next()
	if errors.Is(err, io.EOF) {
		e.stream = nil
		return "", nil
	}
	if err != nil {
		e.closeStreamLocked()
		return "", err
	}
	if chunk.Done {
		e.state = chunk.Context
		e.stream = nil
	}
	return chunk.Response, nil
}

func (e *OllamaEngine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream == nil
}

func (e *OllamaEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeStreamLocked()
	e.state = nil
	e.images = nil
}

func (e *OllamaEngine) closeStreamLocked() {
	if e.stream != nil {
		e.stream.Close()
		e.stream = nil
	}
}

// Model returns the loaded model name, or "" when none is loaded.
func (e *OllamaEngine) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
