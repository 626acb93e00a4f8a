package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"net/http"
	"net/http/httptest"
	"testing"
)

func tagsJSON(names ...string) []byte {
	type entry struct {
		Name string `json:"name"`
	}
	type resp struct {
		Models []entry `json:"models"`
	}
	r := resp{}
	for _, n := range names {
		r.Models = append(r.Models, entry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestOllamaEngine_IsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("gemma3:latest"))
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestOllamaEngine_IsRunning_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := NewOllamaEngine(srv.URL)
	if e.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestOllamaEngine_HasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("gemma3:latest", "llava:latest"))
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	if !e.HasModel(context.Background(), "gemma3") {
		t.Error("HasModel(gemma3) = false, want true")
	}
	if e.HasModel(context.Background(), "qwen3") {
		t.Error("HasModel(qwen3) = true, want false")
	}
}

func TestOllamaEngine_PullModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}
		enc := json.NewEncoder(w)
		enc.Encode(map[string]any{"status": "downloading", "total": 1000, "completed": 500})
		enc.Encode(map[string]any{"status": "downloading", "total": 1000, "completed": 1000})
		enc.Encode(map[string]any{"status": "success"})
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	var progressCount int
	err := e.PullModel(context.Background(), "gemma3", func(p PullProgress) {
		progressCount++
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if progressCount != 3 {
		t.Errorf("received %d progress updates, want 3", progressCount)
	}
}

// fakeOllama serves tags, show and a scripted generate stream, recording
// every generate request it receives.
type fakeOllama struct {
	mu       sync.Mutex
	models   []string
	vision   map[string]bool
	pieces   []string
	requests []map[string]any
	nextCtx  []int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/tags":
		w.Write(tagsJSON(f.models...))
	case "/api/show":
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		caps := []string{"completion"}
		if f.vision[req.Model] {
			caps = append(caps, "vision")
		}
		json.NewEncoder(w).Encode(map[string]any{"capabilities": caps})
	case "/api/generate":
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		enc := json.NewEncoder(w)
		for _, p := range f.pieces {
			enc.Encode(map[string]any{"response": p, "done": false})
		}
		enc.Encode(map[string]any{"response": "", "done": true, "context": f.nextCtx})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOllama) request(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func drain(t *testing.T, e Engine) string {
	t.Helper()
	var sb strings.Builder
	for !e.Finished() {
		piece, err := e.Step(context.Background())
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		sb.WriteString(piece)
	}
	return sb.String()
}

func TestOllamaEngine_CompletionCarriesState(t *testing.T) {
	fake := &fakeOllama{
		models:  []string{"gemma3:latest"},
		pieces:  []string{"Find ", "shelter."},
		nextCtx: []int{4, 5, 6},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	ctx := context.Background()
	if err := e.Load(ctx, "gemma3"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := e.Begin(ctx, "first"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := drain(t, e); got != "Find shelter." {
		t.Errorf("output = %q, want %q", got, "Find shelter.")
	}

	if err := e.Begin(ctx, "second"); err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	drain(t, e)

	if _, ok := fake.request(0)["context"]; ok {
		t.Error("first request carried context, want none")
	}
	got, _ := fake.request(1)["context"].([]any)
	if len(got) != 3 {
		t.Errorf("second request context = %v, want 3 tokens", fake.request(1)["context"])
	}
}

func TestOllamaEngine_ResetDropsState(t *testing.T) {
	fake := &fakeOllama{models: []string{"gemma3:latest"}, pieces: []string{"ok"}, nextCtx: []int{1}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	ctx := context.Background()
	if err := e.Load(ctx, "gemma3"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	e.Begin(ctx, "one")
	drain(t, e)
	e.Reset()
	e.Begin(ctx, "two")
	drain(t, e)

	if _, ok := fake.request(1)["context"]; ok {
		t.Error("request after Reset carried context")
	}
}

func TestOllamaEngine_LoadMissingModel(t *testing.T) {
	srv := httptest.NewServer(&fakeOllama{models: []string{"llava:latest"}})
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	err := e.Load(context.Background(), "gemma3")
	if err == nil {
		t.Fatal("Load succeeded for missing model")
	}
	if err := e.Begin(context.Background(), "x"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Begin err = %v, want ErrNotLoaded", err)
	}
}

func TestOllamaEngine_MultimodalImages(t *testing.T) {
	fake := &fakeOllama{
		models: []string{"gemma3:latest"},
		vision: map[string]bool{"gemma3": true},
		pieces: []string{"A pine cone."},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("jpegbytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := NewOllamaEngine(srv.URL)
	ctx := context.Background()
	if err := e.Load(ctx, "gemma3"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.AddImage(path) {
		t.Error("AddImage succeeded before multimodal was enabled")
	}
	if !e.EnableMultimodal(ctx, "") {
		t.Fatal("EnableMultimodal = false, want true")
	}
	if !e.HasMultimodal() {
		t.Error("HasMultimodal = false after enabling")
	}
	if !e.AddImage(path) {
		t.Fatal("AddImage = false, want true")
	}
	if err := e.BeginWithImages(ctx, "what is this?"); err != nil {
		t.Fatalf("BeginWithImages: %v", err)
	}
	drain(t, e)

	images, _ := fake.request(0)["images"].([]any)
	if len(images) != 1 || images[0] != "anBlZ2J5dGVz" {
		t.Errorf("images = %v, want one base64 image", fake.request(0)["images"])
	}
}

func TestOllamaEngine_EnableMultimodalNoVision(t *testing.T) {
	srv := httptest.NewServer(&fakeOllama{models: []string{"gemma3:latest"}})
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	ctx := context.Background()
	if err := e.Load(ctx, "gemma3"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.EnableMultimodal(ctx, "") {
		t.Error("EnableMultimodal = true for a text-only model")
	}
	if err := e.LoadWithProjector(ctx, "gemma3", "gemma3"); err == nil {
		t.Error("LoadWithProjector succeeded without a vision projector")
	}
}

func TestOllamaEngine_ProjectorServesCompletions(t *testing.T) {
	fake := &fakeOllama{
		models: []string{"gemma3:latest", "llava:latest"},
		vision: map[string]bool{"llava": true},
		pieces: []string{"ok"},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	ctx := context.Background()
	if err := e.LoadWithProjector(ctx, "gemma3", "llava"); err != nil {
		t.Fatalf("LoadWithProjector: %v", err)
	}
	if err := e.Begin(ctx, "hi"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	drain(t, e)
	if got := fake.request(0)["model"]; got != "llava" {
		t.Errorf("model = %v, want llava", got)
	}
}

func TestOllamaEngine_BeginWhileGenerating(t *testing.T) {
	fake := &fakeOllama{models: []string{"gemma3:latest"}, pieces: []string{"a", "b"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	ctx := context.Background()
	e.Load(ctx, "gemma3")
	if err := e.Begin(ctx, "one"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := e.Begin(ctx, "two"); !errors.Is(err, ErrGenerating) {
		t.Errorf("second Begin err = %v, want ErrGenerating", err)
	}
	e.Reset()
	if !e.Finished() {
		t.Error("Finished = false after Reset")
	}
}
