package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"net/http"
	"net/http/httptest"
	"testing"
)

// tagsJSON builds a /api/tags response with the given model names.
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

func TestIsRunning_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("gemma3:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestIsRunning_Down(t *testing.T) {
	// Point at a closed server to simulate connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("gemma3:latest", "llava:latest", "moondream:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}

	if len(models) != 3 {
		t.Fatalf("got %d models, want 3", len(models))
	}

	want := []string{"gemma3:latest", "llava:latest", "moondream:latest"}
	for i, w := range want {
		if models[i] != w {
			t.Errorf("models[%d] = %q, want %q", i, models[i], w)
		}
	}
}

func TestHasModel_Present(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("gemma3:latest", "llava:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.HasModel(context.Background(), "gemma3") {
		t.Error("HasModel(gemma3) = false, want true")
	}
}

func TestHasModel_Absent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llava:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if c.HasModel(context.Background(), "gemma3") {
		t.Error("HasModel(gemma3) = true, want false")
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}

		// Verify request body.
		var reqBody pullRequest
		json.NewDecoder(r.Body).Decode(&reqBody)
		if reqBody.Name != "gemma3" {
			t.Errorf("pull model = %q, want %q", reqBody.Name, "gemma3")
		}

		// Stream progress lines as newline-delimited JSON.
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 500})
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 1000})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	var progressCount int
	err := c.PullModel(context.Background(), "gemma3", func(p PullProgress) {
		progressCount++
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}

	if progressCount != 3 {
		t.Errorf("received %d progress updates, want 3", progressCount)
	}
}

func TestShow_Capabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/show" {
			http.NotFound(w, r)
			return
		}
		var req showRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gemma3" {
			t.Errorf("show model = %q, want %q", req.Model, "gemma3")
		}
		w.Write([]byte(`{"capabilities":["completion","vision"],"details":{"family":"gemma3"}}`))
	}))
	defer srv.Close()

	info, err := New(srv.URL).Show(context.Background(), "gemma3")
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if !info.HasCapability("vision") {
		t.Error("HasCapability(vision) = false, want true")
	}
	if info.HasCapability("tools") {
		t.Error("HasCapability(tools) = true, want false")
	}
}

func TestShow_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Show(context.Background(), "missing")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Show err = %v, want ErrModelNotFound", err)
	}
}

func TestGenerate_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req GenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream = false, want true")
		}
		if len(req.Context) != 2 || len(req.Images) != 1 {
			t.Errorf("context = %v, images = %d; want 2 tokens and 1 image", req.Context, len(req.Images))
		}

		enc := json.NewEncoder(w)
		enc.Encode(GenerateChunk{Response: "Boil "})
		enc.Encode(GenerateChunk{Response: "it."})
		enc.Encode(GenerateChunk{Done: true, Context: []int{1, 2, 3}})
	}))
	defer srv.Close()

	stream, err := New(srv.URL).Generate(context.Background(), GenerateRequest{
		Model:   "gemma3",
		Prompt:  "water?",
		Images:  []string{"aGVsbG8="},
		Context: []int{7, 8},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var text strings.Builder
	var final GenerateChunk
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		text.WriteString(chunk.Response)
		if chunk.Done {
			final = chunk
		}
	}

	if text.String() != "Boil it." {
		t.Errorf("text = %q, want %q", text.String(), "Boil it.")
	}
	if len(final.Context) != 3 {
		t.Errorf("final context = %v, want 3 tokens", final.Context)
	}
}

func TestGenerate_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(GenerateChunk{Response: "partial"})
		enc.Encode(GenerateChunk{Error: "model crashed"})
	}))
	defer srv.Close()

	stream, err := New(srv.URL).Generate(context.Background(), GenerateRequest{Model: "gemma3", Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := stream.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := stream.Next(); err == nil || !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("second Next err = %v, want model crashed", err)
	}
	if _, err := stream.Next(); err != io.EOF {
		t.Errorf("Next after error = %v, want io.EOF", err)
	}
}

func TestGenerate_TruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerateChunk{Response: "cut off"})
	}))
	defer srv.Close()

	stream, err := New(srv.URL).Generate(context.Background(), GenerateRequest{Model: "gemma3", Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stream.Next()
	if _, err := stream.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Next err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestGenerate_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'x' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Generate(context.Background(), GenerateRequest{Model: "x", Prompt: "hi"})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Generate err = %v, want ErrModelNotFound", err)
	}
}
