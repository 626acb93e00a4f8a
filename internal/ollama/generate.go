package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// GenerateRequest is the JSON body for POST /api/generate.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Images  []string `json:"images,omitempty"`  // base64-encoded
	Context []int    `json:"context,omitempty"` // state returned by a previous generate
	Stream  bool     `json:"stream"`
}

// GenerateChunk is one line of the streamed generate response. The final
// chunk has Done set and carries the conversation Context.
type GenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Context  []int  `json:"context,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GenerateStream reads a streamed generate response one chunk at a time.
type GenerateStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

// Generate starts a streaming completion. The caller must drain or Close the
// returned stream.
func (c *Client) Generate(ctx context.Context, gr GenerateRequest) (*GenerateStream, error) {
	gr.Stream = true
	body, err := json.Marshal(gr)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("generate %s: %w", gr.Model, ErrModelNotFound)
		}
		return nil, fmt.Errorf("generate: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return &GenerateStream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

// Next returns the next chunk. After the final chunk (Done) the stream is
// closed and further calls return io.EOF.
func (s *GenerateStream) Next() (GenerateChunk, error) {
	if s.done {
		return GenerateChunk{}, io.EOF
	}

	var chunk GenerateChunk
	if err := s.dec.Decode(&chunk); err != nil {
		s.Close()
		if errors.Is(err, io.EOF) {
			return GenerateChunk{}, io.ErrUnexpectedEOF
		}
		return GenerateChunk{}, fmt.Errorf("reading generate stream: %w", err)
	}
	if chunk.Error != "" {
		s.Close()
		return GenerateChunk{}, fmt.Errorf("generate: %s", chunk.Error)
	}
	if chunk.Done {
		s.Close()
	}
	return chunk, nil
}

// Close releases the underlying connection. Safe to call more than once.
func (s *GenerateStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}
