package engine

import (
	"context"
	"io"
	"strings"
	"testing"
)

type mockBackend struct {
	isRunning bool
	models    map[string]bool
	pulled    []string
}

func (m *mockBackend) IsRunning(_ context.Context) bool { return m.isRunning }
func (m *mockBackend) ListModels(_ context.Context) ([]string, error) {
	var names []string
	for n := range m.models {
		names = append(names, n)
	}
	return names, nil
}
func (m *mockBackend) HasModel(_ context.Context, name string) bool { return m.models[name] }
func (m *mockBackend) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	m.pulled = append(m.pulled, name)
	if cb != nil {
		cb(PullProgress{Status: "success"})
	}
	return nil
}

func TestEnsureReady_AllModelsPresent(t *testing.T) {
	m := &mockBackend{
		isRunning: true,
		models:    map[string]bool{"gemma3": true, "llava": true},
	}
	err := EnsureReady(context.Background(), m, "gemma3", "llava", io.Discard)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
}

func TestEnsureReady_PullsMissing(t *testing.T) {
	m := &mockBackend{
		isRunning: true,
		models:    map[string]bool{"gemma3": true},
	}
	err := EnsureReady(context.Background(), m, "gemma3", "llava", io.Discard)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "llava" {
		t.Errorf("expected pull of llava, got %v", m.pulled)
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	m := &mockBackend{isRunning: false, models: map[string]bool{}}
	err := EnsureReady(context.Background(), m, "gemma3", "llava", io.Discard)
	if err == nil {
		t.Fatal("expected error when engine is down")
	}
}

func TestEnsureReady_SameProjectorPulledOnce(t *testing.T) {
	m := &mockBackend{isRunning: true, models: map[string]bool{}}
	var out strings.Builder
	if err := EnsureReady(context.Background(), m, "gemma3", "gemma3", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 {
		t.Errorf("pulled %v, want one pull", m.pulled)
	}
	if !strings.Contains(out.String(), "model gemma3: ready") {
		t.Errorf("output %q missing ready line", out.String())
	}
}

func TestPullProgress_Percent(t *testing.T) {
	if got := (PullProgress{Total: 200, Completed: 50}).Percent(); got != 25 {
		t.Errorf("Percent = %v, want 25", got)
	}
	if got := (PullProgress{Status: "verifying"}).Percent(); got != -1 {
		t.Errorf("Percent with no total = %v, want -1", got)
	}
}
