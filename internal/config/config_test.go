package config

import (
	"strconv"
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]string

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	return i, true, err
}

func (m mapBackend) SetString(key, val string) error { m[key] = val; return nil }

func (m mapBackend) SetInt(key string, val int) error { m[key] = strconv.Itoa(val); return nil }

func (m mapBackend) Delete(key string) error { delete(m, key); return nil }

// clearEnv blanks every WILDGUIDE_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.Model != "gemma3:4b" {
		t.Errorf("Ollama.Model = %q", cfg.Ollama.Model)
	}
	if cfg.Ollama.Projector != "" {
		t.Errorf("Ollama.Projector = %q, want empty", cfg.Ollama.Projector)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if !cfg.Chat.Autosave {
		t.Error("Chat.Autosave should default to true")
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(mapBackend{
		"server.port":      "4200",
		"ollama.model":     "llama3.2",
		"ollama.projector": "llava",
		"chat.autosave":    "false",
		"chat.image_dir":   "/tmp/photos",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4200 || cfg.Ollama.Model != "llama3.2" || cfg.Ollama.Projector != "llava" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Chat.Autosave {
		t.Error("chat.autosave=false not applied")
	}
	if cfg.Chat.ImageDir != "/tmp/photos" {
		t.Errorf("Chat.ImageDir = %q", cfg.Chat.ImageDir)
	}
}

func TestBackendBadBoolKeepsDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(mapBackend{"chat.autosave": "sometimes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Chat.Autosave {
		t.Error("unparseable bool should keep the default")
	}
}

func TestBackendReadError(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(mapBackend{"server.port": "abc"}); err == nil {
		t.Fatal("expected error for non-integer server.port")
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("WILDGUIDE_OLLAMA_MODEL", "phi4")
	t.Setenv("WILDGUIDE_SERVER_PORT", "5000")
	t.Setenv("WILDGUIDE_CHAT_AUTOSAVE", "0")

	cfg, err := loadWith(mapBackend{"ollama.model": "from-backend", "server.port": "4200"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ollama.Model != "phi4" {
		t.Errorf("Ollama.Model = %q, want env value", cfg.Ollama.Model)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Chat.Autosave {
		t.Error("WILDGUIDE_CHAT_AUTOSAVE=0 not applied")
	}
}

func TestEnvOverride_BadIntIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("WILDGUIDE_SERVER_PORT", "not-a-port")
	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		backend mapBackend
		wantErr string
	}{
		{"port zero", mapBackend{"server.port": "0"}, "server.port"},
		{"port too big", mapBackend{"server.port": "70000"}, "server.port"},
		{"blank model", mapBackend{"ollama.model": "  "}, "ollama.model"},
		{"bad level", mapBackend{"log.level": "verbose"}, "log.level"},
		{"upper level ok", mapBackend{"log.level": "DEBUG"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(tt.backend)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}

	if err := setKeyWith(b, "ollama.model", "llava"); err != nil {
		t.Fatalf("set string: %v", err)
	}
	if err := setKeyWith(b, "server.port", "4300"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if err := setKeyWith(b, "chat.autosave", "no"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := setKeyWith(b, "chat.autosave", "FALSE"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for invalid int")
	}
	if err := setKeyWith(b, "server.api_token", "x"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	if b["ollama.model"] != "llava" || b["server.port"] != "4300" || b["chat.autosave"] != "false" {
		t.Errorf("backend = %v", b)
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	infos := ShowAll(defaults())
	if len(infos) != len(ValidKeys()) {
		t.Errorf("ShowAll returned %d keys, ValidKeys %d", len(infos), len(ValidKeys()))
	}
	for _, ki := range infos {
		if ki.Key == "server.api_token" {
			t.Error("ShowAll exposed the API token")
		}
		if ki.EnvVar == "" || !strings.HasPrefix(ki.EnvVar, "WILDGUIDE_") {
			t.Errorf("key %s has env var %q", ki.Key, ki.EnvVar)
		}
	}
}
