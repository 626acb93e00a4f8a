//go:build !darwin

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wildguide", "config.json")

	b := openFileBackend(path)
	if err := setKeyWith(b, "ollama.model", "llava"); err != nil {
		t.Fatal(err)
	}
	if err := setKeyWith(b, "server.port", "4300"); err != nil {
		t.Fatal(err)
	}
	if err := setKeyWith(b, "chat.autosave", "false"); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	cfg, err := loadWith(openFileBackend(path))
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if cfg.Ollama.Model != "llava" || cfg.Server.Port != 4300 || cfg.Chat.Autosave {
		t.Errorf("cfg = %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}
}

func TestFileBackend_HandEditedTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 4400, "chat.autosave": false}`), 0o600); err != nil {
		t.Fatal(err)
	}
	clearEnv(t)
	cfg, err := loadWith(openFileBackend(path))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4400 || cfg.Chat.Autosave {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFileKeychain(t *testing.T) {
	kc := fileKeychain{path: filepath.Join(t.TempDir(), "secrets.json")}

	if _, err := kc.Get("wildguide", "api_token"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("Get on empty store: %v, want ErrSecretNotFound", err)
	}
	if err := kc.Set("wildguide", "api_token", "s3cret"); err != nil {
		t.Fatal(err)
	}
	got, err := kc.Get("wildguide", "api_token")
	if err != nil || got != "s3cret" {
		t.Errorf("Get = %q, %v", got, err)
	}
}
