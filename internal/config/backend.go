package config

import (
	"os"
	"path/filepath"
)

const appName = "wildguide"

// ConfigBackend abstracts platform-specific config storage.
// macOS uses UserDefaults (via `defaults` CLI), other platforms use an
// XDG config file.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// xdgDir resolves an XDG base directory, falling back to a path under the
// user's home, and appends the application name.
func xdgDir(env string, homeRel ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return appName + "-data"
		}
		dir = filepath.Join(append([]string{home}, homeRel...)...)
	}
	return filepath.Join(dir, appName)
}
