package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	envAPIToken     = "WILDGUIDE_API_TOKEN"
	keychainService = appName
	keychainAccount = "api_token"
)

var ErrSecretNotFound = errors.New("secret not found")

// Keychain is a minimal secret store keyed by service and account.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// GetAPIToken returns the bearer token guarding the local HTTP API.
// WILDGUIDE_API_TOKEN wins; otherwise the token is read from the keychain,
// and generated and stored there on first run.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := strings.TrimSpace(os.Getenv(envAPIToken)); tok != "" {
		return tok, nil
	}

	tok, err := kc.Get(keychainService, keychainAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	tok, err = newToken()
	if err != nil {
		return "", err
	}
	if err := kc.Set(keychainService, keychainAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
