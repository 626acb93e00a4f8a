//go:build darwin

package config

import (
	"fmt"
	"os/exec"
	"strings"
)

// securityKeychain stores secrets in the macOS login keychain via the
// `security` CLI.
type securityKeychain struct{}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return securityKeychain{}
}

func (securityKeychain) Get(service, account string) (string, error) {
	out, err := exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s", ErrSecretNotFound, service, account)
	}
	return strings.TrimSpace(string(out)), nil
}

func (securityKeychain) Set(service, account, value string) error {
	out, err := exec.Command(
		"security", "add-generic-password",
		"-U",
		"-s", service,
		"-a", account,
		"-w", value,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("storing %s/%s in keychain: %w: %s", service, account, err, strings.TrimSpace(string(out)))
	}
	return nil
}
