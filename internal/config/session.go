package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SessionPath returns the file holding the backend session token.
func SessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultSessionFile), nil
}

// LoadSession returns the stored session token, or "" when not logged in.
func LoadSession() (string, error) {
	p, err := SessionPath()
	if err != nil {
		return "", err
	}
	return readSession(p)
}

// SaveSession stores token with owner-only permissions.
func SaveSession(token string) error {
	p, err := SessionPath()
	if err != nil {
		return err
	}
	return writeSession(p, token)
}

// ClearSession removes the stored token. Missing files are not an error.
func ClearSession() error {
	p, err := SessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

func readSession(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading session: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func writeSession(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}
