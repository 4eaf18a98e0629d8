package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const signingKeyFile = "signing.key"

// SigningSecret returns configured when set. Otherwise it reads the HS256
// key from dir/signing.key, generating and persisting a 256-bit key on first
// use so a single-node deployment works without configuration.
func SigningSecret(configured, dir string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return loadOrCreateKey(dir)
}

func loadOrCreateKey(dir string) (string, error) {
	path := filepath.Join(dir, signingKeyFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}

	return RotateSigningKey(dir)
}

// RotateSigningKey replaces the stored key. Every token signed with the old
// key stops verifying.
func RotateSigningKey(dir string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	key := hex.EncodeToString(b)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, signingKeyFile), []byte(key), 0600); err != nil {
		return "", fmt.Errorf("write signing key: %w", err)
	}
	return key, nil
}
