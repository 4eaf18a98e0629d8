package auth

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// CredentialProvider supplies the bearer token used to open the push channel.
// A missing token means "not logged in", not an error.
type CredentialProvider interface {
	Token() (string, bool)
	Clear()
	Authenticated() bool
}

// StaticCredentials holds a token in memory.
type StaticCredentials struct {
	mu    sync.RWMutex
	token string
}

// NewStaticCredentials returns a provider for token. An empty token
// yields an unauthenticated provider.
func NewStaticCredentials(token string) *StaticCredentials {
	return &StaticCredentials{token: strings.TrimSpace(token)}
}

func (c *StaticCredentials) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Set replaces the token, e.g. after a fresh login.
func (c *StaticCredentials) Set(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *StaticCredentials) Clear() {
	c.Set("")
}

func (c *StaticCredentials) Authenticated() bool {
	_, ok := c.Token()
	return ok
}

// FileCredentials reads the token from a file on every call so an external
// login flow can refresh it without restarting the client.
type FileCredentials struct {
	path string

	mu      sync.Mutex
	cleared bool
}

// NewFileCredentials returns a provider backed by path.
func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

func (c *FileCredentials) Token() (string, bool) {
	c.mu.Lock()
	cleared := c.cleared
	c.mu.Unlock()
	if cleared {
		return "", false
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("reading token file", "path", c.path, "error", err)
		}
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}

// Clear removes the token file. Until a new file appears the provider
// reports no credential.
func (c *FileCredentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("removing token file", "path", c.path, "error", err)
		c.cleared = true
		return
	}
	c.cleared = false
}

func (c *FileCredentials) Authenticated() bool {
	_, ok := c.Token()
	return ok
}
