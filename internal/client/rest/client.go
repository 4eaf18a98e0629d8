// Package rest is the client for the notification endpoints of the crier
// REST API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btouchard/crier/internal/auth"
)

var (
	// ErrUnauthorized is returned when no credential is present or the
	// server rejected it.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when the addressed notification does not exist.
	ErrNotFound = errors.New("not found")
)

// Notification mirrors the server's notification resource.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	TaskID    int64     `json:"task_id,omitempty"`
	Severity  string    `json:"severity"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Client calls the REST API with the bearer credential from creds.
type Client struct {
	baseURL string
	creds   auth.CredentialProvider
	http    *http.Client
}

// New creates a Client for baseURL (scheme and host, no trailing path).
func New(baseURL string, creds auth.CredentialProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
	}
}

// Notifications fetches the caller's notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", &out); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return out, nil
}

// MarkRead marks one server notification as read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	path := "/api/notifications/" + strconv.FormatInt(id, 10) + "/read"
	if err := c.do(ctx, http.MethodPost, path, nil); err != nil {
		return fmt.Errorf("marking notification %d read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every notification of the caller as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil); err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	token, ok := c.creds.Token()
	if !ok {
		return ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status %s: %s", resp.Status, readError(resp.Body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func readError(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
