// Package hub is the server side of the live notification channel: it
// authenticates websocket connections and multicasts frames to every
// connection a user holds.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TypeReceiveNotification is the only frame type the hub emits.
const TypeReceiveNotification = "ReceiveNotification"

// ErrStopped is returned when the hub is no longer running.
var ErrStopped = errors.New("hub stopped")

// Frame is the wire message. Payload is either a string or an object.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NotificationPayload is the structured ReceiveNotification payload.
type NotificationPayload struct {
	ID       int64  `json:"id,omitempty"`
	Message  string `json:"message"`
	TaskID   int64  `json:"taskId,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Authenticator resolves a bearer credential to a user id.
type Authenticator interface {
	Verify(token string) (int64, error)
}

// Options tunes per-connection limits.
type Options struct {
	SendBufferSize int
	MaxMessageSize int64
}

// Hub maintains active connections grouped by user.
type Hub struct {
	auth      Authenticator
	backplane Backplane
	opts      Options
	upgrader  websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	inbound    chan Envelope
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

// New creates a Hub. A nil backplane means single-process delivery.
func New(auth Authenticator, backplane Backplane, opts Options) *Hub {
	if backplane == nil {
		backplane = NewLocalBackplane(256)
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 64
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	return &Hub{
		auth:      auth,
		backplane: backplane,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Bearer-authenticated; no cookies are involved.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan Envelope, 256),
		done:       make(chan struct{}),
		clients:    make(map[int64]map[*Client]struct{}),
	}
}

// Run owns the client registry until ctx is done. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	go func() {
		if err := h.backplane.Subscribe(ctx, h.deliver); err != nil {
			slog.Error("backplane subscription ended", "error", err)
		}
	}()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			slog.Info("hub client connected", "client_id", c.id, "user_id", c.userID, "user_connections", len(set))

		case c := <-h.unregister:
			if h.remove(c) {
				slog.Info("hub client disconnected", "client_id", c.id, "user_id", c.userID)
			}

		case env := <-h.inbound:
			h.fanOut(env)

		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[int64]map[*Client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// remove deletes c and closes its send queue. Reports whether c was present.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	return true
}

func (h *Hub) fanOut(env Envelope) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients[env.UserID] {
		select {
		case c.send <- env.Data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("hub client too slow, dropping connection", "client_id", c.id, "user_id", c.userID)
		h.remove(c)
	}
}

// deliver is the backplane callback; it hands envelopes to the Run loop.
func (h *Hub) deliver(env Envelope) {
	select {
	case h.inbound <- env:
	case <-h.done:
	default:
		slog.Warn("hub inbound queue full, frame dropped", "user_id", env.UserID)
	}
}

// SendToUser publishes frame to every connection of userID on every replica.
// Delivery is best-effort: a user with no open connection simply misses it.
func (h *Hub) SendToUser(ctx context.Context, userID int64, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return h.backplane.Publish(ctx, Envelope{UserID: userID, Data: data})
}

// ClientCount returns the number of open connections held by this replica.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// UserConnections returns how many connections userID holds on this replica.
func (h *Hub) UserConnections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ServeHTTP authenticates the request and upgrades it to a websocket.
// Browsers cannot set headers on websocket requests, so the credential may
// also arrive as the access_token query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}
	userID, err := h.auth.Verify(token)
	if err != nil {
		slog.Debug("hub credential rejected", "error", err)
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.opts.SendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
