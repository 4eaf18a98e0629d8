// Package channel owns the client side of the live notification channel: one
// transport per Manager, reconnection with jittered exponential backoff, and
// typed fan-out to subscribers.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/btouchard/crier/internal/auth"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handler receives dispatched events.
type Handler func(Event)

type stopFunc func() bool

func afterFunc(d time.Duration, f func()) stopFunc {
	return time.AfterFunc(d, f).Stop
}

// Config wires a Manager.
type Config struct {
	URL         string
	Credentials auth.CredentialProvider
	Dialer      Dialer
	Backoff     Backoff
}

// Manager keeps at most one live transport to the hub.
type Manager struct {
	url     string
	creds   auth.CredentialProvider
	dialer  Dialer
	backoff Backoff
	after   func(time.Duration, func()) stopFunc

	// starts coalesces concurrent Start calls and due retries into one dial.
	starts singleflight.Group
	// lifecycle serializes dial and teardown so Stop waits out a dial in
	// flight and Start waits out a teardown in flight.
	lifecycle sync.Mutex

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      uint64 // bumped whenever conn is replaced or detached
	attempt  int
	retry    stopFunc
	retrySeq uint64 // identifies the armed retry; a stale timer firing is a no-op
	wanted   bool // an external Start is in effect and no Stop followed it
	watchers []func(State)

	subMu   sync.RWMutex
	subs    map[EventKind]map[uint64]Handler
	nextSub uint64
}

// NewManager creates a disconnected Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Credentials == nil {
		cfg.Credentials = auth.NewStaticCredentials("")
	}
	if cfg.Backoff.MaxAttempts <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Manager{
		url:     cfg.URL,
		creds:   cfg.Credentials,
		dialer:  cfg.Dialer,
		backoff: cfg.Backoff,
		after:   afterFunc,
		subs:    make(map[EventKind]map[uint64]Handler),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the retry counter. It is zero while connected.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// OnStateChange registers fn to observe every state transition. fn runs
// synchronously and must not block.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	m.mu.Unlock()
}

// Start connects to the hub. It returns at once when already connected, and
// concurrent callers share the attempt in flight. Without a credential it
// returns nil and does not dial. A failed dial arms a retry and is returned.
// ctx bounds only the wait: the dial itself is not cancelled.
func (m *Manager) Start(ctx context.Context) error {
	if m.State() == StateConnected {
		return nil
	}
	ch := m.starts.DoChan("start", func() (any, error) {
		return nil, m.connect(context.WithoutCancel(ctx), true)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the transport and disarms any retry. It waits for a dial in
// flight to finish first. Stopping a disconnected Manager is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.lifecycle.Lock()
		defer m.lifecycle.Unlock()
		m.teardown()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) teardown() {
	m.mu.Lock()
	m.wanted = false
	m.disarmLocked()
	conn := m.conn
	m.conn = nil
	m.gen++
	m.attempt = 0
	changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Debug("closing transport", "error", err)
		}
		slog.Info("live channel stopped")
	}
	m.emit(changed, StateDisconnected)
}

// connect performs one dial. external marks a caller-initiated Start, which
// resets the retry budget; a retry firing leaves it untouched.
func (m *Manager) connect(ctx context.Context, external bool) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if !external && !m.wanted {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	token, ok := m.creds.Token()
	if !ok {
		slog.Debug("no credential, live channel not started")
		return nil
	}

	m.mu.Lock()
	if external {
		m.wanted = true
		m.attempt = 0
		m.disarmLocked()
	}
	reconnecting := m.state == StateReconnecting
	next := StateConnecting
	if reconnecting {
		next = StateReconnecting
	}
	changed := m.setStateLocked(next)
	attempt := m.attempt
	m.mu.Unlock()
	m.emit(changed, next)

	conn, err := m.dialer.Dial(ctx, m.url, token)
	if err != nil {
		slog.Warn("live channel dial failed", "url", m.url, "attempt", attempt, "error", err)
		m.mu.Lock()
		final := StateDisconnected
		if reconnecting && !m.backoff.Exhausted(m.attempt) {
			final = StateReconnecting
		}
		changed := m.setStateLocked(final)
		m.scheduleRetryLocked()
		m.mu.Unlock()
		m.emit(changed, final)
		return fmt.Errorf("connecting to %s: %w", m.url, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.gen++
	gen := m.gen
	m.attempt = 0
	changed = m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.emit(changed, StateConnected)

	slog.Info("live channel connected", "url", m.url)
	go m.readLoop(conn, gen)
	return nil
}

// scheduleRetryLocked arms the single retry timer unless one is armed or the
// budget is spent. Caller holds m.mu.
func (m *Manager) scheduleRetryLocked() {
	if !m.wanted || m.retry != nil {
		return
	}
	if m.backoff.Exhausted(m.attempt) {
		slog.Warn("live channel retries exhausted, waiting for an explicit start", "attempts", m.attempt)
		return
	}
	delay := m.backoff.Delay(m.attempt)
	slog.Info("live channel retry scheduled", "attempt", m.attempt, "delay", delay)
	m.attempt++
	m.retrySeq++
	seq := m.retrySeq
	m.retry = m.after(delay, func() { m.fireRetry(seq) })
}

func (m *Manager) disarmLocked() {
	if m.retry != nil {
		m.retry()
		m.retry = nil
	}
}

func (m *Manager) fireRetry(seq uint64) {
	m.mu.Lock()
	if m.retry == nil || seq != m.retrySeq {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.mu.Unlock()

	_, _, _ = m.starts.Do("start", func() (any, error) {
		return nil, m.connect(context.Background(), false)
	})
}

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.dropped(gen, err)
			return
		}
		ev, err := decodeFrame(data)
		if err != nil {
			slog.Warn("ignoring inbound frame", "error", err)
			continue
		}
		m.dispatch(ev)
	}
}

// dropped handles transport loss. A stale generation means Stop or a newer
// connection already took ownership.
func (m *Manager) dropped(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	changed := m.setStateLocked(StateReconnecting)
	m.scheduleRetryLocked()
	m.mu.Unlock()

	_ = conn.Close()
	slog.Warn("live channel dropped", "error", cause)
	m.emit(changed, StateReconnecting)
}

func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

func (m *Manager) emit(changed bool, s State) {
	if !changed {
		return
	}
	m.mu.Lock()
	watchers := slices.Clone(m.watchers)
	m.mu.Unlock()
	for _, fn := range watchers {
		fn(s)
	}
}

// Subscribe registers h for events of kind and returns a func that removes
// exactly this registration. Calling it more than once is harmless.
func (m *Manager) Subscribe(kind EventKind, h Handler) (unsubscribe func()) {
	m.subMu.Lock()
	m.nextSub++
	id := m.nextSub
	set, ok := m.subs[kind]
	if !ok {
		set = make(map[uint64]Handler)
		m.subs[kind] = set
	}
	set[id] = h
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs[kind], id)
			m.subMu.Unlock()
		})
	}
}

// dispatch runs every handler for ev.Kind on the calling goroutine. A
// panicking handler is logged and the rest still run.
func (m *Manager) dispatch(ev Event) {
	m.subMu.RLock()
	handlers := make([]Handler, 0, len(m.subs[ev.Kind]))
	for _, h := range m.subs[ev.Kind] {
		handlers = append(handlers, h)
	}
	m.subMu.RUnlock()

	for _, h := range handlers {
		safeCall(h, ev)
	}
}

func safeCall(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "kind", ev.Kind.String(), "panic", r)
		}
	}()
	h(ev)
}
