package inbox

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultToastTTL = 6 * time.Second

	// VisibleToasts is how many toasts are shown at once. The rest are
	// counted by Overflow, never dropped.
	VisibleToasts = 3
)

// Severity drives toast styling.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// ParseSeverity maps a producer's severity onto the closed set, defaulting
// to info.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeveritySuccess, SeverityError:
		return Severity(s)
	default:
		return SeverityInfo
	}
}

// Toast is a transient popup for a live notification.
type Toast struct {
	ID        string
	Message   string
	TaskID    int64 // 0 = none
	Severity  Severity
	CreatedAt time.Time
}

// Toasts is the auto-expiring toast queue.
type Toasts struct {
	ttl   time.Duration
	clock Clock

	mu     sync.Mutex
	items  []Toast // oldest first
	timers map[string]Timer
	hooks  []func(Toast)
	closed bool
}

// NewToasts creates a queue whose entries expire after ttl (6s when zero).
func NewToasts(ttl time.Duration, clock Clock) *Toasts {
	if ttl <= 0 {
		ttl = defaultToastTTL
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Toasts{ttl: ttl, clock: clock, timers: make(map[string]Timer)}
}

// OnPush registers fn to be called for every new toast.
func (q *Toasts) OnPush(fn func(Toast)) {
	q.mu.Lock()
	q.hooks = append(q.hooks, fn)
	q.mu.Unlock()
}

// Push enqueues a toast and arms its expiry timer.
func (q *Toasts) Push(message string, taskID int64, severity Severity) Toast {
	t := Toast{
		ID:        uuid.NewString(),
		Message:   message,
		TaskID:    taskID,
		Severity:  ParseSeverity(string(severity)),
		CreatedAt: q.clock.Now(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return t
	}
	q.items = append(q.items, t)
	id := t.ID
	q.timers[id] = q.clock.AfterFunc(q.ttl, func() { q.expire(id) })
	hooks := slices.Clone(q.hooks)
	q.mu.Unlock()

	for _, fn := range hooks {
		fn(t)
	}
	return t
}

func (q *Toasts) expire(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.removeLocked(id) {
		slog.Debug("toast expired", "toast_id", id)
	}
}

// Dismiss removes the toast and cancels its timer. It reports whether the
// toast was still queued.
func (q *Toasts) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.timers[id]; ok {
		t.Stop()
	}
	return q.removeLocked(id)
}

// DismissAll empties the queue and cancels every timer.
func (q *Toasts) DismissAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

// Close dismisses everything and makes later pushes no-ops.
func (q *Toasts) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.clearLocked()
}

func (q *Toasts) clearLocked() {
	for _, t := range q.timers {
		t.Stop()
	}
	q.timers = make(map[string]Timer)
	q.items = nil
}

func (q *Toasts) removeLocked(id string) bool {
	delete(q.timers, id)
	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Visible returns up to VisibleToasts of the newest toasts, newest first.
func (q *Toasts) Visible() []Toast {
	all := q.All()
	if len(all) > VisibleToasts {
		all = all[:VisibleToasts]
	}
	return all
}

// Overflow is the number of queued toasts not shown by Visible.
func (q *Toasts) Overflow() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return max(len(q.items)-VisibleToasts, 0)
}

// All returns every queued toast, newest first.
func (q *Toasts) All() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Toast, len(q.items))
	for i, t := range q.items {
		out[len(q.items)-1-i] = t
	}
	return out
}
