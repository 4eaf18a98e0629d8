// Package inbox turns the live event stream into a deduplicated notification
// list and a transient toast queue.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/btouchard/crier/internal/client/channel"
	"github.com/btouchard/crier/internal/client/rest"
)

const defaultReconcileDelay = 1500 * time.Millisecond

// ErrUnknownRecord is returned by MarkAsRead for an id not in the store.
var ErrUnknownRecord = errors.New("unknown notification")

// Backend is the authoritative notification list.
type Backend interface {
	Notifications(ctx context.Context) ([]rest.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
}

// Record is one notification as the client knows it.
type Record struct {
	// ID is the decimal server id, or local-<unixnano>-<fraction> for a
	// record built from a push that the server has not corroborated yet.
	ID        string
	ServerID  int64 // 0 until corroborated
	UserID    int64
	Message   string
	TaskID    int64 // 0 = none
	Read      bool
	Local     bool
	CreatedAt time.Time
}

// Options tunes a Store. Zero values take the defaults.
type Options struct {
	DedupWindow    time.Duration
	DedupHistory   int
	ReconcileDelay time.Duration
	Clock          Clock
}

// Store holds the notification list, most recent first.
type Store struct {
	backend        Backend
	toasts         *Toasts
	dedup          *Deduper
	clock          Clock
	reconcileDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	records   []Record
	reconcile Timer // at most one reconciliation pending
	closed    bool
}

// NewStore creates an empty Store feeding toasts.
func NewStore(backend Backend, toasts *Toasts, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.ReconcileDelay <= 0 {
		opts.ReconcileDelay = defaultReconcileDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		backend:        backend,
		toasts:         toasts,
		dedup:          NewDeduper(opts.DedupWindow, opts.DedupHistory, opts.Clock),
		clock:          opts.Clock,
		reconcileDelay: opts.ReconcileDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Toasts returns the toast queue fed by this store.
func (s *Store) Toasts() *Toasts {
	return s.toasts
}

// HandleEvent is a channel.Handler for live notifications.
func (s *Store) HandleEvent(ev channel.Event) {
	if ev.Kind != channel.KindReceiveNotification {
		return
	}
	if s.dedup.Duplicate(ev.Raw) {
		slog.Debug("dropping duplicate notification", "message", ev.Notification.Message)
		return
	}

	n := ev.Notification
	now := s.clock.Now()
	rec := Record{
		ID:        localID(now),
		ServerID:  n.ServerID,
		Message:   n.Message,
		TaskID:    n.TaskID,
		Local:     true,
		CreatedAt: now,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.records = append([]Record{rec}, s.records...)
	if s.reconcile == nil {
		s.reconcile = s.clock.AfterFunc(s.reconcileDelay, s.reconcileLater)
	}
	s.mu.Unlock()

	s.toasts.Push(n.Message, n.TaskID, ParseSeverity(n.Severity))
}

func localID(now time.Time) string {
	return fmt.Sprintf("local-%d-%06d", now.UnixNano(), rand.IntN(1_000_000))
}

func (s *Store) reconcileLater() {
	s.mu.Lock()
	s.reconcile = nil
	s.mu.Unlock()

	if err := s.Reconcile(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("notification reconcile failed", "error", err)
	}
}

// Hydrate loads the list from the backend on a cold start. It never toasts.
func (s *Store) Hydrate(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return fmt.Errorf("hydrating notifications: %w", err)
	}
	return nil
}

// Reconcile merges the backend list into the store. Server records replace
// the local records they corroborate; uncorroborated local records stay.
func (s *Store) Reconcile(ctx context.Context) error {
	list, err := s.backend.Notifications(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var unsent []int64
	s.records, unsent = merge(s.records, list)
	s.mu.Unlock()

	for _, id := range unsent {
		if err := s.backend.MarkRead(ctx, id); err != nil {
			slog.Warn("mark read failed, keeping local state", "notification_id", id, "error", err)
		}
	}
	return nil
}

// merge builds the new list from the server's and the still-local records.
// It also returns the server ids of records read locally that the server
// still reports unread; those flips have not reached the backend yet.
func merge(current []Record, server []rest.Notification) ([]Record, []int64) {
	var unsent []int64
	byID := make(map[int64]int, len(server))
	byMessage := make(map[string]int, len(server))
	out := make([]Record, 0, len(server)+len(current))
	for _, n := range server {
		byID[n.ID] = len(out)
		if _, ok := byMessage[n.Message]; !ok {
			byMessage[n.Message] = len(out)
		}
		out = append(out, Record{
			ID:        strconv.FormatInt(n.ID, 10),
			ServerID:  n.ID,
			UserID:    n.UserID,
			Message:   n.Message,
			TaskID:    n.TaskID,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}

	for _, r := range current {
		if !r.Local {
			continue
		}
		i, ok := byID[r.ServerID]
		if r.ServerID == 0 || !ok {
			i, ok = byMessage[r.Message]
		}
		if !ok {
			out = append(out, r)
			continue
		}
		if r.Read && !out[i].Read {
			out[i].Read = true
			if !slices.Contains(unsent, out[i].ServerID) {
				unsent = append(unsent, out[i].ServerID)
			}
		}
	}

	slices.SortStableFunc(out, func(a, b Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, unsent
}

// MarkAsRead flips the read flag locally and then tells the backend. A
// backend failure is logged and the local flip stands until the next
// reconcile. A record without a server id is sent by the reconcile that
// corroborates it, as is a flip the backend failed to take.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.records, func(r Record) bool { return r.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	s.records[i].Read = true
	rec := s.records[i]
	s.mu.Unlock()

	if rec.Local && rec.ServerID == 0 {
		return nil
	}
	if err := s.backend.MarkRead(ctx, rec.ServerID); err != nil {
		slog.Warn("mark read failed, keeping local state", "notification_id", rec.ServerID, "error", err)
	}
	return nil
}

// MarkAllAsRead flips every record locally and then tells the backend.
func (s *Store) MarkAllAsRead(ctx context.Context) {
	s.mu.Lock()
	for i := range s.records {
		s.records[i].Read = true
	}
	s.mu.Unlock()

	if err := s.backend.MarkAllRead(ctx); err != nil {
		slog.Warn("mark all read failed, keeping local state", "error", err)
	}
}

// Records returns a snapshot of the list, most recent first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// UnreadCount is the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if !r.Read {
			n++
		}
	}
	return n
}

// Close cancels a pending reconcile and clears the toast queue.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	if s.reconcile != nil {
		s.reconcile.Stop()
		s.reconcile = nil
	}
	s.mu.Unlock()
	s.cancel()
	s.toasts.Close()
}
