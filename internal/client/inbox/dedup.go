package inbox

import (
	"crypto/sha256"
	"sync"
	"time"
)

const (
	defaultDedupWindow  = 2 * time.Second
	defaultDedupHistory = 50
)

// Deduper drops payloads already seen within a short window. It guards
// against duplicate delivery from reconnect races, not against a producer
// legitimately repeating itself later.
type Deduper struct {
	window  time.Duration
	history int
	clock   Clock

	mu    sync.Mutex
	seen  map[[sha256.Size]byte]time.Time
	order [][sha256.Size]byte
}

// NewDeduper remembers up to history payloads, each for window after it was
// first seen. Zero values select 2s and 50.
func NewDeduper(window time.Duration, history int, clock Clock) *Deduper {
	if window <= 0 {
		window = defaultDedupWindow
	}
	if history <= 0 {
		history = defaultDedupHistory
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Deduper{
		window:  window,
		history: history,
		clock:   clock,
		seen:    make(map[[sha256.Size]byte]time.Time, history),
	}
}

// Duplicate reports whether payload was first seen less than the window
// ago. A repeat does not extend the window.
func (d *Deduper) Duplicate(payload string) bool {
	key := sha256.Sum256([]byte(payload))
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if first, ok := d.seen[key]; ok {
		if now.Sub(first) < d.window {
			return true
		}
		d.seen[key] = now
		return false
	}

	d.seen[key] = now
	d.order = append(d.order, key)
	for len(d.order) > d.history {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return false
}
