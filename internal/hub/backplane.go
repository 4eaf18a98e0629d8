package hub

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrBackplaneFull is returned when the local queue cannot take another envelope.
var ErrBackplaneFull = errors.New("backplane queue full")

// Envelope is a frame addressed to one user, encoded once at publish time.
type Envelope struct {
	UserID int64           `json:"user_id"`
	Data   json.RawMessage `json:"data"`
}

// Backplane carries envelopes between hub replicas. Every replica subscribes
// and delivers to whichever of the user's connections it holds.
type Backplane interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe calls fn for every envelope until ctx is done.
	Subscribe(ctx context.Context, fn func(Envelope)) error
	Close() error
}

// LocalBackplane serves a single process.
type LocalBackplane struct {
	ch chan Envelope
}

// NewLocalBackplane creates an in-process backplane with the given queue size.
func NewLocalBackplane(size int) *LocalBackplane {
	if size <= 0 {
		size = 256
	}
	return &LocalBackplane{ch: make(chan Envelope, size)}
}

func (b *LocalBackplane) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBackplaneFull
	}
}

func (b *LocalBackplane) Subscribe(ctx context.Context, fn func(Envelope)) error {
	for {
		select {
		case env := <-b.ch:
			fn(env)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *LocalBackplane) Close() error { return nil }
