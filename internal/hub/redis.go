package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBackplane fans envelopes out to every replica through a Redis
// pub/sub channel.
type RedisBackplane struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisBackplane wraps an existing client.
func NewRedisBackplane(client redis.UniversalClient, channel string) *RedisBackplane {
	return &RedisBackplane{client: client, channel: channel}
}

// DialRedisBackplane parses url, pings the server, and returns a backplane.
func DialRedisBackplane(ctx context.Context, url, channel string) (*RedisBackplane, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisBackplane(client, channel), nil
}

func (b *RedisBackplane) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBackplane) Subscribe(ctx context.Context, fn func(Envelope)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = ps.Close() }()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("dropping malformed backplane message", "channel", b.channel, "error", err)
				continue
			}
			fn(env)
		}
	}
}

func (b *RedisBackplane) Close() error {
	return b.client.Close()
}
