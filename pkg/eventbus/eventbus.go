// Package eventbus fans decoded events out to Redis pub/sub, for other
// services on the same host to subscribe to without parsing observer
// stdout.
package eventbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher publishes JSON-encoded events to a single Redis channel.
type Publisher struct {
	client  *redis.Client
	ctx     context.Context
	channel string
}

// NewPublisher connects to the Redis instance at addr and verifies
// reachability with a Ping before returning.
func NewPublisher(addr, password string, db int, channel string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("eventbus: connect to redis: %w", err)
	}

	return &Publisher{client: client, ctx: ctx, channel: channel}, nil
}

// Publish sends payload (typically a pre-marshaled JSON event) on the
// publisher's channel.
func (p *Publisher) Publish(payload []byte) error {
	return p.client.Publish(p.ctx, p.channel, payload).Err()
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
