package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisRelay publishes room deliveries on redis pub/sub so every gateway
// instance sharing the redis server reaches its own members.
type RedisRelay struct {
	rdb    *redis.Client
	hub    *Hub
	prefix string
	logger *slog.Logger
	ready  chan struct{}
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, prefix string, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		rdb:    rdb,
		hub:    hub,
		prefix: prefix,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Publish sends d to the channel of its room.
func (r *RedisRelay) Publish(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	return r.rdb.Publish(ctx, r.prefix+d.RoomID, body).Err()
}

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to every room channel and hands deliveries to the hub
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s*: %w", r.prefix, err)
	}
	close(r.ready)
	r.logger.Info("redis relay subscribed", "pattern", r.prefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				r.logger.Warn("dropping malformed relay delivery", "channel", msg.Channel, "error", err)
				continue
			}
			r.hub.Deliver(d)
		}
	}
}
