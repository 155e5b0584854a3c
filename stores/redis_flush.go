package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/explorer"
	"github.com/oarkflow/explorer/logger"
)

// DefaultFlushChannel is the pub/sub channel flush events travel on.
const DefaultFlushChannel = "explorer:flush"

type flushMessage struct {
	Origin string              `json:"origin"`
	Event  explorer.FlushEvent `json:"event"`
}

// RedisFlushRelay broadcasts flush events between processes over Redis
// pub/sub. Events published locally are forwarded; events from other
// processes are delivered to the local bus only.
type RedisFlushRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	bus     *explorer.FlushBus
	log     logger.Logger
}

func NewRedisFlushRelay(client redis.UniversalClient, bus *explorer.FlushBus, channel string, log logger.Logger) *RedisFlushRelay {
	if channel == "" {
		channel = DefaultFlushChannel
	}
	if log == nil {
		log = logger.Default()
	}
	r := &RedisFlushRelay{client: client, channel: channel, origin: uuid.NewString(), bus: bus, log: log}
	bus.AddRelay(r)
	return r
}

// Origin identifies this process on the channel.
func (r *RedisFlushRelay) Origin() string { return r.origin }

func (r *RedisFlushRelay) Forward(ctx context.Context, event explorer.FlushEvent) error {
	b, err := r.encode(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("publish flush %s: %w", event, err)
	}
	return nil
}

func (r *RedisFlushRelay) encode(event explorer.FlushEvent) ([]byte, error) {
	return json.Marshal(flushMessage{Origin: r.origin, Event: event})
}

// handle delivers a remote message to the local bus. Own messages and
// garbage are ignored.
func (r *RedisFlushRelay) handle(ctx context.Context, payload string) bool {
	var m flushMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		r.log.Error("invalid flush message", "channel", r.channel, "error", err)
		return false
	}
	if m.Origin == r.origin || m.Event == "" {
		return false
	}
	r.log.Debug("remote flush received", "event", string(m.Event), "origin", m.Origin)
	r.bus.Deliver(ctx, m.Event)
	return true
}

// Run subscribes to the channel and blocks until ctx is done.
func (r *RedisFlushRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}
