// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"oddsgate/platform/shared/logger"
)

// LogChannel is the Pub/Sub channel NEW_LOG events travel on between workers.
const LogChannel = "oddsgate:logs"

// RedisRelay publishes records to Redis and relays every event received on
// LogChannel to the local Hub, so observers attached to any worker see the
// traffic of all workers.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *logger.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// ConnectRedis parses redisURL and verifies the server answers.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("audit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("audit: connect redis: %w", err)
	}
	return client, nil
}

// NewRedisRelay wires client to hub. Call Start before publishing.
func NewRedisRelay(client *redis.Client, hub *Hub, log *logger.Logger) *RedisRelay {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisRelay{
		client:  client,
		channel: LogChannel,
		hub:     hub,
		log:     log,
	}
}

// Start subscribes to the log channel and returns once the subscription is
// confirmed. Relaying continues until ctx is done or Close is called.
func (r *RedisRelay) Start(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("audit: subscribe %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.pubsub = ps
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.relay(ctx, ps, r.done)
	return nil
}

func (r *RedisRelay) relay(ctx context.Context, ps *redis.PubSub, done chan struct{}) {
	defer close(done)
	ch := ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.Broadcast([]byte(msg.Payload))
		case <-ctx.Done():
			_ = ps.Close()
			return
		}
	}
}

// Publish implements Publisher. When Redis is unreachable the event is
// delivered to the local hub only.
func (r *RedisRelay) Publish(rec Record) {
	payload, err := encodeEvent(rec)
	if err != nil {
		r.log.Error(rec.ClientIP, rec.RequestID, "encode log event failed", map[string]interface{}{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.Warn(rec.ClientIP, rec.RequestID, "redis publish failed, delivering locally", map[string]interface{}{"error": err.Error()})
		r.hub.Broadcast(payload)
	}
}

// Close ends the subscription and waits for the relay loop to exit.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	ps, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
