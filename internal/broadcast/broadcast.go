// Package broadcast fans out BroadcastEvents to downstream consumers,
// re-exposed over HTTP as Server-Sent-Events. A Redis-backed sink is used
// when REDIS_URL is configured; otherwise events stay in-process.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "x402c:events:"

// Sink publishes events and lets subscribers drain them until the
// subscription is cancelled or Unsubscribe is called.
type Sink interface {
	Publish(ctx context.Context, event model.BroadcastEvent) error
	Subscribe(ctx context.Context) (ch <-chan model.BroadcastEvent, unsubscribe func())
	Close() error
}

// LocalSink is an in-process fan-out hub, used when no Redis backend is
// configured. When a subscriber's buffer is full, Publish drops that event
// for it rather than blocking; the subscriber itself stays registered.
type LocalSink struct {
	mu   sync.Mutex
	subs map[chan model.BroadcastEvent]struct{}
}

// NewLocalSink constructs an empty in-process sink.
func NewLocalSink() *LocalSink {
	return &LocalSink{subs: make(map[chan model.BroadcastEvent]struct{})}
}

func (s *LocalSink) Publish(_ context.Context, event model.BroadcastEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- event:
		default:
			// Drop rather than block; a slow SSE client shouldn't stall publishers.
		}
	}
	return nil
}

func (s *LocalSink) Subscribe(_ context.Context) (<-chan model.BroadcastEvent, func()) {
	ch := make(chan model.BroadcastEvent, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, unsubscribe
}

func (s *LocalSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan model.BroadcastEvent]struct{})
	return nil
}

// RedisSink publishes to and subscribes from a single Redis Pub/Sub
// channel shared by every process running against the same deployment.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink parses url, pings the server, and returns a sink bound to a
// fixed channel name.
func NewRedisSink(url string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("broadcast: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("broadcast: ping redis: %w", err)
	}
	return &RedisSink{client: client, channel: channelPrefix + "all"}, nil
}

func (s *RedisSink) Publish(ctx context.Context, event model.BroadcastEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("broadcast: marshal event: %w", err)
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

func (s *RedisSink) Subscribe(ctx context.Context) (<-chan model.BroadcastEvent, func()) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	out := make(chan model.BroadcastEvent, 64)

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event model.BroadcastEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()

	unsubscribe := func() { _ = pubsub.Close() }
	return out, unsubscribe
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// New selects RedisSink when redisURL is non-empty, LocalSink otherwise.
func New(redisURL string) (Sink, error) {
	if redisURL == "" {
		return NewLocalSink(), nil
	}
	return NewRedisSink(redisURL)
}
