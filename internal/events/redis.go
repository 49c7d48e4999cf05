package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"influencegen/internal/log"
)

// Redis is a Broker over Redis Pub/Sub, so subscribers on one replica see
// results received by another.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

// NewRedis publishes on channels named "<prefix>:generation:<key>".
func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "influencegen"
	}
	return &Redis{
		rdb:    rdb,
		prefix: prefix,
		logger: log.WithComponent("events"),
		subs:   map[chan Event]*redis.PubSub{},
	}
}

func (b *Redis) Subscribe(key string) chan Event {
	ch := make(chan Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.channel(key))
	// Wait for the subscription confirmation so a Publish issued right after
	// Subscribe returns is not lost.
	if _, err := ps.Receive(ctx); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("redis subscribe failed")
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying PubSub; ch is closed once its reader
// goroutine drains.
func (b *Redis) Unsubscribe(_ string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(key string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error().Err(err).Str("type", evt.Type).Msg("marshal event")
		return
	}
	if err := b.rdb.Publish(ctx, b.channel(key), data).Err(); err != nil {
		b.logger.Warn().Err(err).Str("type", evt.Type).Msg("redis publish failed")
	}
}

func (b *Redis) channel(key string) string { return b.prefix + ":generation:" + key }
