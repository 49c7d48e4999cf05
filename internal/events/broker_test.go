package events

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencegen/internal/model"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe("r1")

	b.Publish("r1", Event{Type: TypeGenerationCompleted, Data: map[string]any{"x": 1}})
	b.Publish("other", Event{Type: "ignored"})

	select {
	case got := <-ch:
		assert.Equal(t, TypeGenerationCompleted, got.Type)
		assert.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe("r1", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// A second unsubscribe must not panic on a closed channel.
	b.Unsubscribe("r1", ch)
}

func TestMemoryPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe("r1")
	defer b.Unsubscribe("r1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("r1", Event{Type: "tick"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestRedisPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := NewRedis(rdb, "test")
	ch := b.Subscribe("req-1")

	b.Publish("req-1", Event{Type: TypeGenerationFailed, Data: map[string]any{"error_code": "E1"}})

	select {
	case got := <-ch:
		assert.Equal(t, TypeGenerationFailed, got.Type)
		assert.Equal(t, "E1", got.Data["error_code"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	b.Unsubscribe("req-1", ch)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGenerationEvent(t *testing.T) {
	ok := GenerationEvent(model.GenerationRequest{ID: "r1", Status: model.StatusCompleted})
	assert.Equal(t, TypeGenerationCompleted, ok.Type)
	assert.Equal(t, "r1", ok.Data["request_id"])
	assert.NotContains(t, ok.Data, "error_code")

	failed := GenerationEvent(model.GenerationRequest{ID: "r2", Status: model.StatusFailed, ErrorCode: "E1", ErrorMessage: "boom"})
	assert.Equal(t, TypeGenerationFailed, failed.Type)
	assert.Equal(t, "E1", failed.Data["error_code"])
}
