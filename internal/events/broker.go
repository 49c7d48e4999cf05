// Package events fans generation results out to live subscribers.
package events

import (
	"sync"

	"influencegen/internal/model"
)

// Event types published when a generation request reaches a final state.
const (
	TypeGenerationCompleted = "generation.completed"
	TypeGenerationFailed    = "generation.failed"
)

type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// GenerationEvent describes a generation request that reached a final state.
func GenerationEvent(req model.GenerationRequest) Event {
	evt := Event{
		Type: TypeGenerationCompleted,
		Data: map[string]any{"request_id": req.ID, "status": req.Status, "images": req.Images},
	}
	if req.Status == model.StatusFailed {
		evt.Type = TypeGenerationFailed
		evt.Data["error_message"] = req.ErrorMessage
		evt.Data["error_code"] = req.ErrorCode
	}
	return evt
}

// Broker delivers events published under a key (a request id) to every
// channel subscribed to that key.
type Broker interface {
	Subscribe(key string) chan Event
	Unsubscribe(key string, ch chan Event)
	Publish(key string, evt Event)
}

// Memory is a process-local Broker. Slow subscribers drop events rather
// than block publishers.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(key string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = map[chan Event]struct{}{}
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(key string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[key]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, key)
	}
	close(ch)
}

func (b *Memory) Publish(key string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[key] {
		select {
		case ch <- evt:
		default:
		}
	}
}
