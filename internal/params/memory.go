package params

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used when no database is configured.
type Memory struct {
	mu     sync.RWMutex
	values map[string]Param
}

func NewMemory() *Memory {
	return &Memory{values: map[string]Param{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.values[key]
	return p.Value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = Param{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]Param, error) {
	m.mu.RLock()
	out := make([]Param, 0, len(m.values))
	for _, p := range m.values {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
