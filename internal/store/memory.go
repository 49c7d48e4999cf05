package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"influencegen/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu sync.Mutex

	requests     map[string]model.GenerationRequest // id -> request
	requestOrder []string                           // creation order

	deliveries    map[string]*Delivery // id -> delivery state
	deliveryOrder []string

	audit []model.AuditEntry // append order; listed newest first
}

func NewMemory() *Memory {
	return &Memory{
		requests:   map[string]model.GenerationRequest{},
		deliveries: map[string]*Delivery{},
	}
}

func (m *Memory) CreateGenerationRequest(_ context.Context, p model.GenerationParams) (model.GenerationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	r := model.GenerationRequest{
		ID:               uuid.New().String(),
		GenerationParams: p,
		Status:           model.StatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.requests[r.ID] = r
	m.requestOrder = append(m.requestOrder, r.ID)
	return r, nil
}

func (m *Memory) GetGenerationRequest(_ context.Context, id string) (model.GenerationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return model.GenerationRequest{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListGenerationRequests(_ context.Context, profileID int64, cursor string, limit int) ([]model.GenerationRequest, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []model.GenerationRequest{}
	started := cursor == ""
	for _, id := range m.requestOrder {
		if !started {
			started = id == cursor
			continue
		}
		r := m.requests[id]
		if profileID > 0 && r.InfluencerProfileID != profileID {
			continue
		}
		if len(out) == limit {
			return out, out[limit-1].ID, nil
		}
		out = append(out, r)
	}
	return out, "", nil
}

func (m *Memory) MarkGenerationDispatched(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status == model.StatusQueued {
		r.Status = model.StatusDispatched
		r.UpdatedAt = time.Now().UTC()
		m.requests[id] = r
	}
	return nil
}

func (m *Memory) ApplyGenerationResult(_ context.Context, res model.GenerationResult) (model.GenerationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[res.RequestID]
	if !ok {
		return model.GenerationRequest{}, ErrNotFound
	}
	if r.Final() {
		return r, ErrAlreadyFinal
	}
	r.Status = resultStatus(res)
	r.Images = res.Images
	r.ErrorMessage = res.ErrorMessage
	r.ErrorCode = res.ErrorCode
	r.N8NExecutionID = res.N8NExecutionID
	r.UpdatedAt = time.Now().UTC()
	m.requests[r.ID] = r
	return r, nil
}

func (m *Memory) EnqueueDelivery(_ context.Context, eventType, url, dedupKey string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dedupKey == "" {
		dedupKey = DedupKey(payload)
	}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if d.EventType == eventType && d.URL == url && d.DedupKey == dedupKey {
			return d.ID, nil
		}
	}
	now := time.Now()
	d := &Delivery{
		ID:            uuid.New().String(),
		EventType:     eventType,
		URL:           url,
		DedupKey:      dedupKey,
		Payload:       payload,
		Status:        DeliveryPending,
		NextAttemptAt: now,
		CreatedAt:     now.UTC(),
	}
	m.deliveries[d.ID] = d
	m.deliveryOrder = append(m.deliveryOrder, d.ID)
	return d.ID, nil
}

func (m *Memory) FetchDueDeliveries(_ context.Context, limit int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []Delivery{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkDelivery(_ context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now().UTC()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailDelivery(_ context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListDeliveries(_ context.Context, status, cursor string, limit int) ([]Delivery, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []Delivery{}
	started := cursor == ""
	for _, id := range m.deliveryOrder {
		if !started {
			started = id == cursor
			continue
		}
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		if len(out) == limit {
			return out, out[limit-1].ID, nil
		}
		out = append(out, *d)
	}
	return out, "", nil
}

func (m *Memory) AppendAudit(_ context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = model.OutcomeSuccess
	}
	m.audit = append(m.audit, e)
	return e, nil
}

func (m *Memory) ListAudit(_ context.Context, eventType, cursor string, limit int) ([]model.AuditEntry, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []model.AuditEntry{}
	started := cursor == ""
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if !started {
			started = e.ID == cursor
			continue
		}
		if eventType != "" && e.EventType != eventType {
			continue
		}
		if len(out) == limit {
			return out, out[limit-1].ID, nil
		}
		out = append(out, e)
	}
	return out, "", nil
}
