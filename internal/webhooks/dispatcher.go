// Package webhooks delivers generation requests to the orchestration service
// through a persistent, retried outbound queue.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"influencegen/internal/log"
	"influencegen/internal/model"
	"influencegen/internal/params"
	"influencegen/internal/store"
)

// EventGenerationRequested is the event type of queued generation dispatches.
const EventGenerationRequested = "ai.generation.requested"

// ErrNotConfigured is returned when the webhook URL or its auth token is unset.
var ErrNotConfigured = errors.New("n8n webhook url or auth token not configured")

type Dispatcher struct {
	store     store.Store
	params    params.Reader
	namespace string
	logger    zerolog.Logger
}

func NewDispatcher(s store.Store, p params.Reader, namespace string) *Dispatcher {
	return &Dispatcher{store: s, params: p, namespace: namespace, logger: log.WithComponent("dispatcher")}
}

// Dispatch queues req for delivery and returns the delivery id. Dispatching
// the same request twice yields the same delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.GenerationRequest) (string, error) {
	url, err := d.param(ctx, params.N8NWebhookURL)
	if err != nil {
		return "", err
	}
	if _, err := d.param(ctx, params.N8NAuthToken); err != nil {
		return "", err
	}
	body, err := json.Marshal(model.DispatchPayload{RequestID: req.ID, GenerationParams: req.GenerationParams})
	if err != nil {
		return "", fmt.Errorf("marshal dispatch payload: %w", err)
	}
	id, err := d.store.EnqueueDelivery(ctx, EventGenerationRequested, url, req.ID, body)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery: %w", err)
	}
	d.logger.Info().Str(log.FieldRequestID, req.ID).Str(log.FieldDelivery, id).Msg("generation request queued for dispatch")
	return id, nil
}

func (d *Dispatcher) param(ctx context.Context, name string) (string, error) {
	key := params.Key(d.namespace, name)
	v, ok, err := d.params.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || v == "" {
		d.logger.Error().Str(log.FieldParam, key).Msg("dispatch parameter not configured")
		return "", ErrNotConfigured
	}
	return v, nil
}
