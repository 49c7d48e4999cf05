// Package callbacks applies generation results reported by the orchestration
// service.
package callbacks

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"influencegen/internal/events"
	"influencegen/internal/log"
	"influencegen/internal/metrics"
	"influencegen/internal/model"
	"influencegen/internal/store"
)

// ErrInvalidResult wraps payload validation failures.
var ErrInvalidResult = errors.New("invalid generation result")

const (
	auditEventType   = "ai.generation.result"
	auditTargetModel = "generation_request"
)

type Processor struct {
	store  store.Store
	broker events.Broker
	logger zerolog.Logger
}

// NewProcessor returns a Processor. broker may be nil.
func NewProcessor(s store.Store, b events.Broker) *Processor {
	return &Processor{store: s, broker: b, logger: log.WithComponent("callbacks")}
}

// Process validates res, applies it to its generation request, records an
// audit entry and notifies subscribers of the request.
func (p *Processor) Process(ctx context.Context, res model.GenerationResult, origin model.Origin) (model.GenerationRequest, error) {
	logger := p.logger.With().Str(log.FieldRequestID, res.RequestID).Logger()

	if err := res.Validate(); err != nil {
		metrics.CallbackResults.WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Msg("rejecting invalid generation result")
		p.audit(ctx, res, origin, model.OutcomeFailure, map[string]any{"error": err.Error()})
		return model.GenerationRequest{}, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	req, err := p.store.ApplyGenerationResult(ctx, res)
	if err != nil {
		label := "error"
		switch {
		case errors.Is(err, store.ErrNotFound):
			label = "unknown_request"
		case errors.Is(err, store.ErrAlreadyFinal):
			label = "duplicate"
		}
		metrics.CallbackResults.WithLabelValues(label).Inc()
		logger.Warn().Err(err).Msg("generation result not applied")
		p.audit(ctx, res, origin, model.OutcomeFailure, map[string]any{"error": err.Error()})
		return req, fmt.Errorf("apply result %s: %w", res.RequestID, err)
	}

	metrics.CallbackResults.WithLabelValues(res.Status).Inc()
	details := map[string]any{"status": req.Status, "images": len(req.Images)}
	if req.N8NExecutionID != "" {
		details["n8n_execution_id"] = req.N8NExecutionID
	}
	if req.ErrorCode != "" {
		details["error_code"] = req.ErrorCode
	}
	p.audit(ctx, res, origin, model.OutcomeSuccess, details)
	p.publish(req)

	logger.Info().Str("status", req.Status).Int("images", len(req.Images)).Msg("generation result applied")
	return req, nil
}

func (p *Processor) audit(ctx context.Context, res model.GenerationResult, origin model.Origin, outcome string, details map[string]any) {
	entry := model.AuditEntry{
		Actor:       origin.Actor,
		EventType:   auditEventType,
		TargetModel: auditTargetModel,
		TargetID:    res.RequestID,
		Action:      "apply_result",
		Outcome:     outcome,
		Details:     details,
		IPAddress:   origin.IPAddress,
	}
	if _, err := p.store.AppendAudit(ctx, entry); err != nil {
		p.logger.Error().Err(err).Str(log.FieldRequestID, res.RequestID).Msg("append audit entry")
	}
}

func (p *Processor) publish(req model.GenerationRequest) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(req.ID, events.GenerationEvent(req))
}
