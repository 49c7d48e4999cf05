package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"influencegen/internal/buildinfo"
	"influencegen/internal/config"
	"influencegen/internal/log"
	"influencegen/internal/metrics"
	"influencegen/internal/model"
	"influencegen/internal/params"
	"influencegen/internal/store"
)

const (
	minBackoff = 2 * time.Second
	maxBackoff = 10 * time.Second

	// ErrorCodeDispatchFailed marks requests that never reached the orchestration service.
	ErrorCodeDispatchFailed = "dispatch_failed"
)

// ResultSink applies a generation result on behalf of the worker when a
// dispatch is abandoned.
type ResultSink interface {
	Process(ctx context.Context, res model.GenerationResult, origin model.Origin) (model.GenerationRequest, error)
}

type Worker struct {
	Store        store.Store
	Params       params.Reader
	Sink         ResultSink
	HTTP         *http.Client
	Namespace    string
	MaxAttempts  int
	PollInterval time.Duration
	BatchSize    int

	logger zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(s store.Store, p params.Reader, sink ResultSink, namespace string, cfg config.WebhookConfig) *Worker {
	return &Worker{
		Store:        s,
		Params:       p,
		Sink:         sink,
		HTTP:         &http.Client{Timeout: cfg.Timeout},
		Namespace:    namespace,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		logger:       log.WithComponent("webhooks"),
	}
}

// Start polls for due deliveries until Close is called.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	interval := w.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.processOnce(ctx)
			}
		}
	}()
}

// Close stops the poll loop and waits for the in-flight batch.
func (w *Worker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) processOnce(ctx context.Context) {
	items, err := w.Store.FetchDueDeliveries(ctx, w.BatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch due deliveries")
		return
	}
	for _, it := range items {
		if ctx.Err() != nil {
			return
		}
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.Delivery) {
	logger := w.logger.With().Str(log.FieldDelivery, it.ID).Str(log.FieldRequestID, it.DedupKey).Logger()

	start := time.Now()
	code, err := w.send(ctx, it)
	latency := int(time.Since(start).Milliseconds())

	if err == nil {
		w.observe(it.EventType, store.DeliveryDelivered, latency)
		if err := w.Store.MarkDelivery(ctx, it.ID, true, nil, "", code, latency); err != nil {
			logger.Error().Err(err).Msg("mark delivery delivered")
		}
		if it.EventType == EventGenerationRequested {
			if err := w.Store.MarkGenerationDispatched(ctx, it.DedupKey); err != nil {
				logger.Error().Err(err).Msg("mark generation request dispatched")
			}
		}
		logger.Info().Int("status", code).Int("latency_ms", latency).Msg("delivery succeeded")
		return
	}

	if ctx.Err() != nil {
		// Shutting down. The delivery stays due for the next process.
		logger.Info().Err(err).Msg("delivery interrupted by shutdown")
		return
	}

	if it.Attempts+1 >= w.MaxAttempts {
		w.observe(it.EventType, store.DeliveryFailed, latency)
		if ferr := w.Store.FailDelivery(ctx, it.ID, err.Error(), code, latency); ferr != nil {
			logger.Error().Err(ferr).Msg("mark delivery failed")
		}
		logger.Error().Err(err).Int("attempts", it.Attempts+1).Msg("delivery abandoned")
		w.abandon(ctx, it, err, logger)
		return
	}

	next := time.Now().Add(nextBackoff(it.Attempts))
	w.observe(it.EventType, store.DeliveryRetry, latency)
	if merr := w.Store.MarkDelivery(ctx, it.ID, false, &next, err.Error(), code, latency); merr != nil {
		logger.Error().Err(merr).Msg("schedule delivery retry")
	}
	logger.Warn().Err(err).Int("attempts", it.Attempts+1).Time("next_attempt_at", next).Msg("delivery failed, will retry")
}

// send posts the delivery. The bearer token is read per attempt so rotating
// it takes effect without a restart.
func (w *Worker) send(ctx context.Context, it store.Delivery) (int, error) {
	key := params.Key(w.Namespace, params.N8NAuthToken)
	token, ok, err := w.Params.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || token == "" {
		return 0, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SignatureHeader, SignHMAC(token, it.Payload))
	req.Header.Set(EventTypeHeader, it.EventType)

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// abandon records a failure result for a generation request that could not
// be dispatched.
func (w *Worker) abandon(ctx context.Context, it store.Delivery, cause error, logger zerolog.Logger) {
	if it.EventType != EventGenerationRequested || w.Sink == nil {
		return
	}
	res := model.GenerationResult{
		RequestID:    it.DedupKey,
		Status:       model.ResultFailure,
		ErrorMessage: fmt.Sprintf("dispatch failed after %d attempts: %v", it.Attempts+1, cause),
		ErrorCode:    ErrorCodeDispatchFailed,
	}
	if _, err := w.Sink.Process(ctx, res, model.Origin{Actor: "system:webhook-worker"}); err != nil && !errors.Is(err, store.ErrAlreadyFinal) {
		logger.Error().Err(err).Msg("record dispatch failure")
	}
}

func (w *Worker) observe(eventType, status string, latencyMs int) {
	metrics.WebhookDeliveries.WithLabelValues(eventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(eventType, status).Observe(float64(latencyMs))
}

// nextBackoff doubles from 2s and caps at 10s.
func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 8 {
		attempts = 8
	}
	d := minBackoff << attempts
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
