package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"influencegen/internal/model"
)

// Store is the persistence interface used by the API server and workers.
type Store interface {
	// AI image generation requests
	CreateGenerationRequest(ctx context.Context, p model.GenerationParams) (model.GenerationRequest, error)
	GetGenerationRequest(ctx context.Context, id string) (model.GenerationRequest, error)
	ListGenerationRequests(ctx context.Context, profileID int64, cursor string, limit int) ([]model.GenerationRequest, string, error)
	MarkGenerationDispatched(ctx context.Context, id string) error
	ApplyGenerationResult(ctx context.Context, res model.GenerationResult) (model.GenerationRequest, error)

	// Outbound webhook deliveries
	EnqueueDelivery(ctx context.Context, eventType, url, dedupKey string, payload []byte) (string, error)
	FetchDueDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListDeliveries(ctx context.Context, status, cursor string, limit int) ([]Delivery, string, error)

	// Audit log, newest first
	AppendAudit(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error)
	ListAudit(ctx context.Context, eventType, cursor string, limit int) ([]model.AuditEntry, string, error)
}

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFinal is returned when a result targets a request that already completed or failed.
	ErrAlreadyFinal = errors.New("generation request already final")
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

// trimPage cuts rows fetched with limit+1 back to limit. The cursor is the
// id of the last returned row, and empty when no further row exists.
func trimPage[T any](rows []T, limit int, id func(T) string) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, id(rows[limit-1])
}

// DedupKey derives a delivery dedup key from a JSON payload: its request_id
// when present, else a short content hash.
func DedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["request_id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

// resultStatus maps a callback result status to the request lifecycle status.
func resultStatus(res model.GenerationResult) string {
	if res.Status == model.ResultSuccess {
		return model.StatusCompleted
	}
	return model.StatusFailed
}
