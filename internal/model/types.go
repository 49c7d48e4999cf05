// Package model holds the data exchanged with the orchestration service and
// stored by the platform.
package model

import "time"

// Generation request lifecycle.
const (
	StatusQueued     = "queued"
	StatusDispatched = "dispatched"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Result statuses reported by the orchestration service.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// GenerationParams are the inputs sent to the AI image workflow.
type GenerationParams struct {
	Prompt              string         `json:"prompt"`
	NegativePrompt      string         `json:"negative_prompt,omitempty"`
	// UserID is the authenticated subject that created the request.
	UserID              string         `json:"user_id,omitempty"`
	InfluencerProfileID int64          `json:"influencer_profile_id"`
	ModelID             string         `json:"model_id,omitempty"`
	Resolution          string         `json:"resolution"`
	AspectRatio         string         `json:"aspect_ratio"`
	Seed                *int64         `json:"seed,omitempty"`
	InferenceSteps      int            `json:"inference_steps"`
	CFGScale            float64        `json:"cfg_scale"`
	CampaignID          *int64         `json:"campaign_id,omitempty"`
	CustomParams        map[string]any `json:"custom_params,omitempty"`
}

// GenerationRequest is a stored AI image generation request.
type GenerationRequest struct {
	ID string `json:"request_id"`
	GenerationParams
	Status         string           `json:"status"`
	Images         []GeneratedImage `json:"images,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	ErrorCode      string           `json:"error_code,omitempty"`
	N8NExecutionID string           `json:"n8n_execution_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Final reports whether the request has reached a terminal status.
func (r GenerationRequest) Final() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// DispatchPayload is the body posted to the orchestration webhook.
type DispatchPayload struct {
	RequestID string `json:"request_id"`
	GenerationParams
}

// GeneratedImage describes one image returned by the workflow.
type GeneratedImage struct {
	ImageURL     string         `json:"image_url,omitempty"`
	ImageDataB64 string         `json:"image_data_b64,omitempty"`
	Filename     string         `json:"filename,omitempty"`
	ContentType  string         `json:"content_type,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// GenerationResult is the callback body sent by the orchestration service.
type GenerationResult struct {
	RequestID      string           `json:"request_id"`
	Status         string           `json:"status"`
	Images         []GeneratedImage `json:"images,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	ErrorCode      string           `json:"error_code,omitempty"`
	N8NExecutionID string           `json:"n8n_execution_id,omitempty"`
}

// Origin identifies who triggered a change, for audit purposes.
type Origin struct {
	Actor     string
	IPAddress string
}

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEntry records a significant system event or user action.
type AuditEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Actor       string         `json:"actor,omitempty"`
	EventType   string         `json:"event_type"`
	TargetModel string         `json:"target_model,omitempty"`
	TargetID    string         `json:"target_id,omitempty"`
	Action      string         `json:"action"`
	Outcome     string         `json:"outcome"`
	Details     map[string]any `json:"details,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
}
