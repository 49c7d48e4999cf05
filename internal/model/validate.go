package model

import (
	"errors"
	"fmt"
	"strings"
)

// Generation defaults.
const (
	DefaultResolution     = "1024x1024"
	DefaultAspectRatio    = "1:1"
	DefaultInferenceSteps = 20
	DefaultCFGScale       = 7.5
)

// ApplyDefaults fills unset optional generation parameters.
func (p *GenerationParams) ApplyDefaults() {
	if p.Resolution == "" {
		p.Resolution = DefaultResolution
	}
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if p.InferenceSteps == 0 {
		p.InferenceSteps = DefaultInferenceSteps
	}
	if p.CFGScale == 0 {
		p.CFGScale = DefaultCFGScale
	}
}

// Validate checks generation parameters after defaults are applied.
func (p GenerationParams) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if p.InfluencerProfileID <= 0 {
		return errors.New("influencer_profile_id must be > 0")
	}
	if p.InferenceSteps < 1 || p.InferenceSteps > 150 {
		return fmt.Errorf("inference_steps must be in 1..150, got %d", p.InferenceSteps)
	}
	if p.CFGScale <= 0 || p.CFGScale > 30 {
		return fmt.Errorf("cfg_scale must be in (0, 30], got %v", p.CFGScale)
	}
	var w, h int
	if _, err := fmt.Sscanf(p.Resolution, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return fmt.Errorf("invalid resolution: %s", p.Resolution)
	}
	return nil
}

// Validate checks a callback result.
func (r GenerationResult) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" || strings.TrimSpace(r.Status) == "" {
		return errors.New("missing required fields in payload (request_id, status)")
	}
	switch r.Status {
	case ResultSuccess:
		if len(r.Images) == 0 {
			return errors.New("success result must include at least one image")
		}
		for i, img := range r.Images {
			if img.ImageURL == "" && img.ImageDataB64 == "" {
				return fmt.Errorf("images[%d]: image_url or image_data_b64 is required", i)
			}
		}
	case ResultFailure:
	default:
		return fmt.Errorf("invalid status: %s (allowed: success, failure)", r.Status)
	}
	return nil
}
