package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerationParams_DefaultsAndValidate(t *testing.T) {
	p := GenerationParams{Prompt: "a cat on a skateboard", InfluencerProfileID: 7}
	p.ApplyDefaults()
	assert.Equal(t, "1024x1024", p.Resolution)
	assert.Equal(t, "1:1", p.AspectRatio)
	assert.Equal(t, 20, p.InferenceSteps)
	assert.Equal(t, 7.5, p.CFGScale)
	assert.NoError(t, p.Validate())
}

func TestGenerationParams_Invalid(t *testing.T) {
	base := GenerationParams{Prompt: "x", InfluencerProfileID: 1}
	base.ApplyDefaults()

	cases := map[string]func(p *GenerationParams){
		"empty prompt":   func(p *GenerationParams) { p.Prompt = "  " },
		"no profile":     func(p *GenerationParams) { p.InfluencerProfileID = 0 },
		"steps too high": func(p *GenerationParams) { p.InferenceSteps = 151 },
		"cfg negative":   func(p *GenerationParams) { p.CFGScale = -1 },
		"bad resolution": func(p *GenerationParams) { p.Resolution = "big" },
	}
	for name, mutate := range cases {
		p := base
		mutate(&p)
		assert.Error(t, p.Validate(), name)
	}
}

func TestGenerationResult_Validate(t *testing.T) {
	ok := GenerationResult{RequestID: "r1", Status: ResultSuccess, Images: []GeneratedImage{{ImageURL: "https://cdn/x.png"}}}
	assert.NoError(t, ok.Validate())

	failure := GenerationResult{RequestID: "r1", Status: ResultFailure, ErrorMessage: "gpu oom"}
	assert.NoError(t, failure.Validate())

	assert.Error(t, GenerationResult{Status: ResultSuccess}.Validate())
	assert.Error(t, GenerationResult{RequestID: "r1"}.Validate())
	assert.Error(t, GenerationResult{RequestID: "r1", Status: "done"}.Validate())
	assert.Error(t, GenerationResult{RequestID: "r1", Status: ResultSuccess}.Validate())
	assert.Error(t, GenerationResult{RequestID: "r1", Status: ResultSuccess, Images: []GeneratedImage{{Filename: "x.png"}}}.Validate())
}

func TestGenerationRequest_Final(t *testing.T) {
	assert.False(t, GenerationRequest{Status: StatusQueued}.Final())
	assert.False(t, GenerationRequest{Status: StatusDispatched}.Final())
	assert.True(t, GenerationRequest{Status: StatusCompleted}.Final())
	assert.True(t, GenerationRequest{Status: StatusFailed}.Final())
}
