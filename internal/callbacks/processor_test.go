package callbacks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencegen/internal/events"
	"influencegen/internal/model"
	"influencegen/internal/store"
)

func setup(t *testing.T) (*Processor, *store.Memory, *events.Memory, model.GenerationRequest) {
	t.Helper()
	st := store.NewMemory()
	br := events.NewMemory()
	p := model.GenerationParams{Prompt: "portrait", InfluencerProfileID: 3}
	p.ApplyDefaults()
	req, err := st.CreateGenerationRequest(context.Background(), p)
	require.NoError(t, err)
	return NewProcessor(st, br), st, br, req
}

var origin = model.Origin{Actor: "n8n", IPAddress: "10.0.0.9"}

func TestProcess_Success(t *testing.T) {
	proc, st, br, req := setup(t)
	sub := br.Subscribe(req.ID)
	defer br.Unsubscribe(req.ID, sub)

	got, err := proc.Process(context.Background(), model.GenerationResult{
		RequestID:      req.ID,
		Status:         model.ResultSuccess,
		Images:         []model.GeneratedImage{{ImageURL: "https://cdn/1.png"}, {ImageDataB64: "aGVsbG8="}},
		N8NExecutionID: "exec-1",
	}, origin)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	select {
	case evt := <-sub:
		assert.Equal(t, events.TypeGenerationCompleted, evt.Type)
		assert.Equal(t, req.ID, evt.Data["request_id"])
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	audit, _, err := st.ListAudit(context.Background(), "", "", 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, model.OutcomeSuccess, audit[0].Outcome)
	assert.Equal(t, "n8n", audit[0].Actor)
	assert.Equal(t, "10.0.0.9", audit[0].IPAddress)
	assert.Equal(t, req.ID, audit[0].TargetID)
	assert.Equal(t, 2, audit[0].Details["images"])
}

func TestProcess_FailurePublishesFailedEvent(t *testing.T) {
	proc, _, br, req := setup(t)
	sub := br.Subscribe(req.ID)
	defer br.Unsubscribe(req.ID, sub)

	got, err := proc.Process(context.Background(), model.GenerationResult{
		RequestID:    req.ID,
		Status:       model.ResultFailure,
		ErrorMessage: "model crashed",
		ErrorCode:    "E500",
	}, origin)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)

	evt := <-sub
	assert.Equal(t, events.TypeGenerationFailed, evt.Type)
	assert.Equal(t, "E500", evt.Data["error_code"])
}

func TestProcess_Errors(t *testing.T) {
	tests := []struct {
		name string
		res  func(id string) model.GenerationResult
		want error
	}{
		{"missing fields", func(string) model.GenerationResult { return model.GenerationResult{} }, ErrInvalidResult},
		{"bad status", func(id string) model.GenerationResult {
			return model.GenerationResult{RequestID: id, Status: "done"}
		}, ErrInvalidResult},
		{"success without images", func(id string) model.GenerationResult {
			return model.GenerationResult{RequestID: id, Status: model.ResultSuccess}
		}, ErrInvalidResult},
		{"unknown request", func(string) model.GenerationResult {
			return model.GenerationResult{RequestID: "missing", Status: model.ResultFailure}
		}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, st, _, req := setup(t)
			_, err := proc.Process(context.Background(), tt.res(req.ID), origin)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			audit, _, _ := st.ListAudit(context.Background(), "", "", 10)
			require.Len(t, audit, 1)
			assert.Equal(t, model.OutcomeFailure, audit[0].Outcome)
		})
	}
}

func TestProcess_DuplicateResult(t *testing.T) {
	proc, _, _, req := setup(t)
	res := model.GenerationResult{RequestID: req.ID, Status: model.ResultFailure, ErrorMessage: "x"}
	_, err := proc.Process(context.Background(), res, origin)
	require.NoError(t, err)
	_, err = proc.Process(context.Background(), res, origin)
	assert.True(t, errors.Is(err, store.ErrAlreadyFinal))
}

func TestProcess_NilBroker(t *testing.T) {
	_, st, _, req := setup(t)
	proc := NewProcessor(st, nil)
	_, err := proc.Process(context.Background(), model.GenerationResult{RequestID: req.ID, Status: model.ResultFailure}, origin)
	assert.NoError(t, err)
}
