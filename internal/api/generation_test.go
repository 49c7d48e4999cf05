package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencegen/internal/model"
	"influencegen/internal/params"
	"influencegen/internal/store"
)

func configureN8N(t *testing.T, e *testEnv) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.params.Set(ctx, params.Key("influence_gen", params.N8NWebhookURL), "http://n8n.local/webhook/ai"))
	require.NoError(t, e.params.Set(ctx, params.Key("influence_gen", params.N8NAuthToken), "outbound-token"))
}

func TestCreateGeneration_QueuesDispatch(t *testing.T) {
	e := newTestEnv(t)
	configureN8N(t, e)

	rr := e.do(t, http.MethodPost, "/v1/ai/generation-requests", userToken, map[string]any{
		"prompt":                "a sunny beach",
		"influencer_profile_id": 5,
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	body := decode[struct {
		Request    model.GenerationRequest `json:"request"`
		DeliveryID string                  `json:"deliveryId"`
	}](t, rr)
	assert.Equal(t, model.StatusQueued, body.Request.Status)
	assert.Equal(t, "1024x1024", body.Request.Resolution)
	assert.Equal(t, 20, body.Request.InferenceSteps)
	assert.NotEmpty(t, body.DeliveryID)
	assert.Equal(t, "bob", body.Request.UserID)

	pending, _, _ := e.store.ListDeliveries(context.Background(), store.DeliveryPending, "", 10)
	require.Len(t, pending, 1)
	assert.Equal(t, "http://n8n.local/webhook/ai", pending[0].URL)
	assert.Equal(t, body.Request.ID, pending[0].DedupKey)

	audit, _, _ := e.store.ListAudit(context.Background(), "ai.generation.requested", "", 10)
	require.Len(t, audit, 1)
	assert.Equal(t, "bob", audit[0].Actor)
}

func TestCreateGeneration_UserIDComesFromPrincipal(t *testing.T) {
	e := newTestEnv(t)
	configureN8N(t, e)

	rr := e.do(t, http.MethodPost, "/v1/ai/generation-requests", userToken, map[string]any{
		"prompt":                "a sunny beach",
		"influencer_profile_id": 5,
		"user_id":               "mallory",
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	body := decode[struct {
		Request model.GenerationRequest `json:"request"`
	}](t, rr)
	assert.Equal(t, "bob", body.Request.UserID)

	stored, err := e.store.GetGenerationRequest(context.Background(), body.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", stored.UserID)
}

func TestCreateGeneration_Validation(t *testing.T) {
	e := newTestEnv(t)
	configureN8N(t, e)

	rr := e.do(t, http.MethodPost, "/v1/ai/generation-requests", userToken, map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/v1/ai/generation-requests", userToken, map[string]any{"prompt": "x", "influencer_profile_id": 1, "inference_steps": 500})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/v1/ai/generation-requests", userToken, "not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateGeneration_NotConfigured(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/v1/ai/generation-requests", userToken, map[string]any{
		"prompt":                "a sunny beach",
		"influencer_profile_id": 5,
	})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	items, _, _ := e.store.ListGenerationRequests(context.Background(), 5, "", 10)
	require.Len(t, items, 1)
	assert.Equal(t, model.StatusFailed, items[0].Status)
	assert.Equal(t, errorCodeNotConfigured, items[0].ErrorCode)
}

func TestGetAndListGenerations(t *testing.T) {
	e := newTestEnv(t)
	a := e.newRequest(t)
	p := model.GenerationParams{Prompt: "other", InfluencerProfileID: 99}
	p.ApplyDefaults()
	_, err := e.store.CreateGenerationRequest(context.Background(), p)
	require.NoError(t, err)

	rr := e.do(t, http.MethodGet, "/v1/ai/generation-requests/"+a.ID, userToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, a.ID, decode[model.GenerationRequest](t, rr).ID)

	rr = e.do(t, http.MethodGet, "/v1/ai/generation-requests/missing", userToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodGet, "/v1/ai/generation-requests?influencer_profile_id=99", userToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[struct {
		Items []model.GenerationRequest `json:"items"`
	}](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(99), page.Items[0].InfluencerProfileID)

	rr = e.do(t, http.MethodGet, "/v1/ai/generation-requests?influencer_profile_id=abc", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
