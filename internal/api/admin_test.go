package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencegen/internal/model"
	"influencegen/internal/params"
)

func TestAdmin_RequiresAdminRole(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/v1/admin/params", "/v1/admin/audit", "/v1/admin/deliveries"} {
		assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, path, userToken, nil).Code, path)
		assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, path, adminToken, nil).Code, path)
	}
}

func TestAdmin_ParamLifecycle(t *testing.T) {
	e := newTestEnv(t)
	key := params.Key("influence_gen", params.N8NWebhookURL)
	path := "/v1/admin/params/" + key

	rr := e.do(t, http.MethodGet, path, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodPut, path, adminToken, map[string]string{"value": "http://n8n/hook"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodGet, path, adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://n8n/hook", decode[params.Param](t, rr).Value, "non-secret values are shown")

	rr = e.do(t, http.MethodDelete, path, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	v, ok, err := e.params.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok, "got %q", v)
}

func TestAdmin_SecretsAreMaskedAndNotAudited(t *testing.T) {
	e := newTestEnv(t)
	key := params.Key("influence_gen", params.CallbackAuthToken)

	rr := e.do(t, http.MethodPut, "/v1/admin/params/"+key, adminToken, map[string]string{"value": "rotated-secret"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "rotated-secret")

	rr = e.do(t, http.MethodGet, "/v1/admin/params", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "rotated-secret")
	assert.Contains(t, rr.Body.String(), key)

	rr = e.do(t, http.MethodGet, "/v1/admin/audit?event_type="+auditEventParam, adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "rotated-secret")
	page := decode[struct {
		Items []model.AuditEntry `json:"items"`
	}](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "alice", page.Items[0].Actor)
	assert.Equal(t, "set", page.Items[0].Action)
	assert.Equal(t, key, page.Items[0].TargetID)
}

func TestAdmin_InvalidParam(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPut, "/v1/admin/params/%20", adminToken, map[string]string{"value": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPut, "/v1/admin/params/some.key", adminToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	audit, _, _ := e.store.ListAudit(context.Background(), auditEventParam, "", 10)
	require.Len(t, audit, 1)
	assert.Equal(t, model.OutcomeFailure, audit[0].Outcome)
}
