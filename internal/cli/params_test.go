package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencegen/internal/backend"
	"influencegen/internal/config"
	"influencegen/internal/params"
	"influencegen/internal/store"
)

type memBackends struct {
	store  *store.Memory
	params *params.Memory
	cfg    config.Config
}

func (m *memBackends) open(_ context.Context, cfg config.Config) (*backend.Backends, error) {
	m.cfg = cfg
	return &backend.Backends{Store: m.store, Params: m.params}, nil
}

func newMem() *memBackends {
	return &memBackends{store: store.NewMemory(), params: params.NewMemory()}
}

func run(t *testing.T, m *memBackends, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	root := NewRootCommand(m.open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSetGetQualifiesKeys(t *testing.T) {
	m := newMem()
	_, err := run(t, m, "set", params.N8NWebhookURL, "http://n8n/hook")
	require.NoError(t, err)

	v, ok, _ := m.params.Get(context.Background(), "influence_gen.n8n_ai_webhook_url")
	require.True(t, ok)
	assert.Equal(t, "http://n8n/hook", v)

	out, err := run(t, m, "get", "influence_gen.n8n_ai_webhook_url")
	require.NoError(t, err)
	assert.Equal(t, "http://n8n/hook\n", out)
}

func TestGetMasksSecretsUnlessRevealed(t *testing.T) {
	m := newMem()
	require.NoError(t, m.params.Set(context.Background(), "influence_gen.callback_auth_token", "s3cret"))

	out, err := run(t, m, "get", params.CallbackAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "***\n", out)

	out, err = run(t, m, "get", params.CallbackAuthToken, "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "s3cret\n", out)

	_, err = run(t, m, "get", "missing")
	assert.Error(t, err)
}

func TestListAndDelete(t *testing.T) {
	m := newMem()
	ctx := context.Background()
	require.NoError(t, m.params.Set(ctx, "influence_gen.callback_auth_token", "s3cret"))
	require.NoError(t, m.params.Set(ctx, "influence_gen.n8n_ai_webhook_url", "http://n8n"))

	out, err := run(t, m, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "influence_gen.n8n_ai_webhook_url")
	assert.Contains(t, out, "http://n8n")
	assert.NotContains(t, out, "s3cret")

	_, err = run(t, m, "rm", params.CallbackAuthToken)
	require.NoError(t, err)
	_, ok, _ := m.params.Get(ctx, "influence_gen.callback_auth_token")
	assert.False(t, ok)

	audit, _, _ := m.store.ListAudit(ctx, "system.param", "", 10)
	require.Len(t, audit, 1)
	assert.Equal(t, "delete", audit[0].Action)
	assert.True(t, strings.HasPrefix(audit[0].Actor, "paramctl"))
}

func TestRotateGeneratesFreshToken(t *testing.T) {
	m := newMem()
	out1, err := run(t, m, "rotate")
	require.NoError(t, err)
	out2, err := run(t, m, "rotate")
	require.NoError(t, err)

	t1, t2 := strings.TrimSpace(out1), strings.TrimSpace(out2)
	assert.Len(t, t1, 2*rotateTokenBytes)
	assert.NotEqual(t, t1, t2)

	v, _, _ := m.params.Get(context.Background(), "influence_gen.callback_auth_token")
	assert.Equal(t, t2, v)
}

func TestNamespaceFlag(t *testing.T) {
	m := newMem()
	_, err := run(t, m, "--namespace", "staging", "set", "callback_auth_token", "x")
	require.NoError(t, err)
	assert.Equal(t, "staging", m.cfg.Namespace)
	_, ok, _ := m.params.Get(context.Background(), "staging.callback_auth_token")
	assert.True(t, ok)
}

func TestSetRejectsInvalid(t *testing.T) {
	m := newMem()
	_, err := run(t, m, "set", "callback_auth_token", "\xff")
	assert.ErrorIs(t, err, params.ErrInvalidParam)
}
