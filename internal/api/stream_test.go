package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencegen/internal/events"
	"influencegen/internal/model"
)

func dialStream(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ai/generation-requests/" + id + "/ws?access_token=" + userToken
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
	})
	return conn
}

func TestGenerationStream_DeliversResult(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()
	req := e.newRequest(t)

	// The handler subscribes before upgrading, so a result applied right
	// after the dial returns is still delivered.
	conn := dialStream(t, srv, req.ID)
	_, err := e.srv.Processor.Process(context.Background(), model.GenerationResult{
		RequestID: req.ID,
		Status:    model.ResultSuccess,
		Images:    []model.GeneratedImage{{ImageURL: "https://cdn/x.png"}},
	}, model.Origin{Actor: "test"})
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var evt events.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, events.TypeGenerationCompleted, evt.Type)
	assert.Equal(t, req.ID, evt.Data["request_id"])

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestGenerationStream_AlreadyFinal(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()
	req := e.newRequest(t)
	_, err := e.store.ApplyGenerationResult(context.Background(), model.GenerationResult{RequestID: req.ID, Status: model.ResultFailure, ErrorCode: "E9"})
	require.NoError(t, err)

	conn := dialStream(t, srv, req.ID)
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var evt events.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, events.TypeGenerationFailed, evt.Type)
	assert.Equal(t, "E9", evt.Data["error_code"])
}

func TestGenerationStream_NotFound(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/v1/ai/generation-requests/missing/ws", userToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
