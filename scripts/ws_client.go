// Package main runs a local round trip against the gateway: it plays the N8N
// side (receives the dispatch, posts a signed result back) while watching the
// request's WebSocket stream.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"influencegen/internal/log"
	"influencegen/internal/model"
	"influencegen/internal/webhooks"
)

const (
	adminToken    = "dev:admin"
	outboundToken = "dev-outbound-token"
)

func main() {
	logger := log.WithComponent("ws_client")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := "http://localhost:" + port
	secret := os.Getenv("CALLBACK_TOKEN")
	if secret == "" {
		secret = "dev-callback-secret"
	}

	// Fake N8N webhook: answers the dispatch, then posts the result back.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}
	go func() {
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			if !webhooks.VerifyHMAC(outboundToken, raw, r.Header.Get(webhooks.SignatureHeader)) {
				logger.Warn().Msg("N8N <- dispatch with bad signature")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var p model.DispatchPayload
			_ = json.Unmarshal(raw, &p)
			logger.Info().Str("request_id", p.RequestID).Str("prompt", p.Prompt).Msg("N8N <- dispatch")
			w.WriteHeader(http.StatusOK)
			go postResult(base, secret, p.RequestID)
		}))
	}()

	for key, value := range map[string]string{
		"influence_gen.callback_auth_token": secret,
		"influence_gen.n8n_ai_webhook_url":  "http://" + ln.Addr().String() + "/webhook/ai",
		"influence_gen.n8n_ai_auth_token":   outboundToken,
	} {
		body, _ := json.Marshal(map[string]string{"value": value})
		if _, err := call(http.MethodPut, base+"/v1/admin/params/"+key, body); err != nil {
			logger.Fatal().Err(err).Str("param", key).Msg("configure")
		}
	}

	body := []byte(`{"prompt":"golden hour portrait on a rooftop","influencer_profile_id":1}`)
	raw, err := call(http.MethodPost, base+"/v1/ai/generation-requests", body)
	if err != nil {
		logger.Fatal().Err(err).Msg("create generation request")
	}
	var created struct {
		Request model.GenerationRequest `json:"request"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		logger.Fatal().Err(err).Msg("decode")
	}
	id := created.Request.ID
	logger.Info().Str("request_id", id).Msg("generation request created")

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ai/generation-requests/" + id + "/ws", RawQuery: "access_token=" + adminToken}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer func() { _ = c.Close() }()

	_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			logger.Info().Err(err).Msg("stream closed")
			return
		}
		logger.Info().RawJSON("event", msg).Msg("WS <-")
	}
}

func postResult(base, secret, requestID string) {
	time.Sleep(500 * time.Millisecond)
	body, _ := json.Marshal(model.GenerationResult{
		RequestID:      requestID,
		Status:         model.ResultSuccess,
		Images:         []model.GeneratedImage{{ImageURL: "https://example.com/generated/" + requestID + ".png"}},
		N8NExecutionID: "sim-" + requestID[:8],
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/influence_gen/n8n/ai_callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-N8N-Signature", secret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		l := log.WithComponent("ws_client")
		l.Error().Err(err).Msg("post result")
		return
	}
	_ = resp.Body.Close()
}

func call(method, u string, body []byte) ([]byte, error) {
	req, _ := http.NewRequest(method, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: %d %s", method, u, resp.StatusCode, raw)
	}
	return raw, nil
}
