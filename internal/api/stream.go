package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"influencegen/internal/events"
	"influencegen/internal/log"
	"influencegen/internal/store"
)

const (
	wsPingInterval = 20 * time.Second
	wsWriteWait    = 5 * time.Second
	wsReadWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// GenerationStreamHandler handles GET /v1/ai/generation-requests/{id}/ws. It
// sends the request's final result as a single event, then closes.
func (s *Server) GenerationStreamHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Subscribe before reading state so a result applied in between is not missed.
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	req, err := s.Store.GetGenerationRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get generation request failed", err.Error(), r.URL.Path)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	logger := s.logger.With().Str(log.FieldRequestID, id).Logger()

	write := func(evt events.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(evt)
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	if req.Final() {
		if err := write(events.GenerationEvent(req)); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
		}
		closeNormal()
		return
	}

	// The read loop only services control frames and notices disconnects.
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
			if evt.Type == events.TypeGenerationCompleted || evt.Type == events.TypeGenerationFailed {
				closeNormal()
				return
			}
		}
	}
}
