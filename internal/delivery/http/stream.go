package http

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// StreamClientUpdates pushes queue positions, admissions and billing ticks for one client over a WebSocket.
func (h *HTTPHandler) StreamClientUpdates(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	ctx := h.logger.WithFields(r.Context(), "client_id", clientID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf(ctx, "delivery.http.StreamClientUpdates: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.bc.Subscribe(clientID)
	defer unsubscribe()

	h.logger.Debug(ctx, "Client stream connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)

		conn.SetReadLimit(4 << 10)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug(ctx, "Client stream closed by peer")
			return

		case u, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				h.logger.Debugf(ctx, "delivery.http.StreamClientUpdates: write: %v", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
