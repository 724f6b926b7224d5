package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, origins)
		},
	}
}

// originAllowed applies the CORS allowlist to websocket handshakes. Requests
// without an Origin header come from non-browser clients and pass. With an
// empty allowlist only same-host origins are accepted.
func originAllowed(r *http.Request, origins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(origins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, o := range origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	slog.Warn("websocket origin rejected", "origin", origin)
	return false
}

// handleExamSocket pushes a view after every session event. Clients may send
// commands as JSON objects with an action field.
func (h *Handler) handleExamSocket(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	views, unsubscribe := runner.Subscribe()
	closed := make(chan struct{})
	slog.Debug("websocket connected", "session", runner.ID())

	go func() {
		defer close(closed)
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					slog.Warn("websocket read failed", "session", runner.ID(), "error", err)
				}
				return
			}
			var cmd commandRequest
			if err := json.Unmarshal(msg, &cmd); err != nil {
				slog.Debug("ignoring malformed websocket command", "session", runner.ID(), "error", err)
				continue
			}
			if _, err := apply(r.Context(), runner, cmd); err != nil {
				slog.Debug("websocket command rejected", "session", runner.ID(), "action", cmd.Action, "error", err)
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
		slog.Debug("websocket disconnected", "session", runner.ID())
	}()

	for {
		select {
		case v, ok := <-views:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"))
				return
			}
			if err := conn.WriteJSON(respond(r.Context(), v)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
