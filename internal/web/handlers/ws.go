package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsUpgrader accepts any origin; the CORS and token middleware guard the route.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// WS handles GET /api/kiosk/ws. It streams the same events as Events, each
// as a JSON text message, starting with a snapshot.
func (h *KioskHandler) WS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	eventCh := h.AddListener()
	closed := make(chan struct{})
	go h.readPump(conn, closed)

	h.writePump(conn, eventCh, closed)
	h.RemoveListener(eventCh)
	h.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
}

// readPump discards client messages and closes closed once the peer goes away.
func (h *KioskHandler) readPump(conn *websocket.Conn, closed chan struct{}) {
	defer close(closed)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *KioskHandler) writePump(conn *websocket.Conn, eventCh chan KioskEvent, closed chan struct{}) {
	defer conn.Close()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	if err := writeEvent(conn, KioskEvent{Type: EventSnapshot, Data: h.Snapshot()}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-h.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event KioskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
