package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framecraft/studio/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// wsMessage is one frame sent to a socket client.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	At   string `json:"at"`
}

func newUpgrader(cfg ServerConfig) websocket.Upgrader {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || isAllowedOrigin(origin, allowed)
		},
	}
}

// sessionSocket streams the session's state: a full snapshot on connect,
// then every workflow and timeline change until either side closes.
func sessionSocket(cfg ServerConfig) sessionHandler {
	upgrader := newUpgrader(cfg)
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		logger := sessionLogger(cfg, s)

		events, cancel := s.Subscribe()
		defer cancel()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadLimit(4096)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(msg wsMessage) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return false
			}
			return true
		}

		if !send(wsMessage{Type: "snapshot", Data: s.Snapshot(), At: time.Now().UTC().Format(time.RFC3339Nano)}) {
			return
		}
		logger.Info("websocket client connected")

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
						time.Now().Add(wsWriteWait))
					return
				}
				if !send(wsMessage{Type: string(ev.Type), Data: ev.Data, At: ev.At.UTC().Format(time.RFC3339Nano)}) {
					return
				}
				if ev.Type == session.EventClosed {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
						time.Now().Add(wsWriteWait))
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-done:
				logger.Info("websocket client disconnected")
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}
