// Package stream exposes a query's per-shard coverage progress over a
// websocket connection, for operator tooling that wants to watch a
// dispatch fan out in real time rather than waiting for the final
// merged reply.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ProgressEvent is one update pushed to a connected client as a dispatch
// progresses.
type ProgressEvent struct {
	Responded int       `json:"responded"`
	Total     int       `json:"total"`
	Docs      int       `json:"docs"`
	Active    int       `json:"active"`
	Degraded  []string  `json:"degraded,omitempty"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dispatch progress streaming is an internal operator tool served
	// alongside the rest of the serving API, not a public browser
	// endpoint, so same-origin checks are not required here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades a request to a websocket and relays ProgressEvents
// from the channel passed to ServeProgress.
type Handler struct {
	logger *slog.Logger
}

// NewHandler builds a Handler. A nil logger uses slog's default.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// ServeProgress upgrades the connection and streams events until the
// channel closes, an event with Final set has been written, or the
// client goes away.
func (h *Handler) ServeProgress(w http.ResponseWriter, r *http.Request, events <-chan ProgressEvent) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("dispatch stream: upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("dispatch stream: write failed, closing", "err", err)
				return
			}
			if ev.Final {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// marshalForLog is a small helper kept separate from WriteJSON so tests
// can assert on the exact wire shape without standing up a websocket.
func marshalForLog(ev ProgressEvent) ([]byte, error) {
	return json.Marshal(ev)
}
