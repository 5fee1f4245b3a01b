// Package notify pushes "data changed" signals to open browser tabs over
// a websocket so they can re-request their view.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/olahol/melody"
)

// EventExpensesChanged is the only event type sent to browsers.
const EventExpensesChanged = "expenses:changed"

type event struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`
	At   string `json:"at"`
}

type Hub struct {
	m      *melody.Melody
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	m := melody.New()
	m.Config.MaxMessageSize = 512 // browsers never send anything useful
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &Hub{m: m, logger: logger}

	m.HandleConnect(func(s *melody.Session) {
		id := uuid.NewString()
		s.Set("session_id", id)
		h.logger.Debug("Websocket client connected", "session_id", id, "clients", m.Len())
	})
	m.HandleDisconnect(func(s *melody.Session) {
		id, _ := s.Get("session_id")
		h.logger.Debug("Websocket client disconnected", "session_id", id)
	})
	m.HandleError(func(s *melody.Session, err error) {
		h.logger.Debug("Websocket error", "error", err)
	})

	return h
}

// ServeHTTP upgrades the request to a websocket session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.m.HandleRequest(w, r); err != nil {
		h.logger.Warn("Failed to upgrade websocket", "error", err)
	}
}

// BroadcastChange tells every connected tab that the expense data changed.
func (h *Hub) BroadcastChange(kind string) error {
	if h.m.IsClosed() {
		return nil
	}
	msg, err := json.Marshal(event{
		Type: EventExpensesChanged,
		Kind: kind,
		At:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return h.m.Broadcast(msg)
}

// Clients is the number of connected sessions.
func (h *Hub) Clients() int { return h.m.Len() }

func (h *Hub) Close() error {
	if h.m.IsClosed() {
		return nil
	}
	return h.m.Close()
}
