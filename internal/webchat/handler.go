// Package webchat serves the browser chat widget over WebSocket, driving
// the conversation service directly.
package webchat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bookwell/booking-assistant/internal/conversation"
	"github.com/bookwell/booking-assistant/pkg/logging"
)

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type        string   `json:"type"` // "message", "session", "pong", "error"
	Text        string   `json:"text,omitempty"`
	Role        string   `json:"role,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// Handler manages web chat connections.
type Handler struct {
	service *conversation.Service
	logger  *logging.Logger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn // sessionID -> active connection
}

func NewHandler(service *conversation.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		conns:   make(map[string]*websocket.Conn),
	}
}

// HandleWebSocket upgrades to WebSocket and relays chat turns.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		resp, err := h.service.StartSession(ctx)
		if err != nil {
			h.logger.Error("webchat: start session failed", "error", err)
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "could not start conversation"})
			return
		}
		sessionID = resp.SessionID
		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:      "session",
			SessionID: sessionID,
			Stage:     string(resp.Stage),
		})
		h.sendTurn(conn, resp)
	}

	h.register(sessionID, conn)
	defer h.unregister(sessionID)

	for {
		var in InboundMessage
		if err := websocket.JSON.Receive(conn, &in); err != nil {
			return
		}
		switch in.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "message":
			h.handleMessage(ctx, conn, sessionID, in.Text)
		default:
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "unknown message type"})
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID, text string) {
	if text == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "empty message"})
		return
	}
	resp, err := h.service.HandleMessage(ctx, sessionID, text)
	if err != nil {
		h.logger.Error("webchat: message failed", "error", err, "session_id", sessionID)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "could not process message"})
		return
	}
	h.sendTurn(conn, resp)
}

func (h *Handler) sendTurn(conn *websocket.Conn, resp *conversation.TurnResponse) {
	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:        "message",
		Role:        conversation.RoleAssistant,
		Text:        resp.Reply,
		SessionID:   resp.SessionID,
		Stage:       string(resp.Stage),
		Suggestions: resp.Suggestions,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) register(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[sessionID]; ok {
		old.Close()
	}
	h.conns[sessionID] = conn
}

func (h *Handler) unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, sessionID)
}

// ActiveConnections reports how many widgets are connected.
func (h *Handler) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
