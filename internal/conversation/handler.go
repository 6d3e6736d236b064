package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookwell/booking-assistant/pkg/logging"
)

// Handler exposes the conversation service over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type messageRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StartConversation handles POST /conversation/start.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.StartSession(r.Context())
	if err != nil {
		h.logger.Error("start session failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not start conversation"})
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// PostMessage handles POST /conversation/{sessionID}/message.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	resp, err := h.service.HandleMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		h.logger.Error("handle message failed", "error", err, "session_id", sessionID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not process message"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConversation handles GET /conversation/{sessionID}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.service.GetSession(r.Context(), sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		h.logger.Error("get session failed", "error", err, "session_id", sessionID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load conversation"})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// AvailableSlots handles GET /available-slots?date=YYYY-MM-DD&duration=30.
func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	date := time.Now().AddDate(0, 0, 1)
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	duration := 0
	if d := r.URL.Query().Get("duration"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "duration must be a whole number of minutes"})
			return
		}
		duration = parsed
	}

	slots, err := h.service.AvailableSlots(r.Context(), date, duration)
	if err != nil {
		h.logger.Error("list slots failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load availability"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format("2006-01-02"),
		"slots": slots,
	})
}

// AdminListSessions handles GET /admin/sessions.
func (h *Handler) AdminListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("list sessions failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not list sessions"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// AdminStatus handles GET /admin/status.
func (h *Handler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not compute status"})
		return
	}
	byStage := make(map[string]int)
	for _, s := range sessions {
		byStage[string(s.Stage)]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions":   len(sessions),
		"sessions_by_stage": byStage,
		"cache":             h.service.CacheStats(),
	})
}

// AdminCleanup handles POST /admin/cleanup.
func (h *Handler) AdminCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.CleanupExpired(r.Context())
	if err != nil {
		h.logger.Error("cleanup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "cleanup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
