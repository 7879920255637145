package relay

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/history"
	"github.com/talkeasy/voice-pipeline/internal/persona"
	"github.com/talkeasy/voice-pipeline/internal/session"
)

// RESTHandler serves the session-adjacent HTTP endpoints: chat history
// retrieval and clearing, and persona switching.
type RESTHandler struct {
	logger    zerolog.Logger
	histStore history.Store
	personas  persona.Store
	registry  *session.Registry
}

// NewRESTHandler wires the REST endpoints.
func NewRESTHandler(logger zerolog.Logger, histStore history.Store, personas persona.Store, registry *session.Registry) *RESTHandler {
	return &RESTHandler{
		logger:    logger.With().Str("component", "rest").Logger(),
		histStore: histStore,
		personas:  personas,
		registry:  registry,
	}
}

// Register mounts the endpoints on mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /agent/chat/{session_id}/history", h.getHistory)
	mux.HandleFunc("DELETE /agent/chat/{session_id}/history", h.clearHistory)
	mux.HandleFunc("POST /api/persona/switch", h.switchPersona)
}

func (h *RESTHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	msgs, err := h.histStore.History(sessionID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"message_count": len(msgs),
		"messages":      msgs,
	})
}

func (h *RESTHandler) clearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := h.histStore.Clear(sessionID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	h.logger.Info().Str("session_id", sessionID).Msg("History cleared")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"cleared":    true,
	})
}

type personaSwitchRequest struct {
	SessionID string `json:"session_id"`
	Persona   string `json:"persona"`
}

func (h *RESTHandler) switchPersona(w http.ResponseWriter, r *http.Request) {
	var req personaSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := h.personas.Set(req.SessionID, req.Persona); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Live sessions pick the new persona up on their next turn.
	if sess, ok := h.registry.Get(req.SessionID); ok {
		sess.SetPersona(req.Persona)
	}
	h.logger.Info().Str("session_id", req.SessionID).Str("persona", req.Persona).Msg("Persona switched")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"persona":    req.Persona,
	})
}

func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
