package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	session           *Session
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, session *Session) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		session:           session,
	}
}

// HandleConnection handles GET /ws?role=..&studentId=..&studentName=..
//
// Identity is asserted by the client. Admission decisions that reject an
// attendee are delivered as an event over the upgraded socket.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	role := parseRole(query.Get("role"))
	studentID := strings.TrimSpace(query.Get("studentId"))
	studentName := strings.TrimSpace(query.Get("studentName"))

	conn, err := h.connectionManager.UpgradeConnection(w, r, role, studentID, studentName)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		log.Error().
			Err(err).
			Str("role", string(role)).
			Str("student_id", studentID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	h.session.Admit(conn)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

// parseRole maps the role query value to a Role. The legacy client sent
// "teacher" and "student"; anything unrecognised is an attendee.
func parseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "presenter", "teacher":
		return RolePresenter
	default:
		return RoleAttendee
	}
}
