package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/apperrors"
	"github.com/mcdev12/livepoll/go/internal/poll"
)

const maxBodyBytes = 64 << 10

// StateHandler serves the REST surface over the same session operations the
// WebSocket commands use, so REST writes reach connected clients too.
type StateHandler struct {
	session *Session
}

func NewStateHandler(session *Session) *StateHandler {
	return &StateHandler{session: session}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HandleHealth handles GET /api/health
func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleActivePoll handles GET /api/polls/active
func (h *StateHandler) HandleActivePoll(w http.ResponseWriter, r *http.Request) {
	state, err := h.session.ActiveState(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeState(w, http.StatusOK, state)
}

// HandleLatestPoll handles GET /api/polls/latest
func (h *StateHandler) HandleLatestPoll(w http.ResponseWriter, r *http.Request) {
	state, err := h.session.LatestState(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeState(w, http.StatusOK, state)
}

// HandleHistory handles GET /api/polls/history
func (h *StateHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.session.History(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// HandleCreatePoll handles POST /api/polls
func (h *StateHandler) HandleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req poll.CreatePollRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, err := h.session.CreatePoll(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// HandleSubmitVote handles POST /api/polls/{pollId}/vote
func (h *StateHandler) HandleSubmitVote(w http.ResponseWriter, r *http.Request) {
	var req poll.SubmitVoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if id := r.PathValue("pollId"); id != "" {
		req.PollID = id
	}
	results, err := h.session.SubmitVote(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *StateHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "NOT_FOUND"})
}

// RegisterStateRoutes registers the REST routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/polls/active", h.HandleActivePoll)
	mux.HandleFunc("GET /api/polls/latest", h.HandleLatestPoll)
	mux.HandleFunc("GET /api/polls/history", h.HandleHistory)
	mux.HandleFunc("POST /api/polls", h.HandleCreatePoll)
	mux.HandleFunc("POST /api/polls/{pollId}/vote", h.HandleSubmitVote)
	mux.HandleFunc("/api/", h.HandleNotFound)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "Invalid request body.", err)
	}
	return nil
}

func writeState(w http.ResponseWriter, status int, state *poll.PollState) {
	if state == nil || state.Poll == nil {
		writeJSON(w, status, map[string]any{"poll": nil})
		return
	}
	writeJSON(w, status, state)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := apperrors.From(err)
	if appErr.Code == apperrors.CodeServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, appErr.Status(), errorResponse{Error: string(appErr.Code), Message: appErr.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
