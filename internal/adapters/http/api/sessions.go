package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/clutch/internal/domain/types"
)

// SessionsHandler serves session status, cancellation and subject history.
type SessionsHandler struct {
	deps Dependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps Dependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleGetSession handles GET /v1/sessions/{id} requests.
func (h *SessionsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.deps.Session(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleCancel handles POST /v1/sessions/{id}/cancel requests.
// Returns 409 once synthesis started or the session finished.
func (h *SessionsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.deps.Cancel(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.Accepted{Status: types.StatusCancelled, SessionID: id})
}

// HandleHistory handles GET /v1/subjects/{id}/sessions?window_days=N requests.
func (h *SessionsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	window := 0
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFailure(w, ErrBadWindow)
			return
		}
		window = n
	}
	view, err := h.deps.History(r.Context(), id, window)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeFailure(w, ErrBadRequest)
		return "", false
	}
	return id, true
}
