package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/types"
)

// maxBodyBytes bounds an ingestion webhook body.
const maxBodyBytes = 1 << 20

// VideosHandler handles the ingestion webhook.
type VideosHandler struct {
	deps Dependencies
}

// NewVideosHandler creates a new videos handler.
func NewVideosHandler(deps Dependencies) *VideosHandler {
	return &VideosHandler{deps: deps}
}

// HandlePostVideo handles POST /v1/videos requests.
// Returns 202 for a new session, 200 for a redelivery, 422 with the list of
// problems for an invalid payload and 429 when the work queue is full.
func (h *VideosHandler) HandlePostVideo(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_video"
	var req ingest.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, model.WrapKind(op, ErrBadRequest, err))
		return
	}

	rc, err := h.deps.Ingest(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if rc.Duplicate {
		writeJSON(w, http.StatusOK, types.Accepted{Status: types.StatusDuplicate})
		return
	}
	writeJSON(w, http.StatusAccepted, types.Accepted{Status: types.StatusAccepted, SessionID: rc.SessionID})
}
