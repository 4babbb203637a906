package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/clutch/internal/adapters/http/api"
	"github.com/okian/clutch/internal/adapters/repository"
	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/types"
	"github.com/okian/clutch/internal/pipeline"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDeps struct {
	receipt   pipeline.Receipt
	ingestErr error
	ingested  []ingest.Request

	sessions  map[string]types.SessionView
	cancelErr error
	cancelled []string

	windows    []int
	historyErr error
}

func (m *mockDeps) Ingest(_ context.Context, req ingest.Request) (pipeline.Receipt, error) { //nolint:gocritic // hugeParam
	m.ingested = append(m.ingested, req)
	return m.receipt, m.ingestErr
}

func (m *mockDeps) Session(_ context.Context, id string) (types.SessionView, error) {
	v, ok := m.sessions[id]
	if !ok {
		return types.SessionView{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return v, nil
}

func (m *mockDeps) History(_ context.Context, subjectID string, windowDays int) (types.HistoryView, error) {
	m.windows = append(m.windows, windowDays)
	if m.historyErr != nil {
		return types.HistoryView{}, m.historyErr
	}
	return types.HistoryView{SubjectID: subjectID, WindowDays: windowDays, Sessions: []types.SessionBrief{}}, nil
}

func (m *mockDeps) Cancel(_ context.Context, id string) (model.Session, error) {
	m.cancelled = append(m.cancelled, id)
	if m.cancelErr != nil {
		return model.Session{}, m.cancelErr
	}
	return model.Session{ID: id, Status: model.SessionFailed, Cancelled: true}, nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any {
	return map[string]any{"sessions": 3, "queue_depth": 1}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, http.NoBody)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

type errorBody struct {
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Problems []ingest.Problem `json:"problems"`
}

const videoBody = `{
  "delivery_id": "d-1",
  "video_url": "https://videos.example.com/a.mp4",
  "format": "mp4",
  "duration_seconds": 20,
  "width": 1280,
  "height": 720,
  "fps": 30,
  "tags": {"subject_id": "athlete-1", "sport": "tennis", "session_type": "game", "context": ["match_point"]}
}`

func TestPostVideo(t *testing.T) {
	Convey("Given the ingestion endpoint", t, func() {
		deps := &mockDeps{receipt: pipeline.Receipt{SessionID: "s-1"}}
		mux := newMux(deps)

		Convey("When a new video is posted", func() {
			w := do(mux, http.MethodPost, "/v1/videos", videoBody)

			Convey("Then it is accepted with the session id", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				var got types.Accepted
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Status, ShouldEqual, types.StatusAccepted)
				So(got.SessionID, ShouldEqual, "s-1")

				So(deps.ingested, ShouldHaveLength, 1)
				req := deps.ingested[0]
				So(req.DeliveryID, ShouldEqual, "d-1")
				So(req.Tags.Sport, ShouldEqual, "tennis")
				So(req.Tags.Context, ShouldResemble, []string{"match_point"})
			})
		})

		Convey("When the video was already accepted", func() {
			deps.receipt = pipeline.Receipt{Duplicate: true}
			w := do(mux, http.MethodPost, "/v1/videos", videoBody)

			Convey("Then it is acknowledged as a duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got types.Accepted
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Status, ShouldEqual, types.StatusDuplicate)
				So(got.SessionID, ShouldBeBlank)
			})
		})

		Convey("When the payload violates the rules", func() {
			deps.ingestErr = &ingest.ValidationError{Problems: []ingest.Problem{
				{Field: "format", Reason: "unsupported format flv"},
				{Field: "resolution", Reason: "minimum resolution is 480x360, got 320x240"},
			}}
			w := do(mux, http.MethodPost, "/v1/videos", videoBody)

			Convey("Then every problem is reported", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var got errorBody
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Code, ShouldEqual, "validation_failed")
				So(got.Problems, ShouldHaveLength, 2)
				So(got.Problems[0].Field, ShouldEqual, "format")
			})
		})

		Convey("When the work queue is full", func() {
			deps.ingestErr = fmt.Errorf("%w: queue full", pipeline.ErrBackpressure)
			w := do(mux, http.MethodPost, "/v1/videos", videoBody)

			Convey("Then the client is asked to back off", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				var got errorBody
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Code, ShouldEqual, "backpressure")
				So(got.Problems, ShouldBeEmpty)
			})
		})

		Convey("When the service is shutting down", func() {
			deps.ingestErr = pipeline.ErrClosed
			w := do(mux, http.MethodPost, "/v1/videos", videoBody)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/v1/videos", "{not json")

			Convey("Then it is a bad request and nothing is ingested", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.ingested, ShouldBeEmpty)
			})
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodGet, "/v1/videos", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestSessionEndpoints(t *testing.T) {
	Convey("Given a known session", t, func() {
		deps := &mockDeps{sessions: map[string]types.SessionView{
			"s-1": {
				ID: "s-1", Status: model.SessionPending,
				Streams: map[model.StreamKind]types.StreamView{
					model.StreamBiomechanical: {Status: model.StreamProcessing, Attempts: 2, Error: "pose model timeout"},
					model.StreamBehavioral:    {Status: model.StreamCompleted, Attempts: 1},
				},
			},
		}}
		mux := newMux(deps)

		Convey("When its status is requested", func() {
			w := do(mux, http.MethodGet, "/v1/sessions/s-1", "")

			Convey("Then per-stream status and attempts are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got types.SessionView
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Status, ShouldEqual, model.SessionPending)
				So(got.Streams[model.StreamBiomechanical].Attempts, ShouldEqual, 2)
				So(got.Streams[model.StreamBiomechanical].Error, ShouldEqual, "pose model timeout")
				So(got.Report, ShouldBeNil)
			})
		})

		Convey("When an unknown session is requested", func() {
			w := do(mux, http.MethodGet, "/v1/sessions/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When it is cancelled", func() {
			w := do(mux, http.MethodPost, "/v1/sessions/s-1/cancel", "")

			Convey("Then the cancellation is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var got types.Accepted
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Status, ShouldEqual, types.StatusCancelled)
				So(deps.cancelled, ShouldResemble, []string{"s-1"})
			})
		})

		Convey("When it is cancelled after synthesis started", func() {
			deps.cancelErr = fmt.Errorf("%w: s-1", repository.ErrSynthesisStarted)
			w := do(mux, http.MethodPost, "/v1/sessions/s-1/cancel", "")

			Convey("Then it conflicts", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				var got errorBody
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Code, ShouldEqual, "conflict")
			})
		})

		Convey("When it is cancelled after it finished", func() {
			deps.cancelErr = repository.ErrSessionTerminal
			w := do(mux, http.MethodPost, "/v1/sessions/s-1/cancel", "")
			So(w.Code, ShouldEqual, http.StatusConflict)
		})
	})
}

func TestHistoryEndpoint(t *testing.T) {
	Convey("Given the history endpoint", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When a window is given", func() {
			w := do(mux, http.MethodGet, "/v1/subjects/athlete-1/sessions?window_days=7", "")

			Convey("Then it is passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got types.HistoryView
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.SubjectID, ShouldEqual, "athlete-1")
				So(got.WindowDays, ShouldEqual, 7)
				So(deps.windows, ShouldResemble, []int{7})
			})
		})

		Convey("When no window is given", func() {
			w := do(mux, http.MethodGet, "/v1/subjects/athlete-1/sessions", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.windows, ShouldResemble, []int{0})
		})

		Convey("When the window is invalid", func() {
			for _, q := range []string{"abc", "0", "-3"} {
				w := do(mux, http.MethodGet, "/v1/subjects/athlete-1/sessions?window_days="+q, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.windows, ShouldBeEmpty)
		})

		Convey("When the store fails", func() {
			deps.historyErr = errors.New("disk on fire")
			w := do(mux, http.MethodGet, "/v1/subjects/athlete-1/sessions", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then /stats returns the provider snapshot", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got["sessions"], ShouldEqual, 3)
		})

		Convey("Then /healthz serves the metrics registry", func() {
			_ = do(mux, http.MethodGet, "/stats", "")
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})
}
