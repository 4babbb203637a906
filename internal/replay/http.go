package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/clutch/internal/domain/types"
	"github.com/okian/clutch/pkg/logger"
)

// Outcome is the classified response to one delivery.
type Outcome string

// Delivery outcomes.
const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeThrottled Outcome = "throttled"
	OutcomeError     Outcome = "error"
)

// Result is the response to one delivery.
type Result struct {
	Delivery  Delivery
	Outcome   Outcome
	SessionID string
	Status    int
	Err       error
}

// Client talks to the clutch HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{base: baseURL, http: &http.Client{Timeout: timeout}}
}

// Health checks the service is serving.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Submit posts one delivery and classifies the response.
func (c *Client) Submit(ctx context.Context, d Delivery) Result { //nolint:gocritic // hugeParam
	res := Result{Delivery: d}
	resp, err := c.do(ctx, http.MethodPost, "/v1/videos", d.Request)
	if err != nil {
		res.Outcome, res.Err = OutcomeError, err
		return res
	}
	defer closeBody(resp)
	res.Status = resp.StatusCode

	switch resp.StatusCode {
	case http.StatusAccepted:
		var ack types.Accepted
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			res.Outcome, res.Err = OutcomeError, fmt.Errorf("decode ack: %w", err)
			return res
		}
		res.Outcome, res.SessionID = OutcomeAccepted, ack.SessionID
	case http.StatusOK:
		res.Outcome = OutcomeDuplicate
	case http.StatusUnprocessableEntity:
		res.Outcome = OutcomeRejected
	case http.StatusTooManyRequests:
		res.Outcome = OutcomeThrottled
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return res
}

// Session fetches the status view of a session.
func (c *Client) Session(ctx context.Context, id string) (types.SessionView, error) {
	var v types.SessionView
	err := c.getJSON(ctx, "/v1/sessions/"+url.PathEscape(id), &v)
	return v, err
}

// History fetches the sessions of a subject.
func (c *Client) History(ctx context.Context, subjectID string) (types.HistoryView, error) {
	var h types.HistoryView
	err := c.getJSON(ctx, "/v1/subjects/"+url.PathEscape(subjectID)+"/sessions", &h)
	return h, err
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		logger.Get().Debug(context.Background(), "failed to close response body", logger.Error(err))
	}
}

