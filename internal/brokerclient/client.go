// Package brokerclient is the agent's HTTP client to the broker API: one
// method per endpoint the reconciliation engine, work-order executor,
// webhook delivery loop, diagnostic responder, and health reporter poll
// or post to. Every request carries Authorization: Bearer <pak> (spec
// §6), and the broker always resolves the calling agent from that token
// rather than a path parameter — the client never sends its own agent id
// except where the broker's route still requires one (heartbeat).
//
// Grounded on the teacher's pkg/bookowl.Client: a thin http.Client
// wrapper, context-aware requests, explicit status-code handling per
// call rather than a generic retry-everything middleware.
package brokerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the Brokkr broker API on behalf of one agent.
type Client struct {
	baseURL    string
	pak        string
	agentID    string
	httpClient *http.Client
}

// New builds a Client. baseURL is the broker's root URL (no trailing
// slash required); agentID is only used where a route still requires a
// path-parameter id (heartbeat).
func New(baseURL, pak, agentID string) *Client {
	return &Client{
		baseURL:    baseURL,
		pak:        pak,
		agentID:    agentID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned when the broker responds with a non-2xx status
// the caller did not specifically handle.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker returned HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// errorEnvelope mirrors internal/httpserver.ErrorResponse.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do issues an authenticated request with an optional JSON body and
// decodes a JSON response into out (if non-nil). A response status not
// in okStatuses yields an *APIError the caller can inspect or ignore
// (e.g. to treat 404 as "nothing available" on a claim poll).
func (c *Client) do(ctx context.Context, method, path string, body any, out any, okStatuses ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.pak)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling broker %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	ok := len(okStatuses) == 0
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		var env errorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Code: env.Error, Message: env.Message}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding broker response: %w", err)
	}
	return resp.StatusCode, nil
}

// IsNotFound reports whether err is an *APIError for HTTP 404, the
// broker's signal for "nothing eligible right now" on every claim-style
// poll (work orders, webhook deliveries, diagnostics).
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}
