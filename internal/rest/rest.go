// Package rest implements the four issuer REST endpoints the core consumes
// (spec §6): validate, heartbeat, renew, complete. Every request carries
// Authorization: Bearer <token> and Content-Type: application/json; a
// non-2xx status yields the matching typed error from sdkerr.
//
// Grounded on the teacher's internal/auth/oidc.go, which builds its own
// *http.Client around an oauth2.Config rather than reaching for a
// third-party REST client library — this package follows the same
// stdlib-net/http idiom for the same reason: there is no HTTP client
// library anywhere in the teacher's or the pack's go.mod (Gin and go-oidc
// are server-side/verification concerns, not outbound REST clients).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gwsession/sdk/internal/heartbeat"
	"github.com/gwsession/sdk/internal/sdkerr"
)

// Client talks to the issuer's session REST surface at a configured base
// endpoint, authenticated with the session token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a Client. httpClient may be nil, in which case a client
// with a conservative default timeout is used.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}
}

type validateRequest struct {
	SessionJWT string `json:"session_jwt"`
}

// ValidateResponse is the parsed body of POST /sessions/validate.
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Validate calls POST /sessions/validate with the session token (spec §6).
func (c *Client) Validate(ctx context.Context) (*ValidateResponse, error) {
	var resp ValidateResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/validate", validateRequest{SessionJWT: c.token}, &resp); err != nil {
		return nil, sdkerr.BackendValidationFailed(err)
	}
	if !resp.Valid {
		return &resp, sdkerr.SessionInvalid(resp.Error)
	}
	return &resp, nil
}

type heartbeatRequest struct {
	Timestamp int64 `json:"timestamp"`
	Active    bool  `json:"active"`
}

type heartbeatResponse struct {
	RemainingSeconds *float64 `json:"remaining_seconds"`
}

// Heartbeat calls POST /sessions/{sessionId}/heartbeat and adapts the
// response into a heartbeat.Result, satisfying heartbeat.BeatFunc when
// bound to a sessionID via Beat.
func (c *Client) Heartbeat(ctx context.Context, sessionID string) (heartbeat.Result, error) {
	var resp heartbeatResponse
	path := fmt.Sprintf("/sessions/%s/heartbeat", sessionID)
	body := heartbeatRequest{Timestamp: time.Now().Unix(), Active: true}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return heartbeat.Result{}, sdkerr.HeartbeatFailed(err)
	}
	if resp.RemainingSeconds == nil || *resp.RemainingSeconds < 0 {
		return heartbeat.Result{}, nil
	}
	return heartbeat.Result{RemainingSeconds: int64(*resp.RemainingSeconds), HasRemaining: true}, nil
}

// Beat adapts Heartbeat into a heartbeat.BeatFunc bound to sessionID.
func (c *Client) Beat(sessionID string) heartbeat.BeatFunc {
	return func(ctx context.Context) (heartbeat.Result, error) {
		return c.Heartbeat(ctx, sessionID)
	}
}

type renewRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

// RenewResponse is the parsed body of PUT /sessions/{sessionId}/renew.
type RenewResponse struct {
	NewExpiresAt int64 `json:"new_expires_at"`
}

// Renew calls PUT /sessions/{sessionId}/renew (spec §6).
func (c *Client) Renew(ctx context.Context, sessionID string, additionalMinutes int) (*RenewResponse, error) {
	var resp RenewResponse
	path := fmt.Sprintf("/sessions/%s/renew", sessionID)
	if err := c.do(ctx, http.MethodPut, path, renewRequest{AdditionalMinutes: additionalMinutes}, &resp); err != nil {
		return nil, sdkerr.ExtensionFailed(err)
	}
	return &resp, nil
}

// CompleteRequest is the body of POST /sessions/{sessionId}/complete.
type CompleteRequest struct {
	ActualUsageMinutes *int                   `json:"actual_usage_minutes,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Complete calls POST /sessions/{sessionId}/complete. The response body is
// implementation-defined (spec §6) so it is returned as raw bytes.
func (c *Client) Complete(ctx context.Context, sessionID string, req CompleteRequest) ([]byte, error) {
	path := fmt.Sprintf("/sessions/%s/complete", sessionID)
	raw, err := c.doRaw(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, sdkerr.CompletionFailed(err)
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	return raw, nil
}
