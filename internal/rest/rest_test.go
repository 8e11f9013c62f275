package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gwsession/sdk/internal/sdkerr"
)

func TestValidate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/validate" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Fatalf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(ValidateResponse{Valid: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", nil)
	resp, err := c.Validate(t.Context())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !resp.Valid {
		t.Fatal("expected valid=true")
	}
}

func TestValidate_ServerRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ValidateResponse{Valid: false, Error: "session revoked"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", nil)
	_, err := c.Validate(t.Context())
	if sdkerr.CodeOf(err) != sdkerr.CodeSessionInvalid {
		t.Fatalf("expected SessionInvalid, got %v", err)
	}
}

func TestValidate_NonHTTP200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", nil)
	_, err := c.Validate(t.Context())
	if sdkerr.CodeOf(err) != sdkerr.CodeBackendValidationFailed {
		t.Fatalf("expected BackendValidationFailed, got %v", err)
	}
}

func TestHeartbeat_ParsesRemainingSeconds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess-1/heartbeat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"remaining_seconds": 42})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", nil)
	result, err := c.Heartbeat(t.Context(), "sess-1")
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if !result.HasRemaining || result.RemainingSeconds != 42 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHeartbeat_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", nil)
	_, err := c.Heartbeat(t.Context(), "sess-1")
	if sdkerr.CodeOf(err) != sdkerr.CodeHeartbeatFailed {
		t.Fatalf("expected HeartbeatFailed, got %v", err)
	}
}

func TestRenew_ReturnsNewExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(RenewResponse{NewExpiresAt: 1700000900})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", nil)
	resp, err := c.Renew(t.Context(), "sess-1", 15)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if resp.NewExpiresAt != 1700000900 {
		t.Fatalf("unexpected: %+v", resp)
	}
}

func TestComplete_ReturnsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", nil)
	raw, err := c.Complete(t.Context(), "sess-1", CompleteRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", raw)
	}
}
