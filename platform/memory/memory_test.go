package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gwsession/sdk/internal/config"
	"github.com/gwsession/sdk/internal/rest"
	"github.com/gwsession/sdk/internal/store"
	"github.com/gwsession/sdk/internal/tabsync"
	"github.com/gwsession/sdk/internal/tokencodec"
	"github.com/gwsession/sdk/session"
)

func TestStore_GetSetDelete(t *testing.T) {
	s := NewStore()
	if _, ok, _ := s.Get(context.Background(), "k"); ok {
		t.Fatal("expected absent key")
	}
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, _ := s.Get(context.Background(), "k")
	if !ok || v != "v" {
		t.Fatalf("unexpected value: %q %v", v, ok)
	}
	s.Delete(context.Background(), "k")
	if _, ok, _ := s.Get(context.Background(), "k"); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestHubTransport_FanOut(t *testing.T) {
	hub := NewHub()
	a := NewTransport(hub, "chan-1")
	b := NewTransport(hub, "chan-1")

	var gotA, gotB []byte
	a.Subscribe(context.Background(), func(p []byte) { gotA = p })
	b.Subscribe(context.Background(), func(p []byte) { gotB = p })

	a.Publish(context.Background(), []byte("hello"))

	if string(gotA) != "hello" || string(gotB) != "hello" {
		t.Fatalf("expected both subscribers to receive the message, got %q %q", gotA, gotB)
	}
}

func TestLease_WriteReadClear(t *testing.T) {
	ls := NewLeaseStore()
	lease := NewLease(ls, "master-key")

	if err := lease.Write(context.Background(), 1000); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, ok, err := lease.Read(context.Background())
	if err != nil || !ok || v != 1000 {
		t.Fatalf("unexpected read: %d %v %v", v, ok, err)
	}
	lease.Clear(context.Background())
	if _, ok, _ := lease.Read(context.Background()); ok {
		t.Fatal("expected lease to be cleared")
	}
}

// --- integration: two session.Controllers sharing one Hub/LeaseStore, per
// spec §8 scenarios S2 (master election) and S5 (cross-tab termination).

func backendFixture(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/validate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rest.ValidateResponse{Valid: true})
	})
	mux.HandleFunc("/sessions/sess-shared/complete", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	return httptest.NewServer(mux)
}

func sharedToken(t *testing.T) string {
	t.Helper()
	claims := tokencodec.Claims{
		SessionID:       "sess-shared",
		ApplicationID:   "app-1",
		UserID:          "user-1",
		OrgID:           "org-1",
		StartTime:       time.Now().Unix(),
		DurationMinutes: 60,
		IssuedAt:        time.Now().Unix(),
		ExpiresAt:       time.Now().Add(60 * time.Second).Unix(),
		Issuer:          "gwsession-issuer",
		Subject:         "user-1",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTab(t *testing.T, hub *Hub, leases *LeaseStore, st *Store, srv *httptest.Server, token string) *session.Controller {
	t.Helper()
	cfg := config.DefaultSession()
	cfg.UseBackendValidation = true
	cfg.ApplicationID = "app-1"
	cfg.EnableTabSync = true
	cfg.EnableHeartbeat = false

	newSync := func(ctx context.Context, sessionID string) (tabsync.Transport, tabsync.Lease, error) {
		channel := "gw-session-" + sessionID
		return NewTransport(hub, channel), NewLease(leases, store.MasterLeaseKey(sessionID)), nil
	}

	c := session.New(session.Options{
		Config:       cfg,
		Store:        st,
		Rest:         rest.New(srv.URL, "", nil),
		TokenLocator: func() (string, bool) { return token, true },
		NewSync:      newSync,
	})
	if _, err := c.Initialize(t.Context()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func TestMasterElection_TwoTabs(t *testing.T) {
	srv := backendFixture(t)
	defer srv.Close()
	token := sharedToken(t)

	hub := NewHub()
	leases := NewLeaseStore()

	tabA := newTab(t, hub, leases, NewStore(), srv, token)
	if !tabA.IsMasterTab() {
		t.Fatal("expected the first tab to claim initial mastership")
	}

	tabB := newTab(t, hub, leases, NewStore(), srv, token)
	if tabB.IsMasterTab() {
		t.Fatal("expected the second tab to not be master while the first lives")
	}
}

// TestMasterElection_SeizureStartsHeartbeat covers spec S2: once tab A (the
// initial master) is gone and its lease goes stale, tab B must seize
// mastership *and* start its own Heartbeat, not merely flip IsMasterTab().
func TestMasterElection_SeizureStartsHeartbeat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/validate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rest.ValidateResponse{Valid: true})
	})
	mux.HandleFunc("/sessions/sess-shared/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		remaining := 3600
		json.NewEncoder(w).Encode(map[string]any{"remainingSeconds": remaining})
	})
	mux.HandleFunc("/sessions/sess-shared/complete", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	token := sharedToken(t)

	hub := NewHub()
	leases := NewLeaseStore()

	newSync := func(ctx context.Context, sessionID string) (tabsync.Transport, tabsync.Lease, error) {
		channel := "gw-session-" + sessionID
		return NewTransport(hub, channel), NewLease(leases, store.MasterLeaseKey(sessionID)), nil
	}

	cfg := config.DefaultSession()
	cfg.UseBackendValidation = true
	cfg.ApplicationID = "app-1"
	cfg.EnableTabSync = true
	cfg.EnableHeartbeat = true

	tabA := session.New(session.Options{
		Config:       cfg,
		Store:        NewStore(),
		Rest:         rest.New(srv.URL, "", nil),
		TokenLocator: func() (string, bool) { return token, true },
		NewSync:      newSync,
	})
	if _, err := tabA.Initialize(t.Context()); err != nil {
		t.Fatalf("tabA.Initialize: %v", err)
	}
	if !tabA.IsMasterTab() || !tabA.IsHeartbeatRunning() {
		t.Fatal("expected tab A to be master and running its heartbeat")
	}

	tabB := session.New(session.Options{
		Config:       cfg,
		Store:        NewStore(),
		Rest:         rest.New(srv.URL, "", nil),
		TokenLocator: func() (string, bool) { return token, true },
		NewSync:      newSync,
	})
	if _, err := tabB.Initialize(t.Context()); err != nil {
		t.Fatalf("tabB.Initialize: %v", err)
	}
	if tabB.IsMasterTab() || tabB.IsHeartbeatRunning() {
		t.Fatal("expected tab B to start as non-master with no heartbeat")
	}

	// Tab A is torn down with Destroy, which stops its lease refresh and,
	// since A is master, clears the lease, so tab B finds no lease and
	// seizes it on its own next election tick.
	tabA.Destroy(context.Background())

	deadline := time.Now().Add(7 * time.Second)
	for time.Now().Before(deadline) {
		if tabB.IsMasterTab() && tabB.IsHeartbeatRunning() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("expected tab B to seize mastership and start its heartbeat after tab A disappeared")
}

func TestCrossTabTermination(t *testing.T) {
	srv := backendFixture(t)
	defer srv.Close()
	token := sharedToken(t)

	hub := NewHub()
	leases := NewLeaseStore()

	var bEnded int
	cfg := config.DefaultSession()
	cfg.UseBackendValidation = true
	cfg.ApplicationID = "app-1"
	cfg.EnableTabSync = true

	newSync := func(ctx context.Context, sessionID string) (tabsync.Transport, tabsync.Lease, error) {
		channel := "gw-session-" + sessionID
		return NewTransport(hub, channel), NewLease(leases, store.MasterLeaseKey(sessionID)), nil
	}

	tabA := session.New(session.Options{
		Config:       cfg,
		Store:        NewStore(),
		Rest:         rest.New(srv.URL, "", nil),
		TokenLocator: func() (string, bool) { return token, true },
		NewSync:      newSync,
	})
	if _, err := tabA.Initialize(t.Context()); err != nil {
		t.Fatalf("tabA.Initialize: %v", err)
	}

	tabB := session.New(session.Options{
		Config:       cfg,
		Store:        NewStore(),
		Rest:         rest.New(srv.URL, "", nil),
		TokenLocator: func() (string, bool) { return token, true },
		NewSync:      newSync,
		OnSessionEnd: func() { bEnded++ },
	})
	if _, err := tabB.Initialize(t.Context()); err != nil {
		t.Fatalf("tabB.Initialize: %v", err)
	}

	if err := tabA.CompleteSession(t.Context(), nil); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	if bEnded != 1 {
		t.Fatalf("expected tab B to observe the peer's termination exactly once, got %d", bEnded)
	}
	if tabB.IsRunning() {
		t.Fatal("expected tab B's timer to have stopped after receiving end")
	}
}
