// Package wsrelay implements tabsync.Transport and tabsync.Lease as clients
// of the cmd/tabrelay relay server, so integration tests (and any host that
// wants a lightweight non-browser tab-sync backend) can run the Tab Sync
// Bus's master-election and fan-out algorithm across real OS
// processes/goroutines that each dial the same relay, the same way N browser
// tabs would share one BroadcastChannel.
//
// Grounded on the teacher's internal/websocket.Client (one read goroutine,
// one write goroutine, a buffered send channel) for the Transport half, and
// on internal/cache.Cache's plain key/value Get/Set/Delete for the Lease
// half, here issued over HTTP against cmd/tabrelay instead of a Redis
// connection.
package wsrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/store"
)

// Transport dials cmd/tabrelay's per-channel websocket endpoint and
// implements tabsync.Transport over it.
type Transport struct {
	conn *websocket.Conn

	mu        sync.Mutex
	handlers  map[int]func(payload []byte)
	nextID    int
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to relayAddr (host:port, no scheme) for the given tab-sync
// channel name (spec §4.5's "gw-session-<sessionId>") and starts the read
// pump immediately, mirroring the teacher's Client.readPump lifecycle.
func Dial(relayAddr, channel string) (*Transport, error) {
	u := url.URL{Scheme: "ws", Host: relayAddr, Path: "/ws/" + channel}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial tabrelay at %s: %w", u.String(), err)
	}

	t := &Transport{
		conn:     conn,
		handlers: make(map[int]func(payload []byte)),
		closed:   make(chan struct{}),
	}
	go t.readPump()
	return t, nil
}

func (t *Transport) readPump() {
	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		t.mu.Lock()
		handlers := make([]func([]byte), 0, len(t.handlers))
		for _, h := range t.handlers {
			handlers = append(handlers, h)
		}
		t.mu.Unlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}

// Publish implements tabsync.Transport.
func (t *Transport) Publish(ctx context.Context, payload []byte) error {
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("wsrelay publish: %w", err)
	}
	return nil
}

// Subscribe implements tabsync.Transport. Every message the relay forwards
// on this connection's channel - including this Transport's own publishes,
// since the relay fans out to all clients on a channel without excluding
// the sender - is delivered to handler; tabsync.Bus already discards
// messages for a different sessionId.
func (t *Transport) Subscribe(ctx context.Context, handler func(payload []byte)) (func(), error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = handler
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.handlers, id)
		t.mu.Unlock()
	}, nil
}

// Close implements tabsync.Transport.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

// Lease implements tabsync.Lease against cmd/tabrelay's HTTP lease
// endpoints, generalizing the teacher's REST client idiom (plain
// net/http.Client calls, no generated client) to a three-verb key/value
// resource.
type Lease struct {
	httpClient *http.Client
	baseURL    string
}

// NewLease builds a Lease bound to key, talking to the relay at
// http://relayAddr.
func NewLease(relayAddr, key string) *Lease {
	return &Lease{
		httpClient: &http.Client{Timeout: 3 * time.Second},
		baseURL:    fmt.Sprintf("http://%s/lease/%s", relayAddr, url.PathEscape(key)),
	}
}

type leaseBody struct {
	TimestampMs int64 `json:"timestampMs"`
	OK          bool  `json:"ok"`
}

// Read implements tabsync.Lease.
func (l *Lease) Read(ctx context.Context) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("wsrelay lease read: %w", err)
	}
	defer resp.Body.Close()

	var body leaseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false, fmt.Errorf("wsrelay lease read: decode response: %w", err)
	}
	return body.TimestampMs, body.OK, nil
}

// Write implements tabsync.Lease.
func (l *Lease) Write(ctx context.Context, timestampMs int64) error {
	payload, err := json.Marshal(leaseBody{TimestampMs: timestampMs})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, l.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wsrelay lease write: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("wsrelay lease write: unexpected status %s", resp.Status)
	}
	return nil
}

// Clear implements tabsync.Lease.
func (l *Lease) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, l.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wsrelay lease clear: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("wsrelay lease clear: unexpected status %s", resp.Status)
	}
	return nil
}

// ChannelName builds the tab-sync channel name for sessionID, matching
// cmd/tabrelay's and platform/distributed's "gw-session-<id>" convention.
func ChannelName(sessionID string) string {
	return "gw-session-" + sessionID
}

// LeaseKey builds the master-lease key for sessionID. Delegates to
// internal/store so every platform package names this key identically.
func LeaseKey(sessionID string) string {
	return store.MasterLeaseKey(sessionID)
}
