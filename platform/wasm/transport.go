//go:build js && wasm

package wasm

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"syscall/js"
	"time"

	"github.com/gwsession/sdk/internal/store"
)

// Transport implements tabsync.Transport over a BroadcastChannel scoped to
// one tab-sync channel name, falling back to a localStorage "storage" event
// when BroadcastChannel is unavailable (older browsers / some private
// browsing modes), per spec §4.5's storage-event fallback.
type Transport struct {
	sessionID string
	channel   string

	mu        sync.Mutex
	bc        js.Value // zero Value if BroadcastChannel is unsupported
	onMessage js.Func
	onStorage js.Func
	handlers  map[int]func(payload []byte)
	nextID    int
}

// ChannelName builds the tab-sync channel name for sessionID, matching
// platform/memory's and platform/wsrelay's "gw-session-<id>" convention.
func ChannelName(sessionID string) string {
	return "gw-session-" + sessionID
}

// NewTransport constructs a Transport bound to sessionID.
func NewTransport(sessionID string) *Transport {
	channel := ChannelName(sessionID)
	t := &Transport{sessionID: sessionID, channel: channel, handlers: make(map[int]func(payload []byte))}

	ctor := jsGlobal().Get("BroadcastChannel")
	if !ctor.IsUndefined() {
		t.bc = ctor.New(channel)
	}
	return t
}

// storageKey is the spec §3/§6 storage-event fallback key, gw_session_sync_<sessionId>.
func (t *Transport) storageKey() string {
	return store.SyncFallbackKey(t.sessionID)
}

// Publish implements tabsync.Transport.
func (t *Transport) Publish(ctx context.Context, payload []byte) error {
	if !t.bc.IsUndefined() && !t.bc.IsNull() {
		if err := callCatching(t.bc, "postMessage", string(payload)); err != nil {
			return fmt.Errorf("BroadcastChannel.postMessage: %w", err)
		}
		return nil
	}

	// Storage-event fallback: write the payload under the session's sync
	// fallback key (storageKey), tagged
	// with a timestamp so same-value writes still fire a change (the
	// storage event only fires for OTHER documents/tabs, which is exactly
	// the cross-tab semantics tabsync needs).
	value := strconv.FormatInt(time.Now().UnixNano(), 10) + "|" + string(payload)
	if err := callCatching(localStorage(), "setItem", t.storageKey(), value); err != nil {
		return fmt.Errorf("storage-event fallback publish: %w", err)
	}
	return nil
}

// Subscribe implements tabsync.Transport.
func (t *Transport) Subscribe(ctx context.Context, handler func(payload []byte)) (func(), error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = handler
	first := len(t.handlers) == 1
	t.mu.Unlock()

	if first {
		t.attachListeners()
	}

	return func() {
		t.mu.Lock()
		delete(t.handlers, id)
		empty := len(t.handlers) == 0
		t.mu.Unlock()
		if empty {
			t.detachListeners()
		}
	}, nil
}

func (t *Transport) attachListeners() {
	if !t.bc.IsUndefined() && !t.bc.IsNull() {
		t.onMessage = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			if len(args) == 0 {
				return nil
			}
			data := args[0].Get("data")
			if data.Type() == js.TypeString {
				t.dispatch([]byte(data.String()))
			}
			return nil
		})
		t.bc.Set("onmessage", t.onMessage)
		return
	}

	t.onStorage = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return nil
		}
		event := args[0]
		key := event.Get("key")
		if key.IsNull() || key.String() != t.storageKey() {
			return nil
		}
		newValue := event.Get("newValue")
		if newValue.IsNull() || newValue.IsUndefined() {
			return nil
		}
		raw := newValue.String()
		// strip the leading "<nanos>|" tiebreaker prefix written by Publish.
		for i := 0; i < len(raw); i++ {
			if raw[i] == '|' {
				t.dispatch([]byte(raw[i+1:]))
				break
			}
		}
		return nil
	})
	jsGlobal().Call("addEventListener", "storage", t.onStorage)
}

func (t *Transport) detachListeners() {
	if !t.bc.IsUndefined() && !t.bc.IsNull() {
		if !t.onMessage.IsUndefined() {
			t.bc.Set("onmessage", js.Null())
			t.onMessage.Release()
		}
		return
	}
	if !t.onStorage.IsUndefined() {
		jsGlobal().Call("removeEventListener", "storage", t.onStorage)
		t.onStorage.Release()
	}
}

func (t *Transport) dispatch(payload []byte) {
	t.mu.Lock()
	handlers := make([]func([]byte), 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

// Close implements tabsync.Transport. It always clears the storage-event
// fallback key, even when BroadcastChannel was the active path, so a stale
// value never lingers in localStorage after Tab Sync teardown (spec P10).
func (t *Transport) Close() error {
	t.detachListeners()

	var closeErr error
	if !t.bc.IsUndefined() && !t.bc.IsNull() {
		closeErr = callCatching(t.bc, "close")
	}
	if err := callCatching(localStorage(), "removeItem", t.storageKey()); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("storage-event fallback cleanup: %w", err)
	}
	return closeErr
}
