package wsrelay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gwsession/sdk/internal/tabrelaysrv"
)

func startRelay(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(tabrelaysrv.New().Router())
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestTransport_PublishSubscribe(t *testing.T) {
	addr := startRelay(t)

	a, err := Dial(addr, ChannelName("sess-1"))
	if err != nil {
		t.Fatalf("Dial a: %v", err)
	}
	defer a.Close()
	b, err := Dial(addr, ChannelName("sess-1"))
	if err != nil {
		t.Fatalf("Dial b: %v", err)
	}
	defer b.Close()

	received := make(chan []byte, 1)
	unsubscribe, err := b.Subscribe(context.Background(), func(payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	// Give the relay a moment to finish registering both connections before
	// publishing, since the websocket upgrade and hub registration happen
	// on goroutines.
	time.Sleep(100 * time.Millisecond)

	if err := a.Publish(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestTransport_ChannelsAreIsolated(t *testing.T) {
	addr := startRelay(t)

	a, err := Dial(addr, ChannelName("sess-a"))
	if err != nil {
		t.Fatalf("Dial a: %v", err)
	}
	defer a.Close()
	other, err := Dial(addr, ChannelName("sess-b"))
	if err != nil {
		t.Fatalf("Dial other: %v", err)
	}
	defer other.Close()

	received := make(chan []byte, 1)
	unsubscribe, err := other.Subscribe(context.Background(), func(payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	time.Sleep(100 * time.Millisecond)

	if err := a.Publish(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case payload := <-received:
		t.Fatalf("unexpected cross-channel delivery: %s", payload)
	case <-time.After(300 * time.Millisecond):
		// expected: no message crosses channels
	}
}

func TestLease_ReadWriteClear(t *testing.T) {
	addr := startRelay(t)
	lease := NewLease(addr, LeaseKey("sess-1"))
	ctx := context.Background()

	if _, ok, err := lease.Read(ctx); err != nil || ok {
		t.Fatalf("expected absent lease, got ok=%v err=%v", ok, err)
	}

	if err := lease.Write(ctx, 1234); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ts, ok, err := lease.Read(ctx)
	if err != nil || !ok || ts != 1234 {
		t.Fatalf("unexpected Read result: %d %v %v", ts, ok, err)
	}

	if err := lease.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := lease.Read(ctx); ok {
		t.Fatal("expected lease to be absent after clear")
	}
}
