package tabsync

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memoryHub is a shared in-process broadcast channel used to back multiple
// memoryTransport instances in a test, simulating N browser tabs.
type memoryHub struct {
	mu       sync.Mutex
	handlers map[int]func([]byte)
	nextID   int
}

func newMemoryHub() *memoryHub {
	return &memoryHub{handlers: make(map[int]func([]byte))}
}

type memoryTransport struct {
	hub *memoryHub
	id  int
}

func (h *memoryHub) newTransport() *memoryTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	return &memoryTransport{hub: h, id: id}
}

func (m *memoryTransport) Publish(ctx context.Context, payload []byte) error {
	m.hub.mu.Lock()
	handlers := make([]func([]byte), 0, len(m.hub.handlers))
	for _, h := range m.hub.handlers {
		handlers = append(handlers, h)
	}
	m.hub.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (m *memoryTransport) Subscribe(ctx context.Context, handler func([]byte)) (func(), error) {
	m.hub.mu.Lock()
	m.hub.handlers[m.id] = handler
	m.hub.mu.Unlock()
	return func() {
		m.hub.mu.Lock()
		delete(m.hub.handlers, m.id)
		m.hub.mu.Unlock()
	}, nil
}

func (m *memoryTransport) Close() error { return nil }

// memoryLease is a shared master-election key, analogous to a Redis string
// or a browser localStorage key.
type memoryLease struct {
	mu        sync.Mutex
	timestamp int64
	present   bool
}

func (l *memoryLease) Read(ctx context.Context) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timestamp, l.present, nil
}

func (l *memoryLease) Write(ctx context.Context, ts int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamp = ts
	l.present = true
	return nil
}

func (l *memoryLease) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.present = false
	return nil
}

func TestBus_FirstTabClaimsMastership(t *testing.T) {
	hub := newMemoryHub()
	lease := &memoryLease{}

	bus, err := New(context.Background(), Options{
		SessionID: "sess-1",
		Transport: hub.newTransport(),
		Lease:     lease,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer bus.Destroy(context.Background())

	if !bus.IsMasterTab() {
		t.Fatal("expected first bus to claim mastership")
	}
}

func TestBus_SecondTabIsNotMaster(t *testing.T) {
	hub := newMemoryHub()
	lease := &memoryLease{}

	busA, err := New(context.Background(), Options{SessionID: "sess-1", Transport: hub.newTransport(), Lease: lease})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer busA.Destroy(context.Background())

	busB, err := New(context.Background(), Options{SessionID: "sess-1", Transport: hub.newTransport(), Lease: lease})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer busB.Destroy(context.Background())

	if !busA.IsMasterTab() || busB.IsMasterTab() {
		t.Fatal("expected exactly busA to be master")
	}
}

func TestBus_MessageFanOutFiltersBySessionID(t *testing.T) {
	hub := newMemoryHub()

	var pausedA, pausedOther int
	busA, err := New(context.Background(), Options{
		SessionID: "sess-1",
		Transport: hub.newTransport(),
		Lease:     &memoryLease{},
		OnPause:   func() { pausedA++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer busA.Destroy(context.Background())

	busOther, err := New(context.Background(), Options{
		SessionID: "sess-2",
		Transport: hub.newTransport(),
		Lease:     &memoryLease{},
		OnPause:   func() { pausedOther++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer busOther.Destroy(context.Background())

	if err := busA.BroadcastPause(context.Background()); err != nil {
		t.Fatalf("BroadcastPause: %v", err)
	}

	if pausedA != 1 {
		t.Fatalf("expected busA's own peer handler... got %d", pausedA)
	}
	if pausedOther != 0 {
		t.Fatal("expected sess-2 bus to ignore a sess-1 message")
	}
}

func TestBus_TimerUpdateDeliversRemaining(t *testing.T) {
	hub := newMemoryHub()
	received := make(chan int64, 1)

	busA, err := New(context.Background(), Options{SessionID: "sess-1", Transport: hub.newTransport(), Lease: &memoryLease{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer busA.Destroy(context.Background())

	busB, err := New(context.Background(), Options{
		SessionID:     "sess-1",
		Transport:     hub.newTransport(),
		Lease:         &memoryLease{},
		OnTimerUpdate: func(remaining int64) { received <- remaining },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer busB.Destroy(context.Background())

	if err := busA.BroadcastTimerUpdate(context.Background(), 77); err != nil {
		t.Fatalf("BroadcastTimerUpdate: %v", err)
	}

	select {
	case v := <-received:
		if v != 77 {
			t.Fatalf("expected 77, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timer_update not delivered")
	}
}

func TestBus_DestroyClearsMasterKeyWhenMaster(t *testing.T) {
	hub := newMemoryHub()
	lease := &memoryLease{}

	bus, err := New(context.Background(), Options{SessionID: "sess-1", Transport: hub.newTransport(), Lease: lease})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !bus.IsMasterTab() {
		t.Fatal("expected master")
	}

	if err := bus.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	_, ok, _ := lease.Read(context.Background())
	if ok {
		t.Fatal("expected master lease cleared on destroy")
	}
}
