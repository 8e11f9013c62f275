// Package memory implements store.Store and a tabsync.Transport/tabsync.Lease
// pair entirely in process memory, with no browser and no external service.
// It is used by this module's own test suites (a stand-in for a real
// browser's localStorage/BroadcastChannel) and by any host that wants
// single-process, single-tab session behavior without a browser at all.
//
// Grounded on the teacher's internal/cache.Cache: same Get/Set/Delete
// surface (there is no SetNX; Lease.Write overwrites unconditionally), but
// backed by a mutex-guarded map instead of Redis,
// since spec.md's single-tab/in-process deployment has no need for a
// network round trip.
package memory

import (
	"context"
	"sync"
)

// Store is an in-memory implementation of store.Store. The zero value is
// ready to use.
type Store struct {
	mu   sync.Mutex
	data map[string]string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Hub fans out published payloads to every subscriber currently registered
// on a channel name, simulating what N real browser tabs' BroadcastChannel
// instances would deliver to each other. One Hub is shared by every Bus
// constructed against the same session id within a process.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[int]func([]byte)
	next int
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]func([]byte))}
}

// Transport binds a Hub to one channel name (spec §4.5: "gw-session-<sessionId>").
type Transport struct {
	hub     *Hub
	channel string

	mu  sync.Mutex
	ids []int
}

// NewTransport constructs a Transport publishing to and subscribing on
// channel within hub.
func NewTransport(hub *Hub, channel string) *Transport {
	return &Transport{hub: hub, channel: channel}
}

// Publish implements tabsync.Transport.
func (t *Transport) Publish(ctx context.Context, payload []byte) error {
	t.hub.mu.Lock()
	handlers := make([]func([]byte), 0, len(t.hub.subs[t.channel]))
	for _, h := range t.hub.subs[t.channel] {
		handlers = append(handlers, h)
	}
	t.hub.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

// Subscribe implements tabsync.Transport.
func (t *Transport) Subscribe(ctx context.Context, handler func(payload []byte)) (func(), error) {
	t.hub.mu.Lock()
	if t.hub.subs[t.channel] == nil {
		t.hub.subs[t.channel] = make(map[int]func([]byte))
	}
	t.hub.next++
	id := t.hub.next
	t.hub.subs[t.channel][id] = handler
	t.mu.Lock()
	t.ids = append(t.ids, id)
	t.mu.Unlock()
	t.hub.mu.Unlock()

	return func() {
		t.hub.mu.Lock()
		delete(t.hub.subs[t.channel], id)
		t.hub.mu.Unlock()
	}, nil
}

// Close implements tabsync.Transport by unsubscribing every handler this
// Transport registered.
func (t *Transport) Close() error {
	t.mu.Lock()
	ids := t.ids
	t.ids = nil
	t.mu.Unlock()

	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	for _, id := range ids {
		delete(t.hub.subs[t.channel], id)
	}
	return nil
}

// LeaseStore backs one or more Lease keys with a shared mutex-guarded map,
// simulating the single-origin persistent storage every tab's master-lease
// read/write/clear would see.
type LeaseStore struct {
	mu   sync.Mutex
	data map[string]int64
}

// NewLeaseStore constructs an empty LeaseStore.
func NewLeaseStore() *LeaseStore {
	return &LeaseStore{data: make(map[string]int64)}
}

// Lease is a tabsync.Lease bound to one key within a LeaseStore.
type Lease struct {
	store *LeaseStore
	key   string
}

// NewLease constructs a Lease for key within store.
func NewLease(store *LeaseStore, key string) *Lease {
	return &Lease{store: store, key: key}
}

// Read implements tabsync.Lease.
func (l *Lease) Read(ctx context.Context) (int64, bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	v, ok := l.store.data[l.key]
	return v, ok, nil
}

// Write implements tabsync.Lease.
func (l *Lease) Write(ctx context.Context, timestampMs int64) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if l.store.data == nil {
		l.store.data = make(map[string]int64)
	}
	l.store.data[l.key] = timestampMs
	return nil
}

// Clear implements tabsync.Lease.
func (l *Lease) Clear(ctx context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	delete(l.store.data, l.key)
	return nil
}
