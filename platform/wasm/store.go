//go:build js && wasm

// Package wasm implements store.Store, tabsync.Transport, tabsync.Lease,
// session.Visibility and a URL-query session.TokenLocator against the real
// browser primitives the spec assumes (localStorage, BroadcastChannel,
// storage events, document.visibilitychange), via syscall/js. This is the
// only package in the module that imports syscall/js; everything else is
// pure Go and unit-testable on any platform (SPEC_FULL.md "Target shape").
package wasm

import (
	"context"
	"fmt"
	"syscall/js"
)

func jsGlobal() js.Value { return js.Global() }

func localStorage() js.Value {
	return jsGlobal().Get("localStorage")
}

// Store implements store.Store over window.localStorage (spec §3's
// persistent single-origin storage, `gw_marketplace_jwt`).
type Store struct{}

// NewStore constructs a Store bound to window.localStorage.
func NewStore() *Store { return &Store{} }

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v := localStorage().Call("getItem", key)
	if v.IsNull() || v.IsUndefined() {
		return "", false, nil
	}
	return v.String(), true, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := callCatching(localStorage(), "setItem", key, value); err != nil {
		return fmt.Errorf("localStorage.setItem %s: %w", key, err)
	}
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := callCatching(localStorage(), "removeItem", key); err != nil {
		return fmt.Errorf("localStorage.removeItem %s: %w", key, err)
	}
	return nil
}

// callCatching invokes a JS method and turns a thrown exception into a Go
// error instead of letting js.Value.Call panic, since localStorage.setItem
// can throw QuotaExceededError in private-browsing contexts.
func callCatching(v js.Value, method string, args ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	v.Call(method, args...)
	return nil
}
