//go:build js && wasm

package wasm

import (
	"context"
	"fmt"
	"strconv"
)

// Lease implements tabsync.Lease over a window.localStorage key holding a
// Unix-ms timestamp, the master-election primitive of spec §4.5.
type Lease struct {
	key string
}

// NewLease constructs a Lease bound to key.
func NewLease(key string) *Lease {
	return &Lease{key: key}
}

// Read implements tabsync.Lease.
func (l *Lease) Read(ctx context.Context) (int64, bool, error) {
	v := localStorage().Call("getItem", l.key)
	if v.IsNull() || v.IsUndefined() {
		return 0, false, nil
	}
	ts, err := strconv.ParseInt(v.String(), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("lease key %s holds a non-numeric value: %w", l.key, err)
	}
	return ts, true, nil
}

// Write implements tabsync.Lease.
func (l *Lease) Write(ctx context.Context, timestampMs int64) error {
	if err := callCatching(localStorage(), "setItem", l.key, strconv.FormatInt(timestampMs, 10)); err != nil {
		return fmt.Errorf("localStorage.setItem %s: %w", l.key, err)
	}
	return nil
}

// Clear implements tabsync.Lease.
func (l *Lease) Clear(ctx context.Context) error {
	if err := callCatching(localStorage(), "removeItem", l.key); err != nil {
		return fmt.Errorf("localStorage.removeItem %s: %w", l.key, err)
	}
	return nil
}
