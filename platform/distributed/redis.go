// Package distributed implements store.Store, tabsync.Transport, and
// tabsync.Lease over Redis and NATS, for a host that runs the Session
// Controller as part of a clustered backend-for-frontend fleet instead of
// literally inside N browser tabs. The master-election and fan-out
// algorithm in package tabsync is unchanged; only the transport differs
// (SPEC_FULL.md "Target shape").
//
// Store and Lease are built directly on the teacher's internal/cache.Cache
// rather than a second hand-rolled Redis client, reusing its connection
// pool settings, dial/read/write timeouts, and retry backoff as-is - a
// session-coordination Redis client has the identical availability
// requirements as the teacher's general-purpose cache. Where cache.Cache's
// miss handling collapses "not found" and "transient error" into a single
// non-nil error, Store and Lease follow the same graceful-degradation
// idiom the teacher's own callers use (internal/auth/session_store.go:
// treat err != nil as a miss rather than distinguishing further).
package distributed

import (
	"context"
	"strconv"

	"github.com/gwsession/sdk/internal/cache"
)

// RedisConfig configures the shared cache.Cache backing both Store and
// Lease (spec §3's persistent single-origin storage, generalized to a
// cluster-shared key-value store).
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewRedisClient opens a pooled Redis connection via cache.NewCache, using
// the teacher's exact connection pool settings.
func NewRedisClient(cfg RedisConfig) (*cache.Cache, error) {
	return cache.NewCache(cache.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
		Enabled:  true,
	})
}

// Store implements store.Store over cache.Cache, one key per string value -
// no TTL, since the spec's storage keys are cleared explicitly by the
// owning Controller rather than expired.
type Store struct {
	cache *cache.Cache
}

// NewStore wraps an already-connected cache.Cache as a store.Store.
func NewStore(c *cache.Cache) *Store {
	return &Store{cache: c}
}

// Get implements store.Store. A cache miss and a transient Redis error are
// both reported as "absent" (ok=false, err=nil), the same fallback posture
// cache.Cache documents for its own disabled mode.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	if err := s.cache.Get(ctx, key, &value); err != nil {
		return "", false, nil
	}
	return value, true, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.cache.Set(ctx, key, value, 0)
}

// Delete implements store.Store. Deleting an absent key is not an error
// (spec P10).
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}

// Lease implements tabsync.Lease over a cache.Cache key holding a Unix-ms
// timestamp, giving the master-election protocol (spec §4.5) the same
// cross-process visibility a browser's localStorage gives cross-tab.
type Lease struct {
	cache *cache.Cache
	key   string
}

// NewLease constructs a Lease bound to key.
func NewLease(c *cache.Cache, key string) *Lease {
	return &Lease{cache: c, key: key}
}

// Read implements tabsync.Lease.
func (l *Lease) Read(ctx context.Context) (int64, bool, error) {
	var raw string
	if err := l.cache.Get(ctx, l.key, &raw); err != nil {
		return 0, false, nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return ts, true, nil
}

// Write implements tabsync.Lease. This is an unconditional overwrite (not
// SetNX) since tabsync.Bus uses it both to refresh a held lease and to
// seize a stale one.
func (l *Lease) Write(ctx context.Context, timestampMs int64) error {
	return l.cache.Set(ctx, l.key, strconv.FormatInt(timestampMs, 10), 0)
}

// Clear implements tabsync.Lease.
func (l *Lease) Clear(ctx context.Context) error {
	return l.cache.Delete(ctx, l.key)
}
