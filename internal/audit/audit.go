// Package audit provides an optional, pluggable sink for session lifecycle
// events. It is additive: nothing in spec.md requires an audit trail, but
// every marketplace session event the Controller already observes
// (initialize, extend, complete, end, heartbeat failure) is exactly the
// shape of event the teacher's request-audit log records for HTTP
// requests, so this package adapts that same asynchronous-write pattern to
// session lifecycle events instead of HTTP requests.
//
// Grounded on the teacher's internal/middleware/auditlog.go (AuditLogger:
// structured event struct, JSON-serialized details column, async
// fire-and-forget database write) and internal/db/database.go (database/sql
// + lib/pq connection setup). The no-op Sink is this module's own addition,
// needed because — unlike the teacher's middleware, which always has a
// *db.Database — most embeddings of this SDK have no audit backend at all.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/gwsession/sdk/internal/logger"
)

// Event is a single session lifecycle occurrence.
type Event struct {
	SessionID string
	Action    string // e.g. "initialize", "extend", "complete", "end", "heartbeat_failure"
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Sink records lifecycle Events. Implementations must not block the
// Controller's critical path; Record is expected to enqueue and return
// promptly.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// NoopSink discards every event. It is the default when no audit backend is
// configured.
type NoopSink struct{}

// Record implements Sink by doing nothing.
func (NoopSink) Record(context.Context, Event) {}

// PostgresSink persists Events to a Postgres table asynchronously, mirroring
// the teacher's AuditLogger.logEvent: one INSERT per event, fired from a
// goroutine so a slow or unavailable database never adds latency to the
// session lifecycle path it's observing.
type PostgresSink struct {
	db *sql.DB
}

// PostgresConfig configures a PostgresSink connection.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgresSink opens a connection pool and verifies it with Ping.
func NewPostgresSink(cfg PostgresConfig) (*PostgresSink, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresSink) Close() error { return s.db.Close() }

// Record inserts event asynchronously; failures are logged, never returned,
// since a Sink must not become a reason the session lifecycle itself fails.
func (s *PostgresSink) Record(ctx context.Context, event Event) {
	go func() {
		details, err := json.Marshal(event.Metadata)
		if err != nil {
			logger.Audit().Warn().Err(err).Msg("failed to marshal audit metadata")
			return
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO session_audit_log (session_id, action, details, occurred_at)
			VALUES ($1, $2, $3, $4)
		`, event.SessionID, event.Action, details, event.Timestamp)
		if err != nil {
			logger.Audit().Warn().Err(err).Str("sessionId", event.SessionID).Str("action", event.Action).Msg("failed to write audit record")
		}
	}()
}
