package distributed

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gwsession/sdk/internal/logger"
)

// NATSConfig configures the shared NATS connection backing Transport (spec
// §4.5's cross-context broadcast channel, generalized from
// BroadcastChannel to a pub/sub subject per session id).
type NATSConfig struct {
	URL      string
	User     string
	Password string
}

// NewNATSConn connects to NATS with the teacher's reconnect/backoff policy
// (internal/events.NewSubscriber), logged through this module's own
// structured logger instead of the teacher's log.Printf calls.
func NewNATSConn(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("gwsession-sdk"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.TabSync().Warn().Err(err).Msg("nats transport disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.TabSync().Info().Str("url", nc.ConnectedUrl()).Msg("nats transport reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.TabSync().Warn().Err(err).Msg("nats transport error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	return conn, nil
}

// Transport implements tabsync.Transport over a NATS subject named for the
// session id (spec §4.5: "gw-session-<sessionId>").
type Transport struct {
	conn    *nats.Conn
	subject string
}

// NewTransport binds conn to the subject for sessionID.
func NewTransport(conn *nats.Conn, sessionID string) *Transport {
	return &Transport{conn: conn, subject: "gw-session-" + sessionID}
}

// Publish implements tabsync.Transport.
func (t *Transport) Publish(ctx context.Context, payload []byte) error {
	if err := t.conn.Publish(t.subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", t.subject, err)
	}
	return nil
}

// Subscribe implements tabsync.Transport. NATS delivers a connection's own
// publishes to that connection's subscriptions, so with a shared *nats.Conn
// every Bus also receives its own messages; no self-filtering is done here
// or in tabsync.Bus beyond its sessionId check.
func (t *Transport) Subscribe(ctx context.Context, handler func(payload []byte)) (func(), error) {
	sub, err := t.conn.Subscribe(t.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", t.subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.TabSync().Warn().Err(err).Str("subject", t.subject).Msg("failed to unsubscribe")
		}
	}, nil
}

// Close implements tabsync.Transport. The underlying *nats.Conn is shared
// across every session's Transport, so Close is a per-Transport no-op;
// Subscribe's returned unsubscribe function is what actually tears down
// this Transport's listener (spec §4.5 destroy() calls both).
func (t *Transport) Close() error {
	return nil
}
