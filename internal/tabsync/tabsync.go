// Package tabsync implements the Tab Sync Bus of spec §4.5: cross-tab
// message fan-out and master-tab election over a pluggable Transport/Lease
// pair, so the same election algorithm runs unmodified whether the
// underlying channel is a real browser BroadcastChannel, a gorilla/websocket
// relay, or NATS.
//
// Grounded on the teacher's internal/events package (nats-io/nats.go
// connect/reconnect/subscribe idiom, tagged JSON envelopes per subject) for
// the publish/subscribe shape, and internal/cache.Cache's SetNX-based
// distributed lock for the master-lease election, generalized from a single
// global lock to a liveness-beacon lease that can be seized after a staleness
// window.
package tabsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gwsession/sdk/internal/logger"
)

// Message types (spec §4.5).
const (
	MsgPause       = "pause"
	MsgResume      = "resume"
	MsgEnd         = "end"
	MsgTimerUpdate = "timer_update"
)

// Envelope is the wire shape of every tab-sync message.
type Envelope struct {
	Type             string `json:"type"`
	SessionID        string `json:"sessionId"`
	Timestamp        int64  `json:"timestamp"`
	RemainingSeconds int64  `json:"remainingSeconds,omitempty"`
}

// Transport delivers envelopes to every other subscriber bound to the
// channel name it was constructed for. Implementations must filter nothing
// themselves — tabsync.Bus filters by sessionId after receipt, per spec
// §4.5 ("Messages for other session ids must be filtered out on receipt").
type Transport interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe registers handler for every message published on this
	// transport's channel (including, for broadcast-style transports,
	// this process's own publishes). Bus does not recognize or drop
	// self-originated messages: where the concrete transport echoes a
	// publish back, the publishing Bus's own handlers receive it too.
	Subscribe(ctx context.Context, handler func(payload []byte)) (unsubscribe func(), err error)
	// Close detaches the channel/listener (spec §4.5 destroy()).
	Close() error
}

// Lease is the master-election primitive: a single named key holding a
// liveness timestamp, shared by every platform adapter (spec §4.5).
type Lease interface {
	// Read returns the stored timestamp (unix ms) and whether the key
	// exists.
	Read(ctx context.Context) (timestampMs int64, ok bool, err error)
	// Write unconditionally sets the key to timestampMs.
	Write(ctx context.Context, timestampMs int64) error
	// Clear removes the key.
	Clear(ctx context.Context) error
}

const (
	masterRefreshInterval = 5 * time.Second
	masterStaleAfter      = 10 * time.Second
)

// NowFunc lets tests substitute a deterministic clock.
type NowFunc func() time.Time

// Options configures a new Bus.
type Options struct {
	SessionID string
	Transport Transport
	Lease     Lease
	Now       NowFunc

	OnPause       func()
	OnResume      func()
	OnEnd         func()
	OnTimerUpdate func(remainingSeconds int64)

	// OnBecomeMaster fires whenever this Bus transitions from non-master to
	// master, whether by the initial election or by seizing a stale lease
	// (spec S2: "B becomes master and starts its heartbeat"). OnLoseMaster
	// is the converse hook, for a future transition back to non-master; the
	// election algorithm never demotes a live master today, so it is never
	// called, but the Controller still wires it for symmetry.
	OnBecomeMaster func()
	OnLoseMaster   func()
}

// Bus is the Tab Sync Bus: message fan-out plus master election.
type Bus struct {
	sessionID string
	transport Transport
	lease     Lease
	now       NowFunc

	onPause        func()
	onResume       func()
	onEnd          func()
	onTimerUpdate  func(int64)
	onBecomeMaster func()
	onLoseMaster   func()

	mu          sync.Mutex
	isMaster    bool
	unsubscribe func()
	stopCh      chan struct{}
}

// New constructs and starts a Bus: it performs the initial master-election
// read/claim (spec §4.5 step 1), subscribes to the transport, and begins the
// 5s election tick.
func New(ctx context.Context, opts Options) (*Bus, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	b := &Bus{
		sessionID:      opts.SessionID,
		transport:      opts.Transport,
		lease:          opts.Lease,
		now:            now,
		onPause:        opts.OnPause,
		onResume:       opts.OnResume,
		onEnd:          opts.OnEnd,
		onTimerUpdate:  opts.OnTimerUpdate,
		onBecomeMaster: opts.OnBecomeMaster,
		onLoseMaster:   opts.OnLoseMaster,
		stopCh:         make(chan struct{}),
	}

	unsub, err := b.transport.Subscribe(ctx, b.handleRaw)
	if err != nil {
		return nil, err
	}
	b.unsubscribe = unsub

	if err := b.electInitial(ctx); err != nil {
		unsub()
		return nil, err
	}

	go b.electionLoop(ctx)

	return b, nil
}

// electInitial performs step 1 of spec §4.5's election protocol: read the
// master key, and claim it if absent.
func (b *Bus) electInitial(ctx context.Context) error {
	_, ok, err := b.lease.Read(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := b.lease.Write(ctx, b.now().UnixMilli()); err != nil {
		return err
	}
	b.mu.Lock()
	b.isMaster = true
	b.mu.Unlock()
	logger.TabSync().Info().Str("sessionId", b.sessionID).Msg("claimed initial mastership")
	if b.onBecomeMaster != nil {
		b.onBecomeMaster()
	}
	return nil
}

func (b *Bus) electionLoop(ctx context.Context) {
	t := time.NewTicker(masterRefreshInterval)
	defer t.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			b.electionTick(ctx)
		}
	}
}

func (b *Bus) electionTick(ctx context.Context) {
	b.mu.Lock()
	master := b.isMaster
	b.mu.Unlock()

	if master {
		// Step 2: refresh the liveness beacon.
		if err := b.lease.Write(ctx, b.now().UnixMilli()); err != nil {
			logger.TabSync().Warn().Err(err).Msg("failed to refresh master lease")
		}
		return
	}

	// Step 3: seize mastership if the lease is stale.
	ts, ok, err := b.lease.Read(ctx)
	if err != nil {
		logger.TabSync().Warn().Err(err).Msg("failed to read master lease")
		return
	}
	age := time.Duration(b.now().UnixMilli()-ts) * time.Millisecond
	if ok && age < masterStaleAfter {
		return
	}
	if err := b.lease.Write(ctx, b.now().UnixMilli()); err != nil {
		logger.TabSync().Warn().Err(err).Msg("failed to seize master lease")
		return
	}
	b.mu.Lock()
	b.isMaster = true
	b.mu.Unlock()
	logger.TabSync().Info().Str("sessionId", b.sessionID).Msg("seized mastership from stale lease")
	if b.onBecomeMaster != nil {
		b.onBecomeMaster()
	}
}

// IsMasterTab reports whether this Bus currently holds mastership.
func (b *Bus) IsMasterTab() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isMaster
}

func (b *Bus) handleRaw(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.TabSync().Warn().Err(err).Msg("discarding malformed tab-sync message")
		return
	}
	if env.SessionID != b.sessionID {
		return
	}
	switch env.Type {
	case MsgPause:
		if b.onPause != nil {
			b.onPause()
		}
	case MsgResume:
		if b.onResume != nil {
			b.onResume()
		}
	case MsgEnd:
		if b.onEnd != nil {
			b.onEnd()
		}
	case MsgTimerUpdate:
		if b.onTimerUpdate != nil {
			b.onTimerUpdate(env.RemainingSeconds)
		}
	default:
		logger.TabSync().Warn().Str("type", env.Type).Msg("unknown tab-sync message type")
	}
}

func (b *Bus) publish(ctx context.Context, env Envelope) error {
	env.SessionID = b.sessionID
	env.Timestamp = b.now().UnixMilli()
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.transport.Publish(ctx, payload)
}

// BroadcastPause tells peers to pause their Timer.
func (b *Bus) BroadcastPause(ctx context.Context) error {
	return b.publish(ctx, Envelope{Type: MsgPause})
}

// BroadcastResume tells peers to resume their Timer.
func (b *Bus) BroadcastResume(ctx context.Context) error {
	return b.publish(ctx, Envelope{Type: MsgResume})
}

// BroadcastEnd tells peers to terminate their session.
func (b *Bus) BroadcastEnd(ctx context.Context) error {
	return b.publish(ctx, Envelope{Type: MsgEnd})
}

// BroadcastTimerUpdate tells peers to overwrite their Timer's remaining time.
func (b *Bus) BroadcastTimerUpdate(ctx context.Context, remainingSeconds int64) error {
	return b.publish(ctx, Envelope{Type: MsgTimerUpdate, RemainingSeconds: remainingSeconds})
}

// Destroy closes the transport and, if this tab is master, clears the
// master key (spec §4.5 destroy()).
func (b *Bus) Destroy(ctx context.Context) error {
	close(b.stopCh)
	if b.unsubscribe != nil {
		b.unsubscribe()
	}

	b.mu.Lock()
	master := b.isMaster
	b.mu.Unlock()
	if master {
		if err := b.lease.Clear(ctx); err != nil {
			return err
		}
	}
	return b.transport.Close()
}
