// Package heartbeat implements the periodic liveness POST of spec §4.4: an
// immediate beat on start, then one every intervalMs, with a bounded failure
// budget before the loop gives up and calls back to the owner.
//
// Grounded on the teacher's internal/tracker.ConnectionTracker (same
// ticker-driven background-goroutine shape as package timer) and, for the
// late-response-after-stop problem, the generation-counter idiom the teacher
// does not itself use but that every ticker-driven loop in this module needs
// once stop() must make in-flight responses inert rather than merely racy.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/sdkerr"
)

// Result is what a Beat function reports back about a single heartbeat.
type Result struct {
	// RemainingSeconds is the authoritative remaining-time the server
	// reported, valid only when HasRemaining is true.
	RemainingSeconds int64
	// HasRemaining reports whether the server sent a finite non-negative
	// remaining_seconds field.
	HasRemaining bool
}

// BeatFunc performs one heartbeat POST and returns the parsed result, or an
// error for any non-2xx response or transport failure.
type BeatFunc func(ctx context.Context) (Result, error)

const defaultMaxFailures = 3

// Options configures a new Loop.
type Options struct {
	IntervalMs int64
	MaxFailures int
	Beat        BeatFunc
	// OnSync is invoked with the server's reported remaining_seconds on
	// every successful response that carries one.
	OnSync func(remainingSeconds int64)
	// OnError is invoked once, when failureCount reaches MaxFailures, and
	// the loop then stops itself.
	OnError func(err error)
}

// Loop is the heartbeat loop. The zero value is not usable; build one with New.
type Loop struct {
	intervalMs  int64
	maxFailures int
	beat        BeatFunc
	onSync      func(int64)
	onError     func(error)

	mu           sync.Mutex
	running      bool
	failureCount int
	generation   uint64
	stopCh       chan struct{}
}

// New constructs a stopped Loop.
func New(opts Options) *Loop {
	maxFailures := opts.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	return &Loop{
		intervalMs:  opts.IntervalMs,
		maxFailures: maxFailures,
		beat:        opts.Beat,
		onSync:      opts.OnSync,
		onError:     opts.OnError,
	}
}

// Start fires an immediate heartbeat and schedules periodic ones at
// intervalMs. A second Start while already running is a no-op (spec §4.4).
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.failureCount = 0
	l.generation++
	gen := l.generation
	l.stopCh = make(chan struct{})
	stopCh := l.stopCh
	interval := l.intervalMs
	l.mu.Unlock()

	go l.run(gen, stopCh, interval)
}

// Stop cancels the timer and marks the loop disabled. In-flight responses
// tagged with a now-stale generation are dropped on arrival and can never
// re-enable the loop (spec §4.4, §9 open question).
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.generation++
	if l.stopCh != nil {
		close(l.stopCh)
		l.stopCh = nil
	}
}

// IsRunning reports whether the loop is currently active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// UpdateInterval stops and restarts the loop with a new interval if it was
// running (spec §4.4).
func (l *Loop) UpdateInterval(intervalMs int64) {
	l.mu.Lock()
	wasRunning := l.running
	l.intervalMs = intervalMs
	l.mu.Unlock()

	if wasRunning {
		l.Stop()
		l.Start()
	}
}

func (l *Loop) run(gen uint64, stopCh chan struct{}, intervalMs int64) {
	l.fire(gen)

	interval := time.Duration(intervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-t.C:
			l.fire(gen)
		}
	}
}

func (l *Loop) fire(gen uint64) {
	result, err := l.beat(context.Background())

	l.mu.Lock()
	if l.generation != gen {
		// A stop()/start() happened since this beat was sent; drop it.
		l.mu.Unlock()
		return
	}

	if err != nil {
		l.failureCount++
		stillRunning := l.failureCount < l.maxFailures
		if !stillRunning {
			l.running = false
			if l.stopCh != nil {
				close(l.stopCh)
				l.stopCh = nil
			}
		}
		failureCount := l.failureCount
		l.mu.Unlock()

		logger.Heartbeat().Warn().Err(err).Int("failureCount", failureCount).Msg("heartbeat request failed")
		if !stillRunning && l.onError != nil {
			l.onError(sdkerr.HeartbeatFailed(err))
		}
		return
	}

	l.failureCount = 0
	l.mu.Unlock()

	if result.HasRemaining && l.onSync != nil {
		l.onSync(result.RemainingSeconds)
	}
}
