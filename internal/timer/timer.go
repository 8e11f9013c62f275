// Package timer implements the countdown state machine of spec §4.3:
// Idle → Running ⇄ Paused → Stopped, ticking once a second while Running,
// latching a single warning at the configured threshold, and firing an end
// event at zero.
//
// Grounded on the teacher's internal/tracker.ConnectionTracker: a
// mutex-guarded struct driven by a single background goroutine built around
// time.NewTicker and a stop channel, the same shape this package uses for
// its own 1Hz tick loop.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/gwsession/sdk/internal/logger"
)

// State is a point-in-time snapshot of the timer, safe to copy.
type State struct {
	RemainingSeconds int64
	WarningShown     bool
	Running          bool
}

type status int

const (
	statusIdle status = iota
	statusRunning
	statusPaused
	statusStopped
)

// Timer is the countdown state machine. The zero value is not usable; build
// one with New.
type Timer struct {
	warningThreshold int64
	onWarning        func(remainingSeconds int64)
	onEnd            func()
	tickerFactory    func(d time.Duration) ticker

	mu               sync.Mutex
	status           status
	remainingSeconds int64
	warningShown     bool
	stopCh           chan struct{}
}

// ticker abstracts time.Ticker so tests can drive ticks deterministically.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func defaultTickerFactory(d time.Duration) ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Options configures a new Timer.
type Options struct {
	// DurationSeconds is the initial remainingSeconds at construction.
	DurationSeconds int64
	// WarningThresholdSeconds is the remainingSeconds value at or below
	// which onWarning fires exactly once.
	WarningThresholdSeconds int64
	// OnWarning fires when remainingSeconds first crosses the threshold
	// via natural ticking (spec §4.3 step 1).
	OnWarning func(remainingSeconds int64)
	// OnEnd fires when remainingSeconds reaches zero via natural ticking.
	OnEnd func()
}

// New constructs a Timer in the Idle state with remainingSeconds set to
// opts.DurationSeconds.
func New(opts Options) *Timer {
	return &Timer{
		warningThreshold: opts.WarningThresholdSeconds,
		onWarning:        opts.OnWarning,
		onEnd:            opts.OnEnd,
		tickerFactory:    defaultTickerFactory,
		status:           statusIdle,
		remainingSeconds: opts.DurationSeconds,
	}
}

// Start transitions Idle|Stopped → Running and begins ticking. A second
// Start while already Running is a no-op with a log warning (spec §4.3).
func (t *Timer) Start() {
	t.mu.Lock()
	if t.status == statusRunning {
		t.mu.Unlock()
		logger.Timer().Warn().Msg("start() called while timer already running")
		return
	}
	t.status = statusRunning
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	go t.run(stopCh)
}

// Pause transitions Running → Paused. No-op from any other state.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != statusRunning {
		return
	}
	t.status = statusPaused
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
}

// Resume transitions Paused → Running, but only if remainingSeconds > 0
// (spec §4.3).
func (t *Timer) Resume() {
	t.mu.Lock()
	if t.status != statusPaused || t.remainingSeconds <= 0 {
		t.mu.Unlock()
		return
	}
	t.status = statusRunning
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	go t.run(stopCh)
}

// Stop transitions any state → Stopped and halts ticking. It does not fire
// onEnd; that only happens via natural expiry (spec §4.3).
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = statusStopped
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
}

func (t *Timer) run(stopCh chan struct{}) {
	tick := t.tickerFactory(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-tick.C():
			if t.onTick() {
				return
			}
		}
	}
}

// onTick performs one decrement-and-check cycle. It returns true if the
// timer has ended and the run loop should exit.
func (t *Timer) onTick() bool {
	t.mu.Lock()
	if t.status != statusRunning {
		t.mu.Unlock()
		return true
	}
	t.remainingSeconds--
	remaining := t.remainingSeconds

	fireWarning := false
	if !t.warningShown && remaining <= t.warningThreshold && remaining > 0 {
		t.warningShown = true
		fireWarning = true
	}

	ended := remaining <= 0
	if ended {
		t.status = statusStopped
	}
	t.mu.Unlock()

	if fireWarning && t.onWarning != nil {
		t.onWarning(remaining)
	}
	if ended {
		if t.onEnd != nil {
			t.onEnd()
		}
		return true
	}
	return false
}

// UpdateRemainingTime sets remainingSeconds to max(0, n) atomically, without
// changing the running/paused/stopped status. It never fires onWarning even
// if the overwrite crosses the threshold downward (spec §4.3) — the next
// natural tick will.
func (t *Timer) UpdateRemainingTime(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		n = 0
	}
	t.remainingSeconds = n
}

// GetRemainingSeconds returns the current remainingSeconds.
func (t *Timer) GetRemainingSeconds() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingSeconds
}

// IsRunning reports whether the timer is in the Running state.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == statusRunning
}

// Snapshot returns a consistent point-in-time copy of the timer's state.
func (t *Timer) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		RemainingSeconds: t.remainingSeconds,
		WarningShown:     t.warningShown,
		Running:          t.status == statusRunning,
	}
}

// FormatMMSS renders remainingSeconds as mm:ss.
func FormatMMSS(remainingSeconds int64) string {
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	m := remainingSeconds / 60
	s := remainingSeconds % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatHHMMSS renders remainingSeconds as hh:mm:ss, suppressing the hours
// field to mm:ss form when hours is 0 (spec §4.3).
func FormatHHMMSS(remainingSeconds int64) string {
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	h := remainingSeconds / 3600
	m := (remainingSeconds % 3600) / 60
	s := remainingSeconds % 60
	if h == 0 {
		return fmt.Sprintf("%02d:%02d", m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
