// Package session is the Session Controller (spec §4.6): the top-level
// orchestrator a host page constructs once per session. It owns the session
// record, wires Verifier → Timer → Heartbeat → Sync, implements
// initialize/pause/resume/extend/complete/end, runs lifecycle hooks with
// timeouts, routes modal callbacks, and persists the token for redirect
// survival.
//
// Grounded on the teacher's service-layer constructors (e.g.
// internal/services), which take a struct of already-built collaborators
// rather than building them internally — this package follows the same
// shape: New takes a fully-wired Options (Store, Verifier, Rest, hooks,
// platform adapters) rather than reaching into global state.
package session

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gwsession/sdk/internal/audit"
	"github.com/gwsession/sdk/internal/config"
	"github.com/gwsession/sdk/internal/heartbeat"
	"github.com/gwsession/sdk/internal/hooks"
	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/rest"
	"github.com/gwsession/sdk/internal/sdkerr"
	"github.com/gwsession/sdk/internal/store"
	"github.com/gwsession/sdk/internal/tabsync"
	"github.com/gwsession/sdk/internal/timer"
	"github.com/gwsession/sdk/internal/tokencodec"
	"github.com/gwsession/sdk/internal/verifier"
)

const defaultEndingDelay = 3 * time.Second

// Reason identifies why a session was terminated (spec §4.6.3).
type Reason string

const (
	ReasonExpired Reason = "expired"
	ReasonManual  Reason = "manual"
	ReasonError   Reason = "error"
)

// SessionData is the flattened, verified claims the Controller materializes
// exactly once inside Initialize (spec §3: "Session record").
type SessionData struct {
	SessionID       string
	ApplicationID   string
	UserID          string
	OrgID           string
	StartTime       int64
	DurationMinutes int
	IssuedAt        int64
	ExpiresAt       int64
	Issuer          string
	Subject         string
}

// TerminationInfo is the terminal context record built at the start of the
// termination path (spec §4.6.3 step 1).
type TerminationInfo struct {
	SessionID             string
	UserID                string
	Reason                Reason
	ActualDurationMinutes int64
}

// ExtendInfo is passed to the onSessionExtend hook (spec §4.6.2 extendSession
// step 6).
type ExtendInfo struct {
	AdditionalMinutes int
	NewExpiresAt      int64
}

// Hooks are the host-supplied lifecycle callbacks (spec §4.6.1, §4.6.5).
// Only OnSessionStart is run in strict mode; the rest are lenient. A nil
// hook is a silent no-op.
type Hooks struct {
	OnSessionStart   func(ctx context.Context, data SessionData) error
	OnSessionEnd     func(ctx context.Context, info TerminationInfo) error
	OnSessionExtend  func(ctx context.Context, info ExtendInfo) error
	OnSessionWarning func(ctx context.Context, remainingSeconds int64) error
}

// Describe reports which hooks are wired, in the boolean-flag shape
// config.Hooks uses for introspection/serialization contexts (e.g. an
// admin surface listing which lifecycle hooks a deployed host has
// registered, without being able to serialize the callables themselves).
func (h Hooks) Describe() config.Hooks {
	return config.Hooks{
		HasOnSessionStart:   h.OnSessionStart != nil,
		HasOnSessionEnd:     h.OnSessionEnd != nil,
		HasOnSessionExtend:  h.OnSessionExtend != nil,
		HasOnSessionWarning: h.OnSessionWarning != nil,
	}
}

// ModalState is what Show passes to the external modal collaborator (spec
// §4.6.4, §6 "External modal contract").
type ModalState struct {
	RemainingSeconds int64
	OnExtend         func()
	OnEnd            func()
}

// Modal is the out-of-scope warning/ending UI (spec §1, §6). The Controller
// drives it; it never renders anything itself.
type Modal interface {
	Show(state ModalState)
	Hide()
	ShowEndingMessage(callback func(), delay time.Duration)
}

// Visibility reports document.visibilitychange-shaped events (spec §4.6.2
// step 10). hidden is true when the page becomes hidden, false when it
// becomes visible again.
type Visibility interface {
	OnChange(handler func(hidden bool)) (unsubscribe func())
}

// TokenLocator returns the session token found in the URL query parameter,
// or ok=false if none is present (spec §4.6.2 step 1, first source).
type TokenLocator func() (token string, ok bool)

// RedirectFunc hands control back to the marketplace (spec §4.6.3 step 7,
// §4.6.4).
type RedirectFunc func(targetURL string)

// SyncFactory builds the platform-specific Transport/Lease pair for one
// session id (spec §4.5); concrete implementations live under platform/*.
type SyncFactory func(ctx context.Context, sessionID string) (tabsync.Transport, tabsync.Lease, error)

// Options wires a Controller's collaborators. Store, Verifier (or Rest, for
// useBackendValidation), and Config are required; everything else is
// optional and its feature is simply disabled when left nil.
type Options struct {
	Config config.Session

	Store    store.Store
	Verifier *verifier.Verifier
	Rest     *rest.Client

	TokenLocator TokenLocator
	NewSync      SyncFactory
	Visibility   Visibility
	Modal        Modal
	Redirect     RedirectFunc
	Audit        audit.Sink

	Hooks Hooks

	OnSessionStart   func(data SessionData)
	OnSessionWarning func(remainingSeconds int64)
	OnSessionEnd     func()
	OnError          func(err error)
}

// Controller is the Session Controller (spec §4.6). The zero value is not
// usable; build one with New.
type Controller struct {
	config       config.Session
	store        store.Store
	verifier     *verifier.Verifier
	rest         *rest.Client
	tokenLocator TokenLocator
	newSync      SyncFactory
	visibility   Visibility
	modal        Modal
	redirect     RedirectFunc
	audit        audit.Sink
	hooks        Hooks
	hookRunner   *hooks.Runner

	onSessionStart   func(data SessionData)
	onSessionWarning func(remainingSeconds int64)
	onSessionEnd     func()
	onError          func(err error)

	mu        sync.Mutex
	record    *SessionData
	startedAt time.Time
	ended     bool
	timer     *timer.Timer
	heartbeat *heartbeat.Loop
	bus       *tabsync.Bus
}

// New constructs a Controller. It performs no I/O; call Initialize to
// establish a session.
func New(opts Options) *Controller {
	auditSink := opts.Audit
	if auditSink == nil {
		auditSink = audit.NoopSink{}
	}
	return &Controller{
		config:           opts.Config,
		store:            opts.Store,
		verifier:         opts.Verifier,
		rest:             opts.Rest,
		tokenLocator:     opts.TokenLocator,
		newSync:          opts.NewSync,
		visibility:       opts.Visibility,
		modal:            opts.Modal,
		redirect:         opts.Redirect,
		audit:            auditSink,
		hooks:            opts.Hooks,
		hookRunner:       hooks.New(opts.Config.HookTimeout()),
		onSessionStart:   opts.OnSessionStart,
		onSessionWarning: opts.OnSessionWarning,
		onSessionEnd:     opts.OnSessionEnd,
		onError:          opts.OnError,
	}
}

// Initialize runs the full establishment sequence of spec §4.6.2: locate
// token, persist it, verify it, build the session record, construct the
// Timer/Heartbeat/Sync, and (if autoStart) start them. Any failure
// short-circuits and is returned, and also surfaced to OnError.
func (c *Controller) Initialize(ctx context.Context) (*SessionData, error) {
	log := logger.Session()

	token, err := c.locateToken(ctx)
	if err != nil {
		c.reportError(err)
		return nil, err
	}

	if c.store != nil {
		if err := c.store.Set(ctx, store.TokenStorageKey, token); err != nil {
			c.reportError(err)
			return nil, err
		}
	}

	claims, err := c.verifyToken(ctx, token)
	if err != nil {
		c.reportError(err)
		return nil, err
	}

	data := sessionDataFromClaims(claims)
	remaining := remainingSeconds(claims.ExpiresAt)
	if remaining <= 0 {
		err := sdkerr.SessionExpired()
		c.reportError(err)
		return nil, err
	}

	if err := c.hookRunner.RunStrict(ctx, "onSessionStart", func(ctx context.Context) error {
		if c.hooks.OnSessionStart == nil {
			return nil
		}
		return c.hooks.OnSessionStart(ctx, data)
	}); err != nil {
		c.reportError(err)
		return nil, err
	}

	c.mu.Lock()
	c.record = &data
	c.startedAt = time.Now()
	c.ended = false
	c.mu.Unlock()

	t := timer.New(timer.Options{
		DurationSeconds:         remaining,
		WarningThresholdSeconds: c.config.WarningThresholdSeconds,
		OnWarning:               c.handleWarning,
		OnEnd:                   c.handleTimerEnd,
	})
	c.mu.Lock()
	c.timer = t
	c.mu.Unlock()

	var hb *heartbeat.Loop
	if c.config.EnableHeartbeat && c.rest != nil {
		hb = heartbeat.New(heartbeat.Options{
			IntervalMs: c.config.HeartbeatIntervalSeconds * 1000,
			Beat:       c.rest.Beat(data.SessionID),
			OnSync: func(n int64) {
				t.UpdateRemainingTime(n)
			},
			OnError: c.reportError,
		})
		c.mu.Lock()
		c.heartbeat = hb
		c.mu.Unlock()
	}

	isMaster := true
	if c.config.EnableTabSync && c.newSync != nil {
		bus, err := c.buildBus(ctx, data.SessionID, t, hb)
		if err != nil {
			log.Warn().Err(err).Msg("failed to construct tab sync bus, continuing without cross-tab coordination")
			c.reportError(err)
		} else {
			c.mu.Lock()
			c.bus = bus
			c.mu.Unlock()
			isMaster = bus.IsMasterTab()
		}
	}

	if c.config.PauseOnHidden && c.visibility != nil {
		c.visibility.OnChange(func(hidden bool) {
			if hidden {
				c.PauseTimer(context.Background())
			} else {
				c.ResumeTimer(context.Background())
			}
		})
	}

	if c.config.AutoStart {
		t.Start()
		if hb != nil && (!c.config.EnableTabSync || isMaster) {
			hb.Start()
		}
	}

	c.audit.Record(ctx, audit.Event{SessionID: data.SessionID, Action: "initialize", Timestamp: time.Now()})

	if c.onSessionStart != nil {
		c.onSessionStart(data)
	}

	return &data, nil
}

func (c *Controller) locateToken(ctx context.Context) (string, error) {
	if c.tokenLocator != nil {
		if tok, ok := c.tokenLocator(); ok && tok != "" {
			return tok, nil
		}
	}
	if c.store != nil {
		v, ok, err := c.store.Get(ctx, store.TokenStorageKey)
		if err != nil {
			return "", err
		}
		if ok && v != "" {
			return v, nil
		}
	}
	return "", sdkerr.MissingToken()
}

func (c *Controller) verifyToken(ctx context.Context, token string) (*tokencodec.Claims, error) {
	if c.config.UseBackendValidation {
		if c.rest == nil {
			return nil, sdkerr.BackendValidationFailed(fmt.Errorf("useBackendValidation is set but no REST client was configured"))
		}
		if _, err := c.rest.Validate(ctx); err != nil {
			return nil, err
		}
		claims, err := tokencodec.Decode(token)
		if err != nil {
			return nil, err
		}
		// Defense in depth (spec §9 open question, option (a)): the
		// application-id binding is enforced locally even though the
		// server already said the session is valid.
		if c.config.ApplicationID != "" && claims.ApplicationID != c.config.ApplicationID {
			return nil, sdkerr.ApplicationMismatch(c.config.ApplicationID, claims.ApplicationID)
		}
		return claims, nil
	}

	if c.verifier == nil {
		return nil, sdkerr.InvalidSignature(fmt.Errorf("no signature verifier configured"))
	}
	return c.verifier.Verify(ctx, token, c.config.ExpectedIssuer, c.config.ApplicationID)
}

func (c *Controller) buildBus(ctx context.Context, sessionID string, t *timer.Timer, hb *heartbeat.Loop) (*tabsync.Bus, error) {
	transport, lease, err := c.newSync(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return tabsync.New(ctx, tabsync.Options{
		SessionID: sessionID,
		Transport: transport,
		Lease:     lease,
		OnPause:   t.Pause,
		OnResume:  t.Resume,
		OnEnd: func() {
			c.endSession(context.Background(), ReasonManual)
		},
		OnTimerUpdate: t.UpdateRemainingTime,
		// Keeps the Heartbeat confined to whichever tab holds mastership
		// at any given moment (spec P7, S2), not just the tab that won
		// the initial election. Gated on AutoStart the same way the
		// initial Start() call below is, so a controller built with
		// autoStart=false never starts a Heartbeat on its own.
		OnBecomeMaster: func() {
			if hb != nil && c.config.AutoStart {
				hb.Start()
			}
		},
		OnLoseMaster: func() {
			if hb != nil {
				hb.Stop()
			}
		},
	})
}

// handleWarning is the Timer's onWarning callback (spec §4.6.2 step 7): run
// the onSessionWarning hook leniently, show the modal, and emit the event.
func (c *Controller) handleWarning(remaining int64) {
	ctx := context.Background()
	c.hookRunner.RunLenient(ctx, "onSessionWarning", func(ctx context.Context) error {
		if c.hooks.OnSessionWarning == nil {
			return nil
		}
		return c.hooks.OnSessionWarning(ctx, remaining)
	})

	if c.modal != nil {
		c.modal.Show(ModalState{
			RemainingSeconds: remaining,
			OnExtend:         func() { c.handleModalExtend(ctx) },
			OnEnd:            func() { c.EndSession(ctx) },
		})
	}

	if c.onSessionWarning != nil {
		c.onSessionWarning(remaining)
	}
}

func (c *Controller) handleModalExtend(ctx context.Context) {
	if _, err := c.ExtendSession(ctx, 15); err != nil {
		c.mu.Lock()
		sessionID := ""
		if c.record != nil {
			sessionID = c.record.SessionID
		}
		c.mu.Unlock()

		if c.modal != nil {
			c.modal.ShowEndingMessage(func() {
				if c.redirect != nil {
					c.redirect(extensionURL(c.config.MarketplaceURL, sessionID))
				}
			}, defaultEndingDelay)
		}
		return
	}
	if c.modal != nil {
		c.modal.Hide()
	}
}

// handleTimerEnd is the Timer's onEnd callback: natural expiry (spec §4.6.2
// step 7, "end").
func (c *Controller) handleTimerEnd() {
	c.endSession(context.Background(), ReasonExpired)
}

// PauseTimer pauses the Timer and broadcasts pause to peers (spec §4.6.2).
func (c *Controller) PauseTimer(ctx context.Context) error {
	c.mu.Lock()
	t := c.timer
	bus := c.bus
	c.mu.Unlock()
	if t == nil {
		return sdkerr.NotInitialized()
	}
	t.Pause()
	if bus != nil {
		if err := bus.BroadcastPause(ctx); err != nil {
			logger.Session().Warn().Err(err).Msg("failed to broadcast pause")
		}
	}
	return nil
}

// ResumeTimer resumes the Timer and broadcasts resume to peers (spec
// §4.6.2).
func (c *Controller) ResumeTimer(ctx context.Context) error {
	c.mu.Lock()
	t := c.timer
	bus := c.bus
	c.mu.Unlock()
	if t == nil {
		return sdkerr.NotInitialized()
	}
	t.Resume()
	if bus != nil {
		if err := bus.BroadcastResume(ctx); err != nil {
			logger.Session().Warn().Err(err).Msg("failed to broadcast resume")
		}
	}
	return nil
}

// ExtendSession negotiates a session extension with the issuer (spec
// §4.6.2).
func (c *Controller) ExtendSession(ctx context.Context, additionalMinutes int) (*SessionData, error) {
	c.mu.Lock()
	record := c.record
	t := c.timer
	bus := c.bus
	c.mu.Unlock()

	if record == nil {
		return nil, sdkerr.NoSession()
	}
	if c.rest == nil {
		return nil, sdkerr.ExtensionFailed(fmt.Errorf("no REST client configured"))
	}

	resp, err := c.rest.Renew(ctx, record.SessionID, additionalMinutes)
	if err != nil {
		c.reportError(err)
		return nil, err
	}

	c.mu.Lock()
	record.ExpiresAt = resp.NewExpiresAt
	updated := *record
	c.mu.Unlock()

	newRemaining := remainingSeconds(resp.NewExpiresAt)
	if t != nil {
		t.UpdateRemainingTime(newRemaining)
	}
	if bus != nil {
		if err := bus.BroadcastTimerUpdate(ctx, newRemaining); err != nil {
			logger.Session().Warn().Err(err).Msg("failed to broadcast timer update after extension")
		}
	}

	c.hookRunner.RunLenient(ctx, "onSessionExtend", func(ctx context.Context) error {
		if c.hooks.OnSessionExtend == nil {
			return nil
		}
		return c.hooks.OnSessionExtend(ctx, ExtendInfo{
			AdditionalMinutes: additionalMinutes,
			NewExpiresAt:      resp.NewExpiresAt,
		})
	})

	c.audit.Record(ctx, audit.Event{
		SessionID: record.SessionID,
		Action:    "extend",
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"additionalMinutes": additionalMinutes, "newExpiresAt": resp.NewExpiresAt},
	})

	return &updated, nil
}

// CompleteSession negotiates manual completion with the issuer and, on
// success, runs the termination path with reason "manual" (spec §4.6.2).
func (c *Controller) CompleteSession(ctx context.Context, actualUsageMinutes *int) error {
	c.mu.Lock()
	record := c.record
	c.mu.Unlock()
	if record == nil {
		return sdkerr.NoSession()
	}
	if c.rest == nil {
		return sdkerr.CompletionFailed(fmt.Errorf("no REST client configured"))
	}

	if _, err := c.rest.Complete(ctx, record.SessionID, rest.CompleteRequest{ActualUsageMinutes: actualUsageMinutes}); err != nil {
		c.reportError(err)
		return err
	}

	c.endSession(ctx, ReasonManual)
	return nil
}

// EndSession invokes the termination path manually, e.g. from the modal's
// onEnd callback (spec §4.6.4).
func (c *Controller) EndSession(ctx context.Context) {
	c.endSession(ctx, ReasonManual)
}

// endSession is the single deterministic termination sequence of spec
// §4.6.3, identical regardless of trigger. It is idempotent: a second call
// is a no-op (spec P9).
func (c *Controller) endSession(ctx context.Context, reason Reason) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	record := c.record
	startedAt := c.startedAt
	t := c.timer
	hb := c.heartbeat
	bus := c.bus
	c.mu.Unlock()

	if record == nil {
		return
	}

	info := TerminationInfo{
		SessionID:             record.SessionID,
		UserID:                record.UserID,
		Reason:                reason,
		ActualDurationMinutes: int64(math.Ceil(time.Since(startedAt).Minutes())),
	}

	c.hookRunner.RunLenient(ctx, "onSessionEnd", func(ctx context.Context) error {
		if c.hooks.OnSessionEnd == nil {
			return nil
		}
		return c.hooks.OnSessionEnd(ctx, info)
	})

	if t != nil {
		t.Stop()
	}
	if hb != nil {
		hb.Stop()
	}
	if bus != nil {
		if err := bus.BroadcastEnd(ctx); err != nil {
			logger.Session().Warn().Err(err).Msg("failed to broadcast end")
		}
	}

	if c.store != nil {
		if err := c.store.Delete(ctx, store.TokenStorageKey); err != nil {
			logger.Session().Warn().Err(err).Msg("failed to clear persisted token on termination")
		}
	}

	c.audit.Record(ctx, audit.Event{
		SessionID: info.SessionID,
		Action:    "end",
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"reason": string(reason), "actualDurationMinutes": info.ActualDurationMinutes},
	})

	if c.onSessionEnd != nil {
		c.onSessionEnd()
	}

	if c.modal != nil {
		c.modal.ShowEndingMessage(func() {
			if c.redirect != nil {
				c.redirect(c.config.MarketplaceURL)
			}
		}, defaultEndingDelay)
	}
}

// Destroy tears down the Timer, Heartbeat, and Tab Sync Bus without running
// termination hooks or clearing persisted storage (spec §9: the Controller
// "destroys them in destroy()/termination" — this is the non-terminating
// half of that, for a host unmounting the Controller without ending the
// underlying session).
func (c *Controller) Destroy(ctx context.Context) {
	c.mu.Lock()
	t := c.timer
	hb := c.heartbeat
	bus := c.bus
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	if hb != nil {
		hb.Stop()
	}
	if bus != nil {
		if err := bus.Destroy(ctx); err != nil {
			logger.Session().Warn().Err(err).Msg("failed to tear down tab sync bus")
		}
	}
}

// SessionData returns a copy of the current session record, or nil if
// Initialize has not succeeded. The record is not cleared when the session
// ends.
func (c *Controller) SessionData() *SessionData {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return nil
	}
	data := *c.record
	return &data
}

// GetRemainingSeconds returns the Timer's current remaining seconds, or 0 if
// the Controller has not been initialized.
func (c *Controller) GetRemainingSeconds() int64 {
	c.mu.Lock()
	t := c.timer
	c.mu.Unlock()
	if t == nil {
		return 0
	}
	return t.GetRemainingSeconds()
}

// IsRunning reports whether the Timer is currently running, or false if the
// Controller has not been initialized or has since been stopped/terminated.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	t := c.timer
	c.mu.Unlock()
	if t == nil {
		return false
	}
	return t.IsRunning()
}

// IsMasterTab reports whether this Controller's tab currently holds
// mastership, or true if Tab Sync is disabled (the sole tab runs the
// heartbeat, per spec §4.6.2 step 11).
func (c *Controller) IsMasterTab() bool {
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus == nil {
		return true
	}
	return bus.IsMasterTab()
}

// IsHeartbeatRunning reports whether this Controller's Heartbeat loop is
// currently active, or false if heartbeat is disabled or not yet started.
func (c *Controller) IsHeartbeatRunning() bool {
	c.mu.Lock()
	hb := c.heartbeat
	c.mu.Unlock()
	if hb == nil {
		return false
	}
	return hb.IsRunning()
}

func (c *Controller) reportError(err error) {
	if err == nil {
		return
	}
	logger.Session().Error().Err(err).Msg("session controller error")
	if c.onError != nil {
		c.onError(err)
	}
}

func sessionDataFromClaims(claims *tokencodec.Claims) SessionData {
	return SessionData{
		SessionID:       claims.SessionID,
		ApplicationID:   claims.ApplicationID,
		UserID:          claims.UserID,
		OrgID:           claims.OrgID,
		StartTime:       claims.StartTime,
		DurationMinutes: claims.DurationMinutes,
		IssuedAt:        claims.IssuedAt,
		ExpiresAt:       claims.ExpiresAt,
		Issuer:          claims.Issuer,
		Subject:         claims.Subject,
	}
}

func remainingSeconds(expiresAt int64) int64 {
	remaining := expiresAt - time.Now().Unix()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func extensionURL(marketplaceURL, sessionID string) string {
	u, err := url.Parse(marketplaceURL)
	if err != nil {
		return marketplaceURL
	}
	q := u.Query()
	q.Set("sessionId", sessionID)
	q.Set("action", "extend")
	u.RawQuery = q.Encode()
	return u.String()
}
