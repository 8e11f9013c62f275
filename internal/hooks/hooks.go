// Package hooks implements the hook execution model of spec §4.6.5: every
// host-supplied lifecycle callback races against hookTimeoutMs, and either
// aborts the enclosing operation (strict) or is logged and swallowed
// (lenient).
//
// Grounded on the teacher's internal/middleware/timeout.go, which runs a
// handler in a goroutine and selects between its completion channel and a
// context.WithTimeout deadline; this package applies the identical race to
// a single host callback instead of an entire HTTP handler chain.
package hooks

import (
	"context"
	"time"

	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/sdkerr"
)

// Hook is a host-supplied lifecycle callback. ctx carries the per-invocation
// timeout; Hook should respect cancellation where it can but is not required
// to — a Hook that ignores ctx and keeps running after the timeout races
// does not block the caller (spec §4.6.5: "cancellation does not interrupt
// the host's in-flight work").
type Hook func(ctx context.Context) error

// Runner executes hooks against a single configured timeout.
type Runner struct {
	timeout time.Duration
}

// New constructs a Runner with the given per-hook timeout (spec's
// hookTimeoutMs, default 5000ms).
func New(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{timeout: timeout}
}

// RunStrict invokes hook (if non-nil) and returns a *sdkerr.Error
// (HookError or HookTimeout) if it fails, times out, or panics. A nil hook
// is a silent no-op (spec §4.6.5: "Hooks may be omitted").
func (r *Runner) RunStrict(ctx context.Context, name string, hook Hook) error {
	if hook == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.invoke(ctx, hook)
	select {
	case err := <-result:
		if err != nil {
			return sdkerr.HookError(name, err)
		}
		return nil
	case <-ctx.Done():
		return sdkerr.HookTimeout(name)
	}
}

// RunLenient invokes hook (if non-nil) and logs-and-swallows any failure or
// timeout; it never returns an error to the caller (spec §4.6.5).
func (r *Runner) RunLenient(ctx context.Context, name string, hook Hook) {
	if hook == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.invoke(ctx, hook)
	select {
	case err := <-result:
		if err != nil {
			logger.Session().Warn().Err(err).Str("hook", name).Msg("lifecycle hook returned an error")
		}
	case <-ctx.Done():
		logger.Session().Warn().Str("hook", name).Msg("lifecycle hook timed out")
	}
}

// invoke runs hook on its own goroutine and reports its result (including a
// recovered panic, treated as a hook error) on the returned channel. The
// goroutine is intentionally allowed to outlive the caller when the timeout
// wins the race, per spec §4.6.5.
func (r *Runner) invoke(ctx context.Context, hook Hook) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				select {
				case done <- sdkerr.New(sdkerr.CodeHookError, "hook panicked"):
				default:
				}
			}
		}()
		done <- hook(ctx)
	}()
	return done
}
