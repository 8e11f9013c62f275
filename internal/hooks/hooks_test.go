package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gwsession/sdk/internal/sdkerr"
)

func TestRunStrict_Success(t *testing.T) {
	r := New(50 * time.Millisecond)
	err := r.RunStrict(context.Background(), "onSessionStart", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestRunStrict_NilHookIsNoOp(t *testing.T) {
	r := New(50 * time.Millisecond)
	if err := r.RunStrict(context.Background(), "onSessionStart", nil); err != nil {
		t.Fatalf("expected nil hook to no-op, got %v", err)
	}
}

func TestRunStrict_PropagatesHookError(t *testing.T) {
	r := New(50 * time.Millisecond)
	err := r.RunStrict(context.Background(), "onSessionStart", func(ctx context.Context) error {
		return errors.New("boom")
	})
	if sdkerr.CodeOf(err) != sdkerr.CodeHookError {
		t.Fatalf("expected HookError, got %v", err)
	}
}

func TestRunStrict_TimesOut(t *testing.T) {
	r := New(10 * time.Millisecond)
	err := r.RunStrict(context.Background(), "onSessionStart", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	if sdkerr.CodeOf(err) != sdkerr.CodeHookTimeout {
		t.Fatalf("expected HookTimeout, got %v", err)
	}
}

func TestRunStrict_RecoversPanic(t *testing.T) {
	r := New(50 * time.Millisecond)
	err := r.RunStrict(context.Background(), "onSessionStart", func(ctx context.Context) error {
		panic("whoops")
	})
	if sdkerr.CodeOf(err) != sdkerr.CodeHookError {
		t.Fatalf("expected HookError from recovered panic, got %v", err)
	}
}

func TestRunLenient_SwallowsError(t *testing.T) {
	r := New(50 * time.Millisecond)
	called := make(chan struct{})
	r.RunLenient(context.Background(), "onSessionEnd", func(ctx context.Context) error {
		close(called)
		return errors.New("boom")
	})
	select {
	case <-called:
	default:
		t.Fatal("expected hook to have been invoked")
	}
}

func TestRunLenient_NilHookIsNoOp(t *testing.T) {
	r := New(50 * time.Millisecond)
	r.RunLenient(context.Background(), "onSessionEnd", nil)
}

func TestRunLenient_TimesOutWithoutBlocking(t *testing.T) {
	r := New(10 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		r.RunLenient(context.Background(), "onSessionWarning", func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(200 * time.Millisecond)
			return nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunLenient should return promptly on timeout, not wait for the hook")
	}
}
