package live

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("model unavailable")

func failingCall(ctx context.Context) error { return errUpstream }
func okCall(ctx context.Context) error      { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failingCall); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}

	// Open circuit fails fast without invoking fn.
	invoked := false
	err := b.Call(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
	if invoked {
		t.Error("open breaker must not invoke fn")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Minute, 0)
	ctx := context.Background()

	b.Call(ctx, failingCall)
	b.Call(ctx, failingCall)
	b.Call(ctx, okCall)
	b.Call(ctx, failingCall)
	b.Call(ctx, failingCall)

	if b.State() != BreakerClosed {
		t.Errorf("non-consecutive failures must not open the breaker, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	b := NewBreaker(2, 30*time.Millisecond, 0)
	ctx := context.Background()

	b.Call(ctx, failingCall)
	b.Call(ctx, failingCall)
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(50 * time.Millisecond)

	if err := b.Call(ctx, okCall); err != nil {
		t.Fatalf("half-open trial should run, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("successful trial must close the breaker, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	b := NewBreaker(2, 30*time.Millisecond, 0)
	ctx := context.Background()

	b.Call(ctx, failingCall)
	b.Call(ctx, failingCall)
	time.Sleep(50 * time.Millisecond)

	if err := b.Call(ctx, failingCall); !errors.Is(err, errUpstream) {
		t.Fatalf("expected trial to run and fail, got %v", err)
	}
	if b.State() != BreakerOpen {
		t.Errorf("failed trial must reopen, got %s", b.State())
	}
}

func TestBreaker_CallTimeout(t *testing.T) {
	b := NewBreaker(3, time.Minute, 20*time.Millisecond)
	ctx := context.Background()

	err := b.Call(ctx, func(callCtx context.Context) error {
		select {
		case <-callCtx.Done():
			return callCtx.Err()
		case <-time.After(200 * time.Millisecond):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
