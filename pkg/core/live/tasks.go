package live

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskHandle supervises one detached background operation. Each handle is
// cancellable exactly once and queryable for completion; double-cancel is
// a no-op. Panics inside the task are recovered and reported through the
// onPanic callback so they can never reach the forward path.
type TaskHandle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once

	mu        sync.Mutex
	cancelled bool
}

// Spawn starts fn in a background goroutine under a child context of
// parent and returns its handle.
func Spawn(parent context.Context, name string, fn func(ctx context.Context), onPanic func(name string, v any)) *TaskHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &TaskHandle{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer func() {
			if v := recover(); v != nil && onPanic != nil {
				onPanic(name, v)
			}
		}()
		fn(ctx)
	}()

	return h
}

// SpawnAfter starts fn after delay unless the handle is cancelled first.
func SpawnAfter(parent context.Context, name string, delay time.Duration, fn func(), onPanic func(name string, v any)) *TaskHandle {
	return Spawn(parent, name, func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			fn()
		}
	}, onPanic)
}

// Cancel requests cancellation. Safe to call multiple times.
func (h *TaskHandle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.mu.Lock()
		h.cancelled = true
		h.mu.Unlock()
		h.cancel()
	})
}

// Cancelled reports whether Cancel was called.
func (h *TaskHandle) Cancelled() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Done returns a channel closed when the task finishes or is cancelled.
func (h *TaskHandle) Done() <-chan struct{} {
	if h == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.done
}

// Wait blocks until the task completes or the timeout elapses.
func (h *TaskHandle) Wait(timeout time.Duration) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("task %s: wait timed out after %s", h.name, timeout)
	}
}
