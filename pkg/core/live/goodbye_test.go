package live

import (
	"sync"
	"testing"
	"time"
)

func TestGoodbyeGate_BothPartiesThenExpire(t *testing.T) {
	gate := NewGoodbyeGate(GoodbyeConfig{HangupDelayMs: 50})

	var mu sync.Mutex
	terminated := 0
	armed := 0

	gate.SetCallbacks(
		func() {
			mu.Lock()
			terminated++
			mu.Unlock()
		},
		func() {
			mu.Lock()
			armed++
			mu.Unlock()
		},
		nil,
		nil,
	)

	gate.NoteCallerFarewell()
	if gate.State() != GoodbyeIdle {
		t.Error("one party is not enough to arm")
	}

	gate.NoteCompanionFarewell()
	if gate.State() != GoodbyeArmed {
		t.Error("expected armed after both parties")
	}

	time.Sleep(80 * time.Millisecond)

	if gate.State() != GoodbyeEnding {
		t.Errorf("expected ending after timer, got %s", gate.State())
	}
	mu.Lock()
	if terminated != 1 {
		t.Errorf("expected exactly one termination, got %d", terminated)
	}
	if armed != 1 {
		t.Errorf("expected one armed callback, got %d", armed)
	}
	mu.Unlock()
}

func TestGoodbyeGate_OrderDoesNotMatter(t *testing.T) {
	gate := NewGoodbyeGate(GoodbyeConfig{HangupDelayMs: 500})
	gate.NoteCompanionFarewell()
	gate.NoteCallerFarewell()
	if gate.State() != GoodbyeArmed {
		t.Error("expected armed regardless of farewell order")
	}
}

func TestGoodbyeGate_FalseGoodbyeRecovers(t *testing.T) {
	gate := NewGoodbyeGate(GoodbyeConfig{HangupDelayMs: 60})

	var mu sync.Mutex
	terminated := 0
	cancelled := 0

	gate.SetCallbacks(
		func() {
			mu.Lock()
			terminated++
			mu.Unlock()
		},
		nil,
		func() {
			mu.Lock()
			cancelled++
			mu.Unlock()
		},
		nil,
	)

	gate.NoteCallerFarewell()
	gate.NoteCompanionFarewell()

	// Caller keeps talking before the timer expires.
	if wasArmed := gate.HandleUserSpeech(); !wasArmed {
		t.Error("expected HandleUserSpeech to report a cancelled goodbye")
	}
	if gate.State() != GoodbyeIdle {
		t.Error("expected full recovery to idle")
	}

	// Both flags cleared: another single farewell must not arm.
	gate.NoteCallerFarewell()
	if gate.State() != GoodbyeIdle {
		t.Error("stale companion flag survived recovery")
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if terminated != 0 {
		t.Errorf("cancelled goodbye must never terminate, got %d", terminated)
	}
	if cancelled != 1 {
		t.Errorf("expected one cancelled callback, got %d", cancelled)
	}
}

func TestGoodbyeGate_FarewellsFarApartWithSpeechBetween(t *testing.T) {
	gate := NewGoodbyeGate(GoodbyeConfig{HangupDelayMs: 40})

	var mu sync.Mutex
	terminated := 0
	gate.SetCallbacks(func() {
		mu.Lock()
		terminated++
		mu.Unlock()
	}, nil, nil, nil)

	// Caller says goodbye, then keeps the conversation going; the
	// companion's farewell later must not complete a stale pair.
	gate.NoteCallerFarewell()
	gate.HandleUserSpeech()
	gate.NoteCompanionFarewell()

	if gate.State() != GoodbyeIdle {
		t.Errorf("expected idle, got %s", gate.State())
	}

	time.Sleep(70 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if terminated != 0 {
		t.Errorf("expected no termination, got %d", terminated)
	}
}

func TestGoodbyeGate_SpeechAfterEndingIsNoOp(t *testing.T) {
	gate := NewGoodbyeGate(GoodbyeConfig{HangupDelayMs: 10})
	gate.NoteCallerFarewell()
	gate.NoteCompanionFarewell()
	time.Sleep(40 * time.Millisecond)

	if gate.State() != GoodbyeEnding {
		t.Fatalf("expected ending, got %s", gate.State())
	}
	if gate.HandleUserSpeech() {
		t.Error("speech after termination must not report a cancel")
	}
	if gate.State() != GoodbyeEnding {
		t.Error("ending state must be sticky")
	}
}

func TestGoodbyeReplyWatch_DetectsCompanionFarewell(t *testing.T) {
	gate := NewGoodbyeGate(GoodbyeConfig{HangupDelayMs: 500})
	watch := newGoodbyeReplyWatch(gate)

	gate.NoteCallerFarewell()

	watch.HandleDownstream(&ReplyDeltaEvent{Delta: "It was lovely talking."})
	watch.HandleDownstream(&ReplyDeltaEvent{Delta: "Take care, Margaret!"})
	if gate.State() != GoodbyeIdle {
		t.Error("farewell must only register when the reply completes")
	}

	watch.HandleDownstream(&ReplyCompleteEvent{})
	if gate.State() != GoodbyeArmed {
		t.Errorf("expected armed after companion farewell, got %s", gate.State())
	}
}

func TestGoodbyeReplyWatch_PlainReplyDoesNotSignal(t *testing.T) {
	gate := NewGoodbyeGate(GoodbyeConfig{HangupDelayMs: 500})
	watch := newGoodbyeReplyWatch(gate)

	gate.NoteCallerFarewell()
	watch.HandleDownstream(&ReplyDeltaEvent{Delta: "Tell me more about the garden."})
	watch.HandleDownstream(&ReplyCompleteEvent{})

	if gate.State() != GoodbyeIdle {
		t.Error("ordinary reply must not count as a farewell")
	}
}
