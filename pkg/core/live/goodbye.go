package live

import (
	"strings"
	"sync"
	"time"
)

// GoodbyeState is the gate's current state.
type GoodbyeState int

const (
	// GoodbyeIdle means fewer than both parties have said farewell.
	GoodbyeIdle GoodbyeState = iota
	// GoodbyeArmed means both parties signaled and the hang-up timer is
	// running. New user speech fully recovers to idle.
	GoodbyeArmed
	// GoodbyeEnding means the timer expired and termination fired. The
	// gate stays here; further calls are no-ops.
	GoodbyeEnding
)

// String returns a human-readable state name.
func (s GoodbyeState) String() string {
	switch s {
	case GoodbyeIdle:
		return "IDLE"
	case GoodbyeArmed:
		return "ARMED"
	case GoodbyeEnding:
		return "ENDING"
	default:
		return "UNKNOWN"
	}
}

// GoodbyeGate ends the call only when both parties have said farewell
// and a short quiet window passes. A "false goodbye" — the caller keeps
// talking after farewells were exchanged — is fully recoverable: the
// flags clear, the timer cancels, and the conversation continues.
//
// The two party flags arrive independently: the signal detector reports
// the caller's farewell, and the downstream reply inspection reports the
// companion's. Only the conjunction matters, not the order.
type GoodbyeGate struct {
	config GoodbyeConfig

	mu                 sync.Mutex
	state              GoodbyeState
	callerSignaled     bool
	companionSignaled  bool
	timer              *time.Timer

	// Callbacks
	onTerminate func()
	onArmed     func()
	onCancelled func()
	onDebug     func(category, message string)
}

// NewGoodbyeGate creates a gate in the idle state with all flags clear.
func NewGoodbyeGate(config GoodbyeConfig) *GoodbyeGate {
	return &GoodbyeGate{config: config}
}

// SetCallbacks sets the event callbacks. onTerminate is invoked exactly
// once, when the armed timer expires uninterrupted.
func (g *GoodbyeGate) SetCallbacks(
	onTerminate func(),
	onArmed func(),
	onCancelled func(),
	onDebug func(category, message string),
) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTerminate = onTerminate
	g.onArmed = onArmed
	g.onCancelled = onCancelled
	g.onDebug = onDebug
}

// State returns the gate's current state.
func (g *GoodbyeGate) State() GoodbyeState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// NoteCallerFarewell records the caller's side of the farewell.
func (g *GoodbyeGate) NoteCallerFarewell() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GoodbyeEnding {
		return
	}
	g.callerSignaled = true
	g.debugLocked("GOODBYE", "Caller farewell noted")
	g.maybeArmLocked()
}

// NoteCompanionFarewell records the companion's side of the farewell,
// detected in generated reply text.
func (g *GoodbyeGate) NoteCompanionFarewell() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GoodbyeEnding {
		return
	}
	g.companionSignaled = true
	g.debugLocked("GOODBYE", "Companion farewell noted")
	g.maybeArmLocked()
}

// maybeArmLocked starts the hang-up timer once both flags are set.
// Caller must hold the mutex.
func (g *GoodbyeGate) maybeArmLocked() {
	if g.state != GoodbyeIdle || !g.callerSignaled || !g.companionSignaled {
		return
	}

	g.state = GoodbyeArmed
	g.debugLocked("GOODBYE", "Both parties signaled, arming hang-up timer")

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(
		time.Duration(g.config.HangupDelayMs)*time.Millisecond,
		g.expire,
	)

	if g.onArmed != nil {
		go g.onArmed()
	}
}

// expire fires when the armed timer completes uninterrupted.
func (g *GoodbyeGate) expire() {
	g.mu.Lock()
	if g.state != GoodbyeArmed {
		g.mu.Unlock()
		return
	}
	g.state = GoodbyeEnding
	callback := g.onTerminate
	g.mu.Unlock()

	g.debug("GOODBYE", "Timer expired, ending call")

	if callback != nil {
		callback()
	}
}

// HandleUserSpeech resets the gate when new speech arrives before the
// timer expires. Returns true if an armed goodbye was cancelled. After
// the gate reaches ending this is a no-op.
func (g *GoodbyeGate) HandleUserSpeech() bool {
	g.mu.Lock()

	if g.state == GoodbyeEnding {
		g.mu.Unlock()
		return false
	}

	wasArmed := g.state == GoodbyeArmed

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.callerSignaled = false
	g.companionSignaled = false
	g.state = GoodbyeIdle

	callback := g.onCancelled
	g.mu.Unlock()

	if wasArmed {
		g.debug("GOODBYE", "New speech during armed window, recovering to idle")
		if callback != nil {
			go callback()
		}
	}

	return wasArmed
}

// Cancel stops the timer and clears all flags without firing callbacks.
// Safe to call repeatedly, including after termination.
func (g *GoodbyeGate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == GoodbyeEnding {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.callerSignaled = false
	g.companionSignaled = false
	g.state = GoodbyeIdle
}

func (g *GoodbyeGate) debug(category, message string) {
	g.mu.Lock()
	onDebug := g.onDebug
	g.mu.Unlock()
	if onDebug != nil {
		onDebug(category, message)
	}
}

// debugLocked logs while the caller already holds the mutex.
func (g *GoodbyeGate) debugLocked(category, message string) {
	if g.onDebug != nil {
		go g.onDebug(category, message)
	}
}

// goodbyeReplyWatch is the downstream stage that inspects cleaned reply
// text for the companion's farewell phrasing and reports it to the gate.
type goodbyeReplyWatch struct {
	PassthroughStage

	gate *GoodbyeGate

	mu       sync.Mutex
	replyBuf []string
}

func newGoodbyeReplyWatch(gate *GoodbyeGate) *goodbyeReplyWatch {
	return &goodbyeReplyWatch{gate: gate}
}

// Name implements Stage.
func (w *goodbyeReplyWatch) Name() string { return "goodbye-watch" }

// HandleDownstream accumulates reply text and checks the completed reply
// for farewell phrasing. Events pass through unchanged.
func (w *goodbyeReplyWatch) HandleDownstream(ev Event) []Event {
	switch e := ev.(type) {
	case *ReplyDeltaEvent:
		w.mu.Lock()
		w.replyBuf = append(w.replyBuf, e.Delta)
		w.mu.Unlock()
	case *ReplyCompleteEvent:
		w.mu.Lock()
		reply := strings.Join(w.replyBuf, " ")
		w.replyBuf = nil
		w.mu.Unlock()
		if ContainsAssistantFarewell(reply) {
			w.gate.NoteCompanionFarewell()
		}
	}
	return []Event{ev}
}
