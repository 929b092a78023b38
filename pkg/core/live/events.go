package live

import (
	"github.com/sundial-care/sundial/pkg/core/types"
)

// Event is the interface for all pipeline events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionStartedEvent is emitted once the session pipeline is running.
type SessionStartedEvent struct {
	CallID string          `json:"call_id"`
	Phase  types.CallPhase `json:"phase"`
	// SpeaksFirst tells the host the companion should open the call.
	SpeaksFirst bool `json:"speaks_first"`
}

func (e *SessionStartedEvent) EventType() string { return "session.started" }

// UtteranceEvent carries one finalized user utterance flowing upstream
// toward the conversational model.
type UtteranceEvent struct {
	Text string `json:"text"`
}

func (e *UtteranceEvent) EventType() string { return "utterance" }

// DirectiveEvent carries injected, non-spoken guidance for the
// conversational model. Directives flow upstream alongside utterances
// and are never synthesized.
type DirectiveEvent struct {
	Text   string `json:"text"`
	Source string `json:"source"` // "signal", "direction", "phase"
}

func (e *DirectiveEvent) EventType() string { return "directive" }

// SignalsDetectedEvent reports the signals matched against an utterance.
// Emitted for observability; signals are not persisted beyond the turn.
type SignalsDetectedEvent struct {
	Signals []types.Signal `json:"signals"`
}

func (e *SignalsDetectedEvent) EventType() string { return "signals.detected" }

// ReplyDeltaEvent carries one chunk of generated reply text flowing
// downstream toward speech synthesis.
type ReplyDeltaEvent struct {
	Delta string `json:"delta"`
}

func (e *ReplyDeltaEvent) EventType() string { return "reply.delta" }

// ReplyCompleteEvent marks the end of one generated assistant turn.
type ReplyCompleteEvent struct{}

func (e *ReplyCompleteEvent) EventType() string { return "reply.complete" }

// PhaseChangedEvent is emitted when the call-phase machine transitions.
type PhaseChangedEvent struct {
	From types.CallPhase `json:"from"`
	To   types.CallPhase `json:"to"`
}

func (e *PhaseChangedEvent) EventType() string { return "phase.changed" }

// DirectionUpdatedEvent is emitted when a background analysis pass
// completes and replaces the cached Direction.
type DirectionUpdatedEvent struct {
	Direction *types.Direction `json:"direction"`
	Fallback  bool             `json:"fallback,omitempty"`
}

func (e *DirectionUpdatedEvent) EventType() string { return "direction.updated" }

// GoodbyeArmedEvent is emitted when both parties have said farewell and
// the hang-up timer starts.
type GoodbyeArmedEvent struct {
	DelayMs int `json:"delay_ms"`
}

func (e *GoodbyeArmedEvent) EventType() string { return "goodbye.armed" }

// GoodbyeCancelledEvent is emitted when new speech recovers a false goodbye.
type GoodbyeCancelledEvent struct{}

func (e *GoodbyeCancelledEvent) EventType() string { return "goodbye.cancelled" }

// ToolInvokedEvent is emitted when the conversational model invokes a
// phase tool.
type ToolInvokedEvent struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Result types.ToolResult `json:"result"`
}

func (e *ToolInvokedEvent) EventType() string { return "tool.invoked" }

// EndSessionEvent is the terminal action, emitted exactly once per call.
// The call transport consumes it to close the line.
type EndSessionEvent struct {
	Reason string `json:"reason"`
}

func (e *EndSessionEvent) EventType() string { return "session.end" }

// ErrorEvent is emitted when a background path fails. The forward path
// never carries errors; it substitutes defaults and continues.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// DebugEvent is emitted for debugging information.
type DebugEvent struct {
	Category string `json:"category"` // SIGNAL, DIRECTION, GOODBYE, STRIP, TRACK, CACHE, PHASE, TOOL, SESSION
	Message  string `json:"message"`
}

func (e *DebugEvent) EventType() string { return "debug" }
