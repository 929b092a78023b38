package live

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sundial-care/sundial/pkg/core"
	"github.com/sundial-care/sundial/pkg/core/types"
)

// SessionDeps are the external collaborators a session needs. Model is
// required for background direction analysis; the stores are optional
// and the features that need them degrade quietly when absent.
type SessionDeps struct {
	Model         core.AuxiliaryModel
	MemoryStore   core.MemoryStore
	ReminderStore core.ReminderStore
	ContextStore  core.ContextStore
}

// Session orchestrates one phone call. It owns the stream pipeline, the
// call-phase machine, the goodbye gate, and the accumulated transcript,
// and surfaces everything the host transport needs on a single event
// channel.
//
// The host feeds finalized caller utterances in with HandleUtterance and
// generated reply text in with HandleReplyDelta/HandleReplyComplete; the
// session emits directives, cleaned speech, phase changes, and exactly
// one EndSessionEvent.
type Session struct {
	config    SessionConfig
	bootstrap types.SessionBootstrap
	callID    string

	model         core.AuxiliaryModel
	memoryStore   core.MemoryStore
	reminderStore core.ReminderStore
	contextStore  core.ContextStore

	detector *SignalDetector
	engine   *DirectionEngine
	gate     *GoodbyeGate
	stripper *Stripper
	tracker  *Tracker
	cache    *ContextCache
	phases   *PhaseMachine
	pipeline *Pipeline

	mu                 sync.Mutex
	started            bool
	closed             bool
	terminated         bool
	startTime          time.Time
	transcript         []types.Message
	replyBuf           strings.Builder
	deliveredReminders map[string]bool
	fastHangup         *TaskHandle
	hardStop           *TaskHandle
	closeTask          *TaskHandle
	debugEnabled       bool

	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
	done   chan struct{}
}

// NewSession creates an unstarted session for one call.
func NewSession(config SessionConfig, bootstrap types.SessionBootstrap, deps SessionDeps) *Session {
	s := &Session{
		config:        config,
		bootstrap:     bootstrap,
		callID:        "call_" + ulid.Make().String(),
		model:         deps.Model,
		memoryStore:   deps.MemoryStore,
		reminderStore: deps.ReminderStore,
		contextStore:  deps.ContextStore,

		deliveredReminders: make(map[string]bool),
		events:             make(chan Event, 256),
		done:               make(chan struct{}),
	}

	s.detector = NewSignalDetector(config.Signal)
	s.engine = NewDirectionEngine(config.Direction, deps.Model)
	s.gate = NewGoodbyeGate(config.Goodbye)
	s.stripper = NewStripper(config.Strip)
	s.tracker = NewTracker(config.Tracker)
	s.cache = NewContextCache(config.Cache, deps.MemoryStore)
	s.phases = NewPhaseMachine(
		bootstrap.Profile,
		bootstrap.PendingReminder,
		bootstrap.Outbound,
		s.tracker.Summary,
		s.reminderDelivered,
	)

	return s
}

// CallID returns the generated identifier for this call.
func (s *Session) CallID() string { return s.callID }

// CallerID returns the profile ID of the person on the call.
func (s *Session) CallerID() string {
	if s.bootstrap.Profile == nil {
		return ""
	}
	return s.bootstrap.Profile.ID
}

// Events returns the session's event stream. The channel is buffered;
// events are dropped, never blocked on, when the host falls behind.
func (s *Session) Events() <-chan Event { return s.events }

// Done returns a channel closed when the session is fully closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// EnableDebug turns on DebugEvent emission.
func (s *Session) EnableDebug() {
	s.mu.Lock()
	s.debugEnabled = true
	s.mu.Unlock()
}

// Start wires the components together, enters the initial call phase,
// and emits SessionStartedEvent. Starting twice is an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return core.NewStateError("session", "already started")
	}
	s.started = true
	s.startTime = time.Now()
	s.ctx, s.cancel = context.WithCancel(ctx)
	sessionCtx := s.ctx
	startTime := s.startTime
	s.mu.Unlock()

	s.detector.SetCallbacks(
		func(strength types.SignalStrength) { s.gate.NoteCallerFarewell() },
		s.armFastHangup,
		s.cancelFastHangup,
		s.debug,
	)

	s.gate.SetCallbacks(
		func() { s.endSession("both parties said goodbye") },
		func() { s.emit(&GoodbyeArmedEvent{DelayMs: s.config.Goodbye.HangupDelayMs}) },
		func() { s.emit(&GoodbyeCancelledEvent{}) },
		s.debug,
	)

	s.engine.Wire(
		sessionCtx,
		startTime,
		s.ending,
		s.transcriptWindow,
		s.sessionFacts,
		s.detector.LastSignals,
		s.cache.PrefetchDirection,
		s.scheduleHardStop,
		s.emit,
		s.debug,
	)

	s.cache.Wire(sessionCtx, s.CallerID(), s.debug)
	s.stripper.SetDebug(s.debug)

	s.phases.SetCallbacks(
		func(from, to types.CallPhase, node *PhaseNode) {
			s.emit(&PhaseChangedEvent{From: from, To: to})
		},
		s.scheduleClosingTermination,
		s.debug,
	)

	// Stage order matters in both directions: upstream runs front to
	// back, downstream back to front, so the stripper cleans reply text
	// before the goodbye watch and tracker inspect it.
	s.pipeline = NewPipeline(
		[]Stage{
			s.detector,
			s.engine,
			s.cache,
			s.tracker,
			newGoodbyeReplyWatch(s.gate),
			s.stripper,
		},
		s.deliverUpstream,
		s.deliverDownstream,
	)

	node := s.phases.Start()

	if reminder := s.bootstrap.PendingReminder; reminder != nil {
		s.cache.PrefetchQueries([]string{reminder.Title})
	}

	s.debug("SESSION", "Session "+s.callID+" started in phase "+string(node.Name))
	s.emit(&SessionStartedEvent{
		CallID:      s.callID,
		Phase:       node.Name,
		SpeaksFirst: node.SpeaksFirst,
	})
	return nil
}

// HandleUtterance feeds one finalized caller utterance into the
// pipeline. It first gives the goodbye gate its recovery chance, so
// speech after exchanged farewells cancels the pending hang-up before
// anything else happens this turn.
func (s *Session) HandleUtterance(text string) error {
	s.mu.Lock()
	if !s.started || s.closed || s.terminated {
		s.mu.Unlock()
		return core.NewStateError("session", "not accepting utterances")
	}
	s.mu.Unlock()

	s.gate.HandleUserSpeech()
	s.pipeline.PushUpstream(&UtteranceEvent{Text: text})
	return nil
}

// HandleReplyDelta feeds one chunk of generated reply text downstream.
// Chunks arriving after termination are dropped.
func (s *Session) HandleReplyDelta(delta string) {
	s.mu.Lock()
	if !s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.pipeline.PushDownstream(&ReplyDeltaEvent{Delta: delta})
}

// HandleReplyComplete marks the end of one generated assistant turn.
func (s *Session) HandleReplyComplete() {
	s.mu.Lock()
	if !s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.pipeline.PushDownstream(&ReplyCompleteEvent{})
}

// HandleToolCall executes a phase tool on the model's behalf and emits
// the result.
func (s *Session) HandleToolCall(ctx context.Context, id, name string, input []byte) types.ToolResult {
	result := ExecuteTool(ctx, s, name, input)
	s.emit(&ToolInvokedEvent{ID: id, Name: name, Result: result})
	return result
}

// ActivePhase returns the current phase node, or nil before Start.
func (s *Session) ActivePhase() *PhaseNode {
	return s.phases.Active()
}

// BeginWindingDown asks the phase machine to start wrapping up. Exposed
// for hosts that drive pacing externally; the elapsed-time fallbacks do
// this on their own.
func (s *Session) BeginWindingDown() {
	s.phases.BeginWindingDown()
}

// Transcript returns a copy of the accumulated transcript.
func (s *Session) Transcript() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// PendingReminder returns the bootstrap reminder if it has not been
// delivered yet.
func (s *Session) PendingReminder() *types.Reminder {
	reminder := s.bootstrap.PendingReminder
	if reminder == nil {
		return nil
	}
	s.mu.Lock()
	delivered := s.deliveredReminders[reminder.ID]
	s.mu.Unlock()
	if delivered {
		return nil
	}
	return reminder
}

func (s *Session) markReminderDelivered(id string) {
	s.mu.Lock()
	s.deliveredReminders[id] = true
	s.mu.Unlock()
}

func (s *Session) reminderDelivered() bool {
	reminder := s.bootstrap.PendingReminder
	if reminder == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveredReminders[reminder.ID]
}

// Close shuts the session down. If no termination fired yet, one is
// recorded first so the call-context summary is still written. Safe to
// call repeatedly.
func (s *Session) Close() error {
	s.endSession("connection closed")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(s.done)
	s.debug("SESSION", "Session "+s.callID+" closed")
	return nil
}

// deliverUpstream is the pipeline sink toward the conversational model.
// Directives and utterances surviving the stages join the transcript
// here, so the transcript only ever contains what the model actually saw.
func (s *Session) deliverUpstream(ev Event) {
	switch e := ev.(type) {
	case *DirectiveEvent:
		s.appendTranscript(types.Message{Role: types.RoleDirective, Text: e.Text})
	case *UtteranceEvent:
		s.appendTranscript(types.Message{Role: types.RoleUser, Text: e.Text})
	}
	s.emit(ev)
}

// deliverDownstream is the pipeline sink toward speech synthesis. The
// cleaned reply is accumulated and joins the transcript when the turn
// completes.
func (s *Session) deliverDownstream(ev Event) {
	switch e := ev.(type) {
	case *ReplyDeltaEvent:
		s.mu.Lock()
		s.replyBuf.WriteString(e.Delta)
		s.mu.Unlock()
	case *ReplyCompleteEvent:
		s.mu.Lock()
		reply := strings.TrimSpace(s.replyBuf.String())
		s.replyBuf.Reset()
		s.mu.Unlock()
		if reply != "" {
			s.appendTranscript(types.Message{Role: types.RoleAssistant, Text: reply})
		}
	}
	s.emit(ev)
}

func (s *Session) appendTranscript(msg types.Message) {
	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	s.mu.Unlock()
}

// transcriptWindow returns the recent transcript slice the analysis
// prompt includes.
func (s *Session) transcriptWindow() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := types.TranscriptWindow(s.transcript, s.config.TranscriptWindow)
	out := make([]types.Message, len(window))
	copy(out, window)
	return out
}

// sessionFacts renders the static caller context for analysis prompts.
func (s *Session) sessionFacts() string {
	var parts []string
	if p := s.bootstrap.Profile; p != nil {
		parts = append(parts, "Caller: "+p.DisplayName()+".")
		if len(p.Interests) > 0 {
			parts = append(parts, "Interests: "+strings.Join(p.Interests, ", ")+".")
		}
	}
	if reminder := s.PendingReminder(); reminder != nil {
		parts = append(parts, "Pending reminder: "+reminder.Title+".")
	}
	for _, summary := range s.bootstrap.PriorSummaries {
		parts = append(parts, "Previous call: "+summary)
	}
	return strings.Join(parts, "\n")
}

// ending reports whether any termination path is already underway.
func (s *Session) ending() bool {
	s.mu.Lock()
	terminated := s.terminated
	s.mu.Unlock()
	if terminated || s.gate.State() != GoodbyeIdle {
		return true
	}
	if node := s.phases.Active(); node != nil && node.Name == types.PhaseClosing {
		return true
	}
	return false
}

// armFastHangup starts the single-party farewell timer. The next caller
// utterance cancels it through the signal detector.
func (s *Session) armFastHangup() {
	delay := time.Duration(s.config.Signal.FarewellHangupDelayMs) * time.Millisecond

	s.mu.Lock()
	if s.terminated || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	if s.fastHangup != nil {
		s.fastHangup.Cancel()
	}
	s.fastHangup = SpawnAfter(s.ctx, "farewell-hangup", delay, func() {
		s.endSession("caller said goodbye")
	}, s.taskPanic)
	s.mu.Unlock()
}

func (s *Session) cancelFastHangup() {
	s.mu.Lock()
	task := s.fastHangup
	s.fastHangup = nil
	s.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
}

// scheduleHardStop arms the elapsed-time termination, with a grace delay
// so the companion can say goodbye first.
func (s *Session) scheduleHardStop(delay time.Duration) {
	s.mu.Lock()
	if s.terminated || s.hardStop != nil || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.hardStop = SpawnAfter(s.ctx, "hard-stop", delay, func() {
		s.endSession("call length limit reached")
	}, s.taskPanic)
	s.mu.Unlock()
}

// scheduleClosingTermination runs when the phase machine enters closing:
// the goodbye gets a short window to be spoken, then the call ends.
func (s *Session) scheduleClosingTermination() {
	delay := time.Duration(s.config.Goodbye.HangupDelayMs) * time.Millisecond

	s.mu.Lock()
	if s.terminated || s.closeTask != nil || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.closeTask = SpawnAfter(s.ctx, "closing-hangup", delay, func() {
		s.endSession("call reached its closing phase")
	}, s.taskPanic)
	s.mu.Unlock()
}

// endSession is the single termination point. Every hang-up path funnels
// through here, and only the first caller wins; EndSessionEvent is
// emitted at most once per call.
func (s *Session) endSession(reason string) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	fastHangup := s.fastHangup
	hardStop := s.hardStop
	closeTask := s.closeTask
	s.fastHangup = nil
	s.hardStop = nil
	s.closeTask = nil
	s.mu.Unlock()

	fastHangup.Cancel()
	hardStop.Cancel()
	closeTask.Cancel()

	s.debug("SESSION", "Ending session: "+reason)
	s.writeCallContext()
	s.emit(&EndSessionEvent{Reason: reason})
}

// writeCallContext persists the per-day call summary. Best effort; the
// call ends either way.
func (s *Session) writeCallContext() {
	if s.contextStore == nil {
		return
	}

	summary := s.tracker.Summary()
	if summary == "" {
		summary = "Short call with no notable topics."
	}

	now := time.Now()
	day := now
	if p := s.bootstrap.Profile; p != nil && p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			day = now.In(loc)
		}
	}

	record := types.CallContextRecord{
		ID:        "cctx_" + ulid.Make().String(),
		CallerID:  s.CallerID(),
		Day:       day.Format("2006-01-02"),
		Summary:   summary,
		CreatedAt: now,
	}

	// Detached from the session context: the write should survive the
	// session being torn down right after termination.
	Spawn(context.Background(), "call-context-write", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.contextStore.SaveCallContext(ctx, record); err != nil {
			s.debug("SESSION", "Call context write failed: "+err.Error())
		}
	}, s.taskPanic)
}

func (s *Session) taskPanic(name string, v any) {
	s.emit(&ErrorEvent{Code: "task_panic", Message: name})
}

// emit delivers an event to the host, dropping it when the buffer is
// full or the session is closed. The forward path never blocks on a
// slow consumer.
func (s *Session) emit(ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Session) debug(category, message string) {
	s.mu.Lock()
	enabled := s.debugEnabled
	s.mu.Unlock()
	if enabled {
		s.emit(&DebugEvent{Category: category, Message: message})
	}
}
