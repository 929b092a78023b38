package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sundial-care/sundial/pkg/core"
	"github.com/sundial-care/sundial/pkg/core/types"
)

// DirectionEngine runs the slower call analysis in the background. On
// each utterance it first injects the previous turn's completed
// Direction — intentionally stale by one turn so the forward path never
// waits — then cancels any still-running analysis and launches a new one
// behind the circuit breaker. It also enforces the direct time
// fallbacks: past the soft limit the cached phase is forced to
// winding_down, past the hard limit a delayed cancellable termination is
// scheduled.
type DirectionEngine struct {
	PassthroughStage

	config DirectionConfig
	model  core.AuxiliaryModel

	breaker *Breaker

	mu           sync.Mutex
	cached       *types.Direction
	analysisTask *TaskHandle
	hardArmed    bool

	// Wiring provided by the session.
	ctx              context.Context
	startTime        time.Time
	callEnding       func() bool
	transcriptWindow func() []types.Message
	sessionFacts     func() string
	signalHints      func() []types.Signal
	prefetch         func(d *types.Direction)
	scheduleHardStop func(delay time.Duration)
	emit             func(Event)
	onDebug          func(category, message string)
}

// NewDirectionEngine creates the engine with no cached Direction; the
// first turn of a call runs without injected guidance.
func NewDirectionEngine(config DirectionConfig, model core.AuxiliaryModel) *DirectionEngine {
	return &DirectionEngine{
		config: config,
		model:  model,
		breaker: NewBreaker(
			config.FailureThreshold,
			time.Duration(config.CooldownMs)*time.Millisecond,
			time.Duration(config.AnalysisTimeoutMs)*time.Millisecond,
		),
	}
}

// Wire connects the engine to its session. Must be called before the
// first utterance.
func (e *DirectionEngine) Wire(
	ctx context.Context,
	startTime time.Time,
	callEnding func() bool,
	transcriptWindow func() []types.Message,
	sessionFacts func() string,
	signalHints func() []types.Signal,
	prefetch func(d *types.Direction),
	scheduleHardStop func(delay time.Duration),
	emit func(Event),
	onDebug func(category, message string),
) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx = ctx
	e.startTime = startTime
	e.callEnding = callEnding
	e.transcriptWindow = transcriptWindow
	e.sessionFacts = sessionFacts
	e.signalHints = signalHints
	e.prefetch = prefetch
	e.scheduleHardStop = scheduleHardStop
	e.emit = emit
	e.onDebug = onDebug
}

// Name implements Stage.
func (e *DirectionEngine) Name() string { return "direction" }

// Current returns the cached Direction, or nil before the first
// analysis completes.
func (e *DirectionEngine) Current() *types.Direction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cached
}

// HandleUpstream processes one utterance. The utterance is always
// forwarded; analysis never blocks it.
func (e *DirectionEngine) HandleUpstream(ev Event) []Event {
	utt, ok := ev.(*UtteranceEvent)
	if !ok {
		return []Event{ev}
	}

	out := []Event{}

	// (a) Inject the previous turn's completed Direction first.
	e.mu.Lock()
	cached := e.cached
	e.mu.Unlock()
	if cached != nil && !e.ending() {
		out = append(out, &DirectiveEvent{
			Text:   FormatDirection(cached),
			Source: "direction",
		})
	}

	// (b) Cancel the prior turn's analysis, best effort.
	e.mu.Lock()
	if e.analysisTask != nil {
		e.analysisTask.Cancel()
		e.analysisTask = nil
	}
	e.mu.Unlock()

	// Direct time fallbacks, independent of the model.
	e.applyTimeFallbacks()

	// (c) Launch the new background analysis.
	e.launchAnalysis(utt.Text)

	return append(out, utt)
}

func (e *DirectionEngine) ending() bool {
	if e.callEnding == nil {
		return false
	}
	return e.callEnding()
}

// applyTimeFallbacks enforces the soft and hard elapsed-time limits.
func (e *DirectionEngine) applyTimeFallbacks() {
	elapsed := time.Since(e.startTime)

	if elapsed > e.config.SoftLimit {
		e.mu.Lock()
		current := e.cached
		if current == nil {
			current = types.DefaultDirection()
			e.cached = current
		}
		forced := false
		if current.Phase != types.PhaseWindingDown && current.Phase != types.PhaseClosing {
			// A cached Direction may already be held by event consumers;
			// swap in a copy rather than mutating the published one.
			next := *current
			next.Phase = types.PhaseWindingDown
			e.cached = &next
			forced = true
		}
		e.mu.Unlock()
		if forced {
			e.debug("DIRECTION", "Soft limit passed, forcing phase to winding_down")
		}
	}

	if elapsed > e.config.HardLimit {
		e.mu.Lock()
		armed := e.hardArmed
		e.hardArmed = true
		e.mu.Unlock()
		if !armed && e.scheduleHardStop != nil {
			delay := time.Duration(e.config.HardLimitGraceMs) * time.Millisecond
			e.debug("DIRECTION", fmt.Sprintf("Hard limit passed, scheduling end of call in %s", delay))
			e.scheduleHardStop(delay)
		}
	}
}

// launchAnalysis starts the background analysis task for one utterance.
func (e *DirectionEngine) launchAnalysis(utterance string) {
	var window []types.Message
	if e.transcriptWindow != nil {
		window = e.transcriptWindow()
	}
	var facts string
	if e.sessionFacts != nil {
		facts = e.sessionFacts()
	}
	var hints []types.Signal
	if e.signalHints != nil {
		hints = e.signalHints()
	}
	prompt := BuildAnalysisPrompt(utterance, window, facts, hints)

	parent := e.ctx
	if parent == nil {
		parent = context.Background()
	}

	task := Spawn(parent, "direction-analysis", func(ctx context.Context) {
		direction, err := e.analyze(ctx, prompt)

		if ctx.Err() != nil {
			// Superseded by a newer turn; discard quietly.
			return
		}

		if err != nil {
			e.debug("DIRECTION", "Analysis failed: "+err.Error())
			e.storeResult(types.DefaultDirection(), true)
			return
		}
		e.storeResult(direction, false)
	}, func(name string, v any) {
		e.debug("DIRECTION", fmt.Sprintf("Recovered panic in %s: %v", name, v))
		e.storeResult(types.DefaultDirection(), true)
	})

	e.mu.Lock()
	e.analysisTask = task
	e.mu.Unlock()
}

// analyze performs one breaker-guarded model call and parses the result.
func (e *DirectionEngine) analyze(ctx context.Context, prompt string) (*types.Direction, error) {
	var raw string
	err := e.breaker.Call(ctx, func(callCtx context.Context) error {
		resp, err := e.model.CreateCompletion(callCtx, &types.CompletionRequest{
			Prompt:    prompt,
			MaxTokens: 400,
		})
		if err != nil {
			return err
		}
		raw = resp.Text
		return nil
	})
	if err != nil {
		return nil, core.NewAnalysisError("direction", err)
	}

	return ParseDirection(raw)
}

// storeResult replaces the cached Direction and notifies observers.
func (e *DirectionEngine) storeResult(d *types.Direction, fallback bool) {
	e.mu.Lock()
	e.cached = d
	e.mu.Unlock()

	if e.emit != nil {
		e.emit(&DirectionUpdatedEvent{Direction: d, Fallback: fallback})
	}
	if !fallback && e.prefetch != nil {
		e.prefetch(d)
	}
}

func (e *DirectionEngine) debug(category, message string) {
	if e.onDebug != nil {
		e.onDebug(category, message)
	}
}

// FormatDirection renders a Direction as the directive text injected
// ahead of the next model call.
func FormatDirection(d *types.Direction) string {
	var b strings.Builder
	b.WriteString("Guidance from call analysis: ")
	b.WriteString(fmt.Sprintf("the call is in its %s phase; engagement is %s; the caller's tone is %s.", d.Phase, d.Engagement, d.EmotionalTone))

	switch d.StayOrShift {
	case types.StayOnTopic:
		b.WriteString(" Stay with the current topic.")
	case types.ShiftTransition:
		b.WriteString(" Gently transition to a new topic.")
	case types.ShiftWrapUp:
		b.WriteString(" Begin wrapping up the conversation.")
	}

	if d.ReminderPlan.ShouldDeliver {
		b.WriteString(" Work in the reminder")
		if d.ReminderPlan.Which != "" {
			b.WriteString(" about " + d.ReminderPlan.Which)
		}
		if d.ReminderPlan.Approach != "" {
			b.WriteString(", " + d.ReminderPlan.Approach)
		}
		b.WriteString(".")
	}

	if d.ToneGuidance != "" {
		b.WriteString(" " + d.ToneGuidance)
	}

	return b.String()
}

// analysisPromptTemplate asks the auxiliary model for a strict JSON
// object describing the state of the call.
const analysisPromptTemplate = `You analyze one turn of a phone call between an AI companion and an elderly caller.

Caller facts:
%s

Recent conversation:
%s

Latest caller utterance: %q
%s
Reply with ONLY a JSON object, no prose:
{
  "phase": "opening|main|winding_down|closing",
  "engagement": "low|medium|high",
  "emotional_tone": "positive|neutral|concerned|sad",
  "stay_or_shift": "stay|transition|wrap_up",
  "reminder_plan": {"should_deliver": false, "which": "", "approach": ""},
  "tone_guidance": "one sentence of tone advice",
  "anticipated_topic": "the topic likely to come up next, or empty",
  "news_topic": "a current-events topic worth looking up, or empty"
}`

// BuildAnalysisPrompt assembles the auxiliary-model prompt for one turn.
func BuildAnalysisPrompt(utterance string, window []types.Message, facts string, hints []types.Signal) string {
	var convo strings.Builder
	for _, m := range window {
		convo.WriteString(string(m.Role))
		convo.WriteString(": ")
		convo.WriteString(m.Text)
		convo.WriteString("\n")
	}
	if convo.Len() == 0 {
		convo.WriteString("(start of call)\n")
	}

	hintLine := ""
	if len(hints) > 0 {
		var cats []string
		for _, h := range hints {
			cats = append(cats, string(h.Category))
		}
		hintLine = "Detected signals this turn: " + strings.Join(cats, ", ") + ".\n"
	}

	if facts == "" {
		facts = "(none)"
	}

	return fmt.Sprintf(analysisPromptTemplate, facts, convo.String(), utterance, hintLine)
}

// ParseDirection parses the analysis model's JSON output into a
// Direction, attempting one repair pass when the raw result is
// malformed or truncated.
func ParseDirection(raw string) (*types.Direction, error) {
	var d types.Direction
	if err := json.Unmarshal([]byte(extractJSON(raw)), &d); err != nil {
		repaired := RepairJSON(raw)
		if err2 := json.Unmarshal([]byte(repaired), &d); err2 != nil {
			return nil, core.NewParseError("unparseable analysis result: " + err.Error())
		}
	}
	normalizeDirection(&d)
	return &d, nil
}

// extractJSON trims any prose the model wrapped around the object.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// normalizeDirection replaces unknown enum values with safe defaults.
func normalizeDirection(d *types.Direction) {
	switch d.Phase {
	case types.PhaseOpening, types.PhaseMain, types.PhaseWindingDown, types.PhaseClosing:
	default:
		d.Phase = types.PhaseMain
	}
	switch d.Engagement {
	case types.EngagementLow, types.EngagementMedium, types.EngagementHigh:
	default:
		d.Engagement = types.EngagementMedium
	}
	switch d.EmotionalTone {
	case types.TonePositive, types.ToneNeutral, types.ToneConcerned, types.ToneSad:
	default:
		d.EmotionalTone = types.ToneNeutral
	}
	switch d.StayOrShift {
	case types.StayOnTopic, types.ShiftTransition, types.ShiftWrapUp:
	default:
		d.StayOrShift = types.StayOnTopic
	}
}
