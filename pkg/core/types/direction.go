package types

// CallPhase names a phase of the four-phase call structure.
type CallPhase string

const (
	PhaseOpening     CallPhase = "opening"
	PhaseReminder    CallPhase = "reminder"
	PhaseMain        CallPhase = "main"
	PhaseWindingDown CallPhase = "winding_down"
	PhaseClosing     CallPhase = "closing"
)

// EngagementLevel grades how engaged the caller currently is.
type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// EmotionalTone summarizes the caller's emotional state.
type EmotionalTone string

const (
	TonePositive  EmotionalTone = "positive"
	ToneNeutral   EmotionalTone = "neutral"
	ToneConcerned EmotionalTone = "concerned"
	ToneSad       EmotionalTone = "sad"
)

// StayOrShift is the analysis engine's recommendation for topic flow.
type StayOrShift string

const (
	StayOnTopic     StayOrShift = "stay"
	ShiftTransition StayOrShift = "transition"
	ShiftWrapUp     StayOrShift = "wrap_up"
)

// ReminderPlan is the analysis engine's recommendation for reminder delivery.
type ReminderPlan struct {
	ShouldDeliver bool   `json:"should_deliver"`
	Which         string `json:"which,omitempty"`
	Approach      string `json:"approach,omitempty"`
}

// Direction is the structured result of one background analysis pass.
// Exactly one "current" Direction exists per session at any time; the
// Direction injected into turn N was computed from turn N-1's utterance.
type Direction struct {
	Phase         CallPhase       `json:"phase"`
	Engagement    EngagementLevel `json:"engagement"`
	EmotionalTone EmotionalTone   `json:"emotional_tone"`
	StayOrShift   StayOrShift     `json:"stay_or_shift"`
	ReminderPlan  ReminderPlan    `json:"reminder_plan"`
	ToneGuidance  string          `json:"tone_guidance,omitempty"`
	// AnticipatedTopic is the topic the engine expects the conversation
	// to move toward next. Used by the predictive context cache.
	AnticipatedTopic string `json:"anticipated_topic,omitempty"`
	// NewsTopic is a current-events topic worth looking up, if any.
	NewsTopic string `json:"news_topic,omitempty"`
}

// DefaultDirection is the safe Direction used when analysis fails or has
// not completed yet. It keeps the conversation warm and unhurried.
func DefaultDirection() *Direction {
	return &Direction{
		Phase:         PhaseMain,
		Engagement:    EngagementMedium,
		EmotionalTone: ToneNeutral,
		StayOrShift:   StayOnTopic,
		ToneGuidance:  "Keep a warm, unhurried tone and follow the caller's lead.",
	}
}
