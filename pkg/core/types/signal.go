package types

// SignalCategory classifies a pattern match against a single utterance.
type SignalCategory string

const (
	SignalHealth         SignalCategory = "health"
	SignalFamily         SignalCategory = "family"
	SignalEmotion        SignalCategory = "emotion"
	SignalSafety         SignalCategory = "safety"
	SignalSocial         SignalCategory = "social"
	SignalActivity       SignalCategory = "activity"
	SignalTime           SignalCategory = "time"
	SignalEnvironment    SignalCategory = "environment"
	SignalADL            SignalCategory = "adl"
	SignalCognitive      SignalCategory = "cognitive"
	SignalHelpRequest    SignalCategory = "help_request"
	SignalEndOfLife      SignalCategory = "end_of_life"
	SignalHydration      SignalCategory = "hydration"
	SignalTransportation SignalCategory = "transportation"
	SignalNews           SignalCategory = "news"
	SignalGoodbye        SignalCategory = "goodbye"
	SignalQuestion       SignalCategory = "question"
	SignalEngagement     SignalCategory = "engagement"
	SignalReminderAck    SignalCategory = "reminder_ack"
)

// SignalStrength grades how urgent or definite a signal is.
type SignalStrength string

const (
	SignalWeak   SignalStrength = "weak"
	SignalStrong SignalStrength = "strong"
)

// Signal is one categorized pattern match against a single utterance.
// Signals live for the turn that produced them; they are never persisted.
type Signal struct {
	Category SignalCategory `json:"category"`
	Label    string         `json:"label"`
	Strength SignalStrength `json:"strength"`
}
