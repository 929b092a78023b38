package live

import "time"

// SessionConfig holds all configuration for one call session.
type SessionConfig struct {
	// Signal configures the synchronous signal detector.
	Signal SignalConfig `json:"signal"`

	// Direction configures the background analysis engine.
	Direction DirectionConfig `json:"direction"`

	// Goodbye configures the dual-party farewell gate.
	Goodbye GoodbyeConfig `json:"goodbye"`

	// Strip configures directive markup removal.
	Strip StripConfig `json:"strip"`

	// Tracker configures conversation tracking caps.
	Tracker TrackerConfig `json:"tracker"`

	// Cache configures the predictive context cache.
	Cache CacheConfig `json:"cache"`

	// TranscriptWindow is how many recent transcript messages the
	// analysis prompt includes. Default: 12.
	TranscriptWindow int `json:"transcript_window"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Signal:           DefaultSignalConfig(),
		Direction:        DefaultDirectionConfig(),
		Goodbye:          DefaultGoodbyeConfig(),
		Strip:            DefaultStripConfig(),
		Tracker:          DefaultTrackerConfig(),
		Cache:            DefaultCacheConfig(),
		TranscriptWindow: 12,
	}
}

// SignalConfig configures the signal detector.
type SignalConfig struct {
	// InjectGuidance enables per-turn directive injection for matched
	// signals. Default: true.
	InjectGuidance bool `json:"inject_guidance"`

	// FarewellHangupDelayMs is the single-party fast path: after a
	// strong farewell with no further speech, the call ends after this
	// delay. Default: 7000.
	FarewellHangupDelayMs int `json:"farewell_hangup_delay_ms"`
}

// DefaultSignalConfig returns a SignalConfig with sensible defaults.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		InjectGuidance:        true,
		FarewellHangupDelayMs: 7000,
	}
}

// DirectionConfig configures the background direction engine.
type DirectionConfig struct {
	// AnalysisTimeoutMs bounds one auxiliary-model call. Default: 6000.
	AnalysisTimeoutMs int `json:"analysis_timeout_ms"`

	// FailureThreshold is how many consecutive analysis failures open
	// the circuit breaker. Default: 3.
	FailureThreshold int `json:"failure_threshold"`

	// CooldownMs is how long the breaker stays open before a half-open
	// trial. Default: 30000.
	CooldownMs int `json:"cooldown_ms"`

	// SoftLimit is the elapsed call time after which the cached
	// Direction's phase is forced to winding_down. Default: 15m.
	SoftLimit time.Duration `json:"soft_limit"`

	// HardLimit is the elapsed call time after which a delayed,
	// cancellable termination is scheduled. Default: 20m.
	HardLimit time.Duration `json:"hard_limit"`

	// HardLimitGraceMs is the delay between hitting the hard limit and
	// actually ending the call, so the companion can say goodbye.
	// Default: 45000.
	HardLimitGraceMs int `json:"hard_limit_grace_ms"`
}

// DefaultDirectionConfig returns a DirectionConfig with sensible defaults.
func DefaultDirectionConfig() DirectionConfig {
	return DirectionConfig{
		AnalysisTimeoutMs: 6000,
		FailureThreshold:  3,
		CooldownMs:        30000,
		SoftLimit:         15 * time.Minute,
		HardLimit:         20 * time.Minute,
		HardLimitGraceMs:  45000,
	}
}

// GoodbyeConfig configures the dual-party farewell gate.
type GoodbyeConfig struct {
	// HangupDelayMs is the timer started once both parties have said
	// farewell. New user speech before expiry cancels it. Default: 2500.
	HangupDelayMs int `json:"hangup_delay_ms"`
}

// DefaultGoodbyeConfig returns a GoodbyeConfig with sensible defaults.
func DefaultGoodbyeConfig() GoodbyeConfig {
	return GoodbyeConfig{
		HangupDelayMs: 2500,
	}
}

// StripConfig configures directive markup removal.
type StripConfig struct {
	// OpenTag and CloseTag delimit directive text that must never be
	// spoken. Defaults: "<sys>" and "</sys>".
	OpenTag  string `json:"open_tag"`
	CloseTag string `json:"close_tag"`
}

// DefaultStripConfig returns a StripConfig with sensible defaults.
func DefaultStripConfig() StripConfig {
	return StripConfig{
		OpenTag:  "<sys>",
		CloseTag: "</sys>",
	}
}

// TrackerConfig configures conversation tracking caps.
type TrackerConfig struct {
	// MaxTopics bounds the rolling covered-topic list. Default: 12.
	MaxTopics int `json:"max_topics"`

	// MaxQuestions bounds recorded question leads. Default: 10.
	MaxQuestions int `json:"max_questions"`

	// MaxAdvice bounds recorded advice phrases. Default: 10.
	MaxAdvice int `json:"max_advice"`
}

// DefaultTrackerConfig returns a TrackerConfig with sensible defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxTopics:    12,
		MaxQuestions: 10,
		MaxAdvice:    10,
	}
}

// CacheConfig configures the predictive context cache.
type CacheConfig struct {
	// TTL is how long a cached lookup stays fresh. Default: 90s.
	TTL time.Duration `json:"ttl"`

	// Capacity bounds the cache; the oldest entry is evicted first.
	// Default: 24.
	Capacity int `json:"capacity"`

	// SimilarityThreshold is the minimum Jaccard word overlap for a
	// fuzzy hit. Default: 0.6.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// MaxConcurrentLookups bounds in-flight background prefetches.
	// Default: 3.
	MaxConcurrentLookups int `json:"max_concurrent_lookups"`

	// MaxQueriesPerUtterance bounds candidate queries extracted from a
	// single utterance. Default: 3.
	MaxQueriesPerUtterance int `json:"max_queries_per_utterance"`

	// LookupLimit is how many memories one store search returns.
	// Default: 3.
	LookupLimit int `json:"lookup_limit"`
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:                    90 * time.Second,
		Capacity:               24,
		SimilarityThreshold:    0.6,
		MaxConcurrentLookups:   3,
		MaxQueriesPerUtterance: 3,
		LookupLimit:            3,
	}
}
