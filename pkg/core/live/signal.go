package live

import (
	"strings"
	"sync"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// DetectSignals runs the ordered pattern table against one finalized
// utterance and returns every matched signal. Matching is
// case-insensitive; categories are not deduplicated against each other.
func DetectSignals(utterance string) []types.Signal {
	lower := strings.ToLower(utterance)
	var signals []types.Signal

	for _, rule := range signalRules {
		for _, phrase := range rule.Phrases {
			if strings.Contains(lower, phrase) {
				signals = append(signals, types.Signal{
					Category: rule.Category,
					Label:    rule.Label,
					Strength: rule.Strength,
				})
				break
			}
		}
	}

	if strength, ok := FarewellStrength(utterance); ok {
		signals = append(signals, types.Signal{
			Category: types.SignalGoodbye,
			Label:    "farewell",
			Strength: strength,
		})
	}

	if isQuestion(lower) {
		signals = append(signals, types.Signal{
			Category: types.SignalQuestion,
			Label:    "question",
			Strength: types.SignalWeak,
		})
	}

	return signals
}

// FarewellStrength classifies farewell phrasing in an utterance.
// Strong cues indicate the caller is actually ending the call; weak cues
// are conversational and only count toward the dual-party gate.
func FarewellStrength(utterance string) (types.SignalStrength, bool) {
	lower := strings.ToLower(utterance)
	for _, phrase := range strongFarewells {
		if strings.Contains(lower, phrase) {
			return types.SignalStrong, true
		}
	}
	for _, phrase := range weakFarewells {
		if containsWord(lower, phrase) {
			return types.SignalWeak, true
		}
	}
	return "", false
}

// containsWord reports whether phrase appears in text on word boundaries.
// Plain substring matching would let "bye" fire inside "maybe".
func containsWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '\''
}

func isQuestion(lower string) bool {
	trimmed := strings.TrimSpace(lower)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	for _, lead := range []string{"what ", "when ", "where ", "who ", "how ", "why ", "do you ", "can you ", "did you "} {
		if strings.HasPrefix(trimmed, lead) {
			return true
		}
	}
	return false
}

// GuidanceFor returns the directive guidance string for the
// highest-priority category among the matched signals, if any.
func GuidanceFor(signals []types.Signal) (string, bool) {
	matched := make(map[types.SignalCategory]bool, len(signals))
	for _, sig := range signals {
		matched[sig.Category] = true
	}
	for _, cat := range guidancePriority {
		if matched[cat] {
			if g, ok := guidanceByCategory[cat]; ok && g != "" {
				return g, true
			}
		}
	}
	return "", false
}

// ContainsAssistantFarewell reports whether generated reply text reads
// as the companion saying goodbye.
func ContainsAssistantFarewell(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range assistantFarewells {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// SignalDetector is the synchronous, zero-latency pipeline stage that
// pattern-matches each utterance. It forwards every utterance unchanged
// and may inject a directive event for the current turn. On a strong
// farewell it notifies the goodbye gate and arms a single-party
// fast-path hang-up that the next utterance cancels.
type SignalDetector struct {
	PassthroughStage

	config SignalConfig

	mu          sync.Mutex
	lastSignals []types.Signal

	// Callbacks wired by the session.
	onFarewell       func(strength types.SignalStrength)
	armFastHangup    func()
	cancelFastHangup func()
	onDebug          func(category, message string)
}

// NewSignalDetector creates a detector with the given configuration.
func NewSignalDetector(config SignalConfig) *SignalDetector {
	return &SignalDetector{config: config}
}

// SetCallbacks sets the event callbacks.
func (d *SignalDetector) SetCallbacks(
	onFarewell func(strength types.SignalStrength),
	armFastHangup func(),
	cancelFastHangup func(),
	onDebug func(category, message string),
) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onFarewell = onFarewell
	d.armFastHangup = armFastHangup
	d.cancelFastHangup = cancelFastHangup
	d.onDebug = onDebug
}

// Name implements Stage.
func (d *SignalDetector) Name() string { return "signal" }

// LastSignals returns the signals matched on the most recent utterance.
func (d *SignalDetector) LastSignals() []types.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Signal, len(d.lastSignals))
	copy(out, d.lastSignals)
	return out
}

// HandleUpstream analyzes one utterance. The utterance itself is always
// forwarded regardless of the analysis outcome.
func (d *SignalDetector) HandleUpstream(ev Event) []Event {
	utt, ok := ev.(*UtteranceEvent)
	if !ok {
		return []Event{ev}
	}

	// Any new speech cancels a pending single-party hang-up.
	d.mu.Lock()
	cancelFast := d.cancelFastHangup
	d.mu.Unlock()
	if cancelFast != nil {
		cancelFast()
	}

	signals := DetectSignals(utt.Text)

	d.mu.Lock()
	d.lastSignals = signals
	onFarewell := d.onFarewell
	armFast := d.armFastHangup
	d.mu.Unlock()

	out := []Event{}
	if len(signals) > 0 {
		out = append(out, &SignalsDetectedEvent{Signals: signals})
	}

	if d.config.InjectGuidance {
		if guidance, ok := GuidanceFor(signals); ok {
			d.debug("SIGNAL", "Injecting guidance: "+guidance)
			out = append(out, &DirectiveEvent{Text: guidance, Source: "signal"})
		}
	}

	for _, sig := range signals {
		if sig.Category != types.SignalGoodbye {
			continue
		}
		if onFarewell != nil {
			onFarewell(sig.Strength)
		}
		if sig.Strength == types.SignalStrong && armFast != nil {
			d.debug("SIGNAL", "Strong farewell, arming fast-path hang-up")
			armFast()
		}
	}

	return append(out, utt)
}

func (d *SignalDetector) debug(category, message string) {
	d.mu.Lock()
	onDebug := d.onDebug
	d.mu.Unlock()
	if onDebug != nil {
		onDebug(category, message)
	}
}
