package live

import (
	"strings"
	"sync"
)

// topicKeywords maps coverage topics to the keywords that mark them.
// Used by the tracker to remember what ground the conversation already
// covered so the model can avoid circling back.
var topicKeywords = map[string][]string{
	"health":       {"doctor", "medication", "pain", "sleep", "appointment", "pharmacy"},
	"family":       {"daughter", "son", "grandchild", "grandson", "granddaughter", "sister", "brother"},
	"meals":        {"breakfast", "lunch", "dinner", "cooking", "recipe", "eating"},
	"weather":      {"weather", "rain", "snow", "sunny", "cold", "warm"},
	"hobbies":      {"garden", "knitting", "crossword", "puzzle", "painting", "reading"},
	"television":   {"television", "tv show", "movie", "watching", "program"},
	"music":        {"music", "song", "radio", "singing", "choir"},
	"friends":      {"friend", "neighbor", "visited", "company"},
	"church":       {"church", "service", "prayer", "congregation"},
	"pets":         {"dog", "cat", "bird", "pet"},
	"news":         {"news", "newspaper", "election", "headline"},
	"sports":       {"game", "team", "baseball", "football", "golf"},
	"memories":     {"remember when", "back then", "years ago", "when i was"},
	"errands":      {"groceries", "shopping", "bank", "post office", "errand"},
	"home":         {"house", "apartment", "yard", "repair", "cleaning"},
	"travel":       {"trip", "vacation", "visit", "travel", "drive"},
}

// adviceLeadIns are imperative openings that mark a sentence as advice.
var adviceLeadIns = []string{
	"try ", "you could ", "you should ", "maybe you ", "you might ",
	"it might help ", "have you tried ", "why not ", "consider ",
}

// ExtractTopics returns the coverage topics matched in an utterance.
func ExtractTopics(utterance string) []string {
	lower := strings.ToLower(utterance)
	var topics []string
	for topic, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// ExtractQuestionLeads returns the opening words of each question
// sentence in a generated reply, capped at max.
func ExtractQuestionLeads(reply string, max int) []string {
	var leads []string
	for _, sentence := range splitSentences(reply) {
		if !strings.HasSuffix(sentence, "?") {
			continue
		}
		words := strings.Fields(sentence)
		if len(words) == 0 {
			continue
		}
		if len(words) > 6 {
			words = words[:6]
		}
		leads = append(leads, strings.Join(words, " "))
		if max > 0 && len(leads) >= max {
			break
		}
	}
	return leads
}

// ExtractAdvicePhrases returns sentences in a generated reply that open
// with an imperative advice lead-in, capped at max.
func ExtractAdvicePhrases(reply string, max int) []string {
	var phrases []string
	for _, sentence := range splitSentences(reply) {
		lower := strings.ToLower(sentence)
		for _, lead := range adviceLeadIns {
			if strings.HasPrefix(lower, lead) {
				phrases = append(phrases, sentence)
				break
			}
		}
		if max > 0 && len(phrases) >= max {
			break
		}
	}
	return phrases
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Tracker is the passive pipeline stage that observes both directions of
// the conversation. It accumulates covered topics from utterances and
// asked questions / given advice from replies, and exposes a formatted
// avoid-repeating summary for future model calls. It never mutates or
// drops events.
type Tracker struct {
	config TrackerConfig

	mu        sync.Mutex
	topics    []string
	topicSet  map[string]bool
	questions []string
	advice    []string
	replyBuf  strings.Builder
}

// NewTracker creates a tracker with the given caps.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		config:   config,
		topicSet: make(map[string]bool),
	}
}

// Name implements Stage.
func (t *Tracker) Name() string { return "tracker" }

// HandleUpstream records topics from each utterance and forwards it.
func (t *Tracker) HandleUpstream(ev Event) []Event {
	if utt, ok := ev.(*UtteranceEvent); ok {
		t.recordTopics(ExtractTopics(utt.Text))
	}
	return []Event{ev}
}

// HandleDownstream accumulates reply text and, once the reply completes,
// records its questions and advice. Events pass through untouched.
func (t *Tracker) HandleDownstream(ev Event) []Event {
	switch e := ev.(type) {
	case *ReplyDeltaEvent:
		t.mu.Lock()
		t.replyBuf.WriteString(e.Delta)
		t.mu.Unlock()
	case *ReplyCompleteEvent:
		t.mu.Lock()
		reply := t.replyBuf.String()
		t.replyBuf.Reset()
		t.mu.Unlock()
		t.recordReply(reply)
	}
	return []Event{ev}
}

func (t *Tracker) recordTopics(topics []string) {
	if len(topics) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, topic := range topics {
		if t.topicSet[topic] {
			continue
		}
		t.topicSet[topic] = true
		t.topics = append(t.topics, topic)
		if t.config.MaxTopics > 0 && len(t.topics) > t.config.MaxTopics {
			dropped := t.topics[0]
			t.topics = t.topics[1:]
			delete(t.topicSet, dropped)
		}
	}
}

func (t *Tracker) recordReply(reply string) {
	questions := ExtractQuestionLeads(reply, t.config.MaxQuestions)
	advice := ExtractAdvicePhrases(reply, t.config.MaxAdvice)
	if len(questions) == 0 && len(advice) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.questions = appendCapped(t.questions, questions, t.config.MaxQuestions)
	t.advice = appendCapped(t.advice, advice, t.config.MaxAdvice)
}

func appendCapped(existing, added []string, limit int) []string {
	existing = append(existing, added...)
	if limit > 0 && len(existing) > limit {
		existing = existing[len(existing)-limit:]
	}
	return existing
}

// Topics returns the current covered-topic list, oldest first.
func (t *Tracker) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.topics))
	copy(out, t.topics)
	return out
}

// Summary returns the formatted avoid-repeating summary for injection
// into model prompts. Empty when nothing has been tracked yet.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var parts []string
	if len(t.topics) > 0 {
		parts = append(parts, "Topics already discussed: "+strings.Join(t.topics, ", ")+".")
	}
	if len(t.questions) > 0 {
		parts = append(parts, "Questions already asked: "+strings.Join(t.questions, "; ")+".")
	}
	if len(t.advice) > 0 {
		parts = append(parts, "Suggestions already given: "+strings.Join(t.advice, "; ")+".")
	}
	return strings.Join(parts, " ")
}
