package live

import (
	"strings"
	"testing"
)

func TestExtractTopics(t *testing.T) {
	topics := ExtractTopics("I saw the doctor about my knee, then my daughter came by")

	want := map[string]bool{"health": true, "family": true}
	for _, topic := range topics {
		delete(want, topic)
	}
	if len(want) != 0 {
		t.Errorf("missing topics %v in %v", want, topics)
	}
}

func TestExtractQuestionLeads(t *testing.T) {
	reply := "That sounds lovely. How is your sister doing these days? Did you sleep well?"
	leads := ExtractQuestionLeads(reply, 10)

	if len(leads) != 2 {
		t.Fatalf("expected 2 question leads, got %v", leads)
	}
	if !strings.HasPrefix(leads[0], "How is your sister") {
		t.Errorf("unexpected first lead: %q", leads[0])
	}
}

func TestExtractQuestionLeads_Cap(t *testing.T) {
	reply := "One? Two? Three? Four?"
	leads := ExtractQuestionLeads(reply, 2)
	if len(leads) != 2 {
		t.Errorf("expected cap of 2, got %v", leads)
	}
}

func TestExtractAdvicePhrases(t *testing.T) {
	reply := "Try drinking a glass of water before bed. The garden sounds nice. You could ask your neighbor for a ride."
	advice := ExtractAdvicePhrases(reply, 10)

	if len(advice) != 2 {
		t.Fatalf("expected 2 advice phrases, got %v", advice)
	}
}

func TestTracker_TopicRollingCap(t *testing.T) {
	config := DefaultTrackerConfig()
	config.MaxTopics = 2
	tr := NewTracker(config)

	tr.HandleUpstream(&UtteranceEvent{Text: "I saw the doctor"})          // health
	tr.HandleUpstream(&UtteranceEvent{Text: "my daughter visited"})       // family
	tr.HandleUpstream(&UtteranceEvent{Text: "the weather has been cold"}) // weather, evicts health

	topics := tr.Topics()
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %v", topics)
	}
	for _, topic := range topics {
		if topic == "health" {
			t.Error("oldest topic should have been dropped")
		}
	}

	// A dropped topic can come back.
	tr.HandleUpstream(&UtteranceEvent{Text: "back to the doctor tomorrow"})
	found := false
	for _, topic := range tr.Topics() {
		if topic == "health" {
			found = true
		}
	}
	if !found {
		t.Error("re-mentioned topic should be tracked again")
	}
}

func TestTracker_RecordsCompletedReplies(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	tr.HandleDownstream(&ReplyDeltaEvent{Delta: "How is your "})
	tr.HandleDownstream(&ReplyDeltaEvent{Delta: "garden doing? "})
	tr.HandleDownstream(&ReplyDeltaEvent{Delta: "Try watering it in the evening."})

	// Nothing recorded until the reply completes.
	if summary := tr.Summary(); strings.Contains(summary, "Questions") {
		t.Errorf("questions recorded before completion: %q", summary)
	}

	tr.HandleDownstream(&ReplyCompleteEvent{})

	summary := tr.Summary()
	if !strings.Contains(summary, "Questions already asked:") {
		t.Errorf("expected question in summary, got %q", summary)
	}
	if !strings.Contains(summary, "Suggestions already given:") {
		t.Errorf("expected advice in summary, got %q", summary)
	}
}

func TestTracker_SummaryEmptyWhenUntracked(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	if s := tr.Summary(); s != "" {
		t.Errorf("expected empty summary, got %q", s)
	}
}

func TestTracker_NeverMutatesEvents(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	utt := &UtteranceEvent{Text: "my daughter visited"}
	out := tr.HandleUpstream(utt)
	if len(out) != 1 || out[0] != Event(utt) {
		t.Error("tracker must forward utterances unchanged")
	}

	delta := &ReplyDeltaEvent{Delta: "hello"}
	out = tr.HandleDownstream(delta)
	if len(out) != 1 || out[0] != Event(delta) {
		t.Error("tracker must forward reply deltas unchanged")
	}
}
