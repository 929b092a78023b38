package live

import (
	"github.com/sundial-care/sundial/pkg/core/types"
)

// patternRule maps one labeled set of phrases to a signal. Rules are
// checked in table order against the lowercased utterance; every rule
// that matches fires, so one utterance can produce several signals.
type patternRule struct {
	Category types.SignalCategory
	Label    string
	Strength types.SignalStrength
	Phrases  []string
}

// Falls and injuries report under both safety and health: the incident
// is a safety matter, its aftermath a health one.
var fallPhrases = []string{
	"i fell", "i slipped", "fell down", "fell over", "took a fall",
	"on the floor and couldn't", "couldn't get up",
}

var injuryPhrases = []string{
	"i hurt myself", "i cut myself", "i burned myself", "bleeding",
	"i bruised", "hit my head",
}

// signalRules is the ordered category-to-pattern table. Urgent
// categories come first so their guidance wins when priorities tie.
var signalRules = []patternRule{
	// Safety: falls, injuries, alarm conditions.
	{types.SignalSafety, "fall", types.SignalStrong, fallPhrases},
	{types.SignalSafety, "injury", types.SignalStrong, injuryPhrases},
	{types.SignalSafety, "hazard", types.SignalWeak, []string{
		"smoke", "smell gas", "left the stove", "door unlocked",
		"stranger at the door", "someone knocking",
	}},

	// End of life: always urgent, never paraphrased back casually.
	{types.SignalEndOfLife, "mortality", types.SignalStrong, []string{
		"want to die", "better off dead", "end it all", "not worth living",
		"ready to go", "when i'm gone", "won't be around much longer",
	}},
	{types.SignalEndOfLife, "grief", types.SignalWeak, []string{
		"passed away", "funeral", "since he died", "since she died",
		"lost my husband", "lost my wife",
	}},

	// Health.
	{types.SignalHealth, "fall", types.SignalStrong, fallPhrases},
	{types.SignalHealth, "injury", types.SignalStrong, injuryPhrases},
	{types.SignalHealth, "pain", types.SignalStrong, []string{
		"chest pain", "can't breathe", "trouble breathing", "dizzy",
		"short of breath", "heart racing",
	}},
	{types.SignalHealth, "symptom", types.SignalWeak, []string{
		"my back hurts", "headache", "my knee", "my hip", "arthritis",
		"didn't sleep", "feeling tired", "feel sick", "nauseous",
		"blood pressure", "my medication", "the doctor said",
	}},
	{types.SignalHealth, "appointment", types.SignalWeak, []string{
		"doctor's appointment", "seeing the doctor", "the clinic",
		"physical therapy", "the hospital",
	}},

	// Cognitive.
	{types.SignalCognitive, "memory", types.SignalStrong, []string{
		"can't remember", "i forget things", "keep forgetting",
		"what day is it", "i'm confused", "getting confused",
	}},
	{types.SignalCognitive, "repetition", types.SignalWeak, []string{
		"did i already tell you", "did i say that already",
		"have i told you this",
	}},

	// Emotion.
	{types.SignalEmotion, "low", types.SignalStrong, []string{
		"i'm so lonely", "nobody visits", "nobody calls", "i feel alone",
		"i've been crying", "so sad", "depressed",
	}},
	{types.SignalEmotion, "down", types.SignalWeak, []string{
		"feeling down", "a bit sad", "miss the old days", "not myself",
		"worried about", "anxious",
	}},
	{types.SignalEmotion, "up", types.SignalWeak, []string{
		"wonderful", "i'm so happy", "made my day", "delighted",
	}},

	// Reminder acknowledgment.
	{types.SignalReminderAck, "ack", types.SignalStrong, []string{
		"i took my", "i already took", "just took it", "i'll take it now",
		"yes i did", "already done that", "i remembered to",
	}},

	// Help requests.
	{types.SignalHelpRequest, "help", types.SignalStrong, []string{
		"can you help", "i need help", "could someone", "who do i call",
		"how do i",
	}},

	// Family.
	{types.SignalFamily, "family", types.SignalWeak, []string{
		"my daughter", "my son", "my grandson", "my granddaughter",
		"my grandchildren", "my sister", "my brother", "my niece",
		"my nephew", "the kids",
	}},

	// Social.
	{types.SignalSocial, "social", types.SignalWeak, []string{
		"my neighbor", "my friend", "church", "the senior center",
		"bridge club", "bingo", "visited me", "came by",
	}},

	// Activities.
	{types.SignalActivity, "activity", types.SignalWeak, []string{
		"gardening", "knitting", "crossword", "watched a movie",
		"went for a walk", "baking", "reading a book", "puzzle",
	}},

	// Activities of daily living.
	{types.SignalADL, "adl", types.SignalWeak, []string{
		"getting dressed", "taking a shower", "making dinner", "cooking",
		"the laundry", "cleaning the house", "groceries",
	}},

	// Hydration and meals.
	{types.SignalHydration, "hydration", types.SignalWeak, []string{
		"haven't eaten", "not hungry", "skipped lunch", "skipped breakfast",
		"drinking water", "haven't had anything to drink",
	}},

	// Transportation.
	{types.SignalTransportation, "transport", types.SignalWeak, []string{
		"the bus", "can't drive", "gave up driving", "a ride to",
		"taxi", "my car",
	}},

	// Time and orientation.
	{types.SignalTime, "time", types.SignalWeak, []string{
		"this morning", "last night", "yesterday", "tomorrow",
		"this weekend", "next week",
	}},

	// Environment.
	{types.SignalEnvironment, "environment", types.SignalWeak, []string{
		"the weather", "raining", "snowing", "too hot", "too cold",
		"the garden", "the house is",
	}},

	// News and current events.
	{types.SignalNews, "news", types.SignalWeak, []string{
		"on the news", "in the paper", "did you hear about", "the election",
		"the game last night",
	}},

	// Engagement cues.
	{types.SignalEngagement, "short", types.SignalWeak, []string{
		"i guess", "if you say so", "i don't know", "whatever you think",
	}},
}

// guidanceByCategory is the short directive injected for the
// highest-priority matched category on the current turn.
var guidanceByCategory = map[types.SignalCategory]string{
	types.SignalSafety:      "The caller may be describing a safety incident. Ask gently whether they are hurt and whether anyone has checked on them. Do not move on until you understand what happened.",
	types.SignalEndOfLife:   "The caller touched on mortality or loss. Slow down, acknowledge the feeling directly, and stay with the subject as long as they want. Never change the topic abruptly.",
	types.SignalHealth:      "The caller mentioned a health concern. Ask one caring follow-up question about it before anything else.",
	types.SignalCognitive:   "The caller showed signs of confusion or memory trouble. Keep sentences short, repeat key details naturally, and stay reassuring.",
	types.SignalEmotion:     "The caller expressed a strong feeling. Reflect it back warmly before continuing the conversation.",
	types.SignalReminderAck: "The caller appears to be confirming a reminder. Acknowledge it and record the acknowledgment with the reminder tool.",
	types.SignalHelpRequest: "The caller asked for help. Answer plainly and offer to look things up before moving on.",
}

// guidancePriority orders categories for picking which guidance to
// inject when several signals fire on one utterance.
var guidancePriority = []types.SignalCategory{
	types.SignalSafety,
	types.SignalEndOfLife,
	types.SignalHealth,
	types.SignalCognitive,
	types.SignalEmotion,
	types.SignalReminderAck,
	types.SignalHelpRequest,
}

// Farewell cue tables, checked case-insensitively.
var strongFarewells = []string{
	"goodbye", "bye bye", "bye-bye", "talk to you later",
	"talk to you tomorrow", "gotta go", "have to go now", "i should go",
	"good night", "goodnight", "i'm going to hang up",
}

var weakFarewells = []string{
	"bye", "see you", "take care", "so long", "until next time",
	"talk soon",
}

// assistantFarewells are phrases in generated reply text that count as
// the companion's side of a farewell.
var assistantFarewells = []string{
	"goodbye", "bye for now", "talk to you", "take care", "good night",
	"have a lovely", "have a wonderful", "until next time", "speak soon",
}
