// Package types defines the shared value types for the call orchestration
// core: transcript messages, caller profiles, reminders, signals, directions,
// and the tool contract exposed to the conversational model.
package types

import "time"

// Role identifies the speaker of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleDirective marks injected guidance that is shown to the
	// conversational model but never spoken aloud.
	RoleDirective Role = "directive"
)

// Message is one entry in the accumulated call transcript.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// TranscriptWindow returns the last n messages of the transcript.
func TranscriptWindow(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// CompletionRequest is a single-shot request to the auxiliary analysis model.
type CompletionRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// CompletionResponse is the raw text result from the auxiliary analysis model.
type CompletionResponse struct {
	Text      string    `json:"text"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
