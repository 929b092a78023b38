package types

import "time"

// CallerProfile is the persisted profile of the person being called.
// The orchestration core reads it but never writes it; profile CRUD is
// owned by an external service.
type CallerProfile struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	PreferredName string   `json:"preferred_name,omitempty"`
	Timezone      string   `json:"timezone,omitempty"`
	Interests     []string `json:"interests,omitempty"`
	HealthNotes   []string `json:"health_notes,omitempty"`
	FamilyNotes   []string `json:"family_notes,omitempty"`
}

// DisplayName returns the name the companion should use when speaking.
func (p *CallerProfile) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.PreferredName != "" {
		return p.PreferredName
	}
	return p.Name
}

// Reminder is a pending reminder payload supplied at session bootstrap.
type Reminder struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Details string    `json:"details,omitempty"`
	DueAt   time.Time `json:"due_at,omitempty"`
}

// SessionBootstrap is everything the caller of the core supplies before
// the pipeline starts.
type SessionBootstrap struct {
	Profile         *CallerProfile `json:"profile"`
	PriorSummaries  []string       `json:"prior_summaries,omitempty"`
	PendingReminder *Reminder      `json:"pending_reminder,omitempty"`
	Outbound        bool           `json:"outbound"`
}
