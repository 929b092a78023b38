package types

import "time"

// MemoryRecord is a persisted caller memory, referenced by the core only
// by ID; the schema is owned by the store.
type MemoryRecord struct {
	ID        string    `json:"id"`
	CallerID  string    `json:"caller_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CallContextRecord is the per-day call-context row the session writes a
// summary into at call end.
type CallContextRecord struct {
	ID        string    `json:"id"`
	CallerID  string    `json:"caller_id"`
	Day       string    `json:"day"` // YYYY-MM-DD in the caller's timezone
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}
