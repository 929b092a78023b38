// Package store persists callers, memories, reminders, and call context
// behind one interface with SQLite and Postgres implementations. The
// orchestration core only sees the narrow collaborator interfaces;
// this package adds the bootstrap queries the gateway needs before a
// call starts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the full persistence surface. It satisfies the core's
// MemoryStore, ReminderStore, and ContextStore collaborator interfaces.
type Store interface {
	// GetProfile loads one caller profile.
	GetProfile(ctx context.Context, callerID string) (*types.CallerProfile, error)

	// SaveProfile inserts or updates a caller profile.
	SaveProfile(ctx context.Context, profile *types.CallerProfile) error

	// SearchMemories returns stored memories whose content matches the
	// query words, newest first.
	SearchMemories(ctx context.Context, callerID, query string, limit int) ([]types.MemoryRecord, error)

	// SaveMemory persists a new memory and returns its ID.
	SaveMemory(ctx context.Context, callerID, content string) (string, error)

	// NextReminder returns the earliest undelivered reminder due at or
	// before now, or nil when none is pending.
	NextReminder(ctx context.Context, callerID string, now time.Time) (*types.Reminder, error)

	// AddReminder schedules a reminder and returns its ID.
	AddReminder(ctx context.Context, callerID string, reminder types.Reminder) (string, error)

	// MarkDelivered records that a reminder was delivered on a call.
	MarkDelivered(ctx context.Context, reminderID, callID string, acknowledged bool) error

	// SaveCallContext writes the per-day call summary row.
	SaveCallContext(ctx context.Context, record types.CallContextRecord) error

	// RecentSummaries returns the latest call-context summaries, newest
	// first.
	RecentSummaries(ctx context.Context, callerID string, limit int) ([]string, error)

	// Close releases the underlying connections.
	Close() error
}

// Bootstrap assembles everything a new session needs for one caller:
// profile, the pending reminder (if one is due), and recent call
// summaries.
func Bootstrap(ctx context.Context, s Store, callerID string, outbound bool) (*types.SessionBootstrap, error) {
	profile, err := s.GetProfile(ctx, callerID)
	if err != nil {
		return nil, err
	}

	reminder, err := s.NextReminder(ctx, callerID, time.Now())
	if err != nil {
		return nil, err
	}

	summaries, err := s.RecentSummaries(ctx, callerID, 3)
	if err != nil {
		return nil, err
	}

	return &types.SessionBootstrap{
		Profile:         profile,
		PriorSummaries:  summaries,
		PendingReminder: reminder,
		Outbound:        outbound,
	}, nil
}
