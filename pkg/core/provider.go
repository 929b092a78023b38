// Package core holds the shared error taxonomy and the contracts the
// orchestration layer expects from its external collaborators.
package core

import (
	"context"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// AuxiliaryModel is the slower analysis model the background direction
// engine calls once per turn. Implementations must honor context
// cancellation; the engine enforces a per-call timeout.
type AuxiliaryModel interface {
	// CreateCompletion sends a single-shot prompt and returns the raw
	// model text. The direction engine parses and repairs the result.
	CreateCompletion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)
}

// MemoryStore is the persisted memory collaborator queried by the
// predictive context cache and the recall/save tools.
type MemoryStore interface {
	// SearchMemories returns stored memories matching the query,
	// most relevant first.
	SearchMemories(ctx context.Context, callerID, query string, limit int) ([]types.MemoryRecord, error)

	// SaveMemory persists a new memory for the caller and returns its ID.
	SaveMemory(ctx context.Context, callerID, content string) (string, error)
}

// ReminderStore is the persisted reminder collaborator used by the
// reminder-acknowledgment tool.
type ReminderStore interface {
	// MarkDelivered records that a reminder was delivered on this call.
	MarkDelivered(ctx context.Context, reminderID, callID string, acknowledged bool) error
}

// ContextStore persists the per-day call-context record written when a
// session closes.
type ContextStore interface {
	SaveCallContext(ctx context.Context, record types.CallContextRecord) error
}
