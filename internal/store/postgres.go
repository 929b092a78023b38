package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// PostgresStore implements Store on a Postgres pool. The schema is
// managed by the embedded goose migrations; run them before opening.
type PostgresStore struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{
		pool:    pool,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *PostgresStore) newID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return prefix + ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// GetProfile implements Store.
func (s *PostgresStore) GetProfile(ctx context.Context, callerID string) (*types.CallerProfile, error) {
	var p types.CallerProfile
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, preferred_name, timezone, interests, health_notes, family_notes
		FROM callers WHERE id = $1`, callerID).
		Scan(&p.ID, &p.Name, &p.PreferredName, &p.Timezone, &p.Interests, &p.HealthNotes, &p.FamilyNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("caller %s: %w", callerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// SaveProfile implements Store.
func (s *PostgresStore) SaveProfile(ctx context.Context, profile *types.CallerProfile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO callers (id, name, preferred_name, timezone, interests, health_notes, family_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			preferred_name = excluded.preferred_name,
			timezone = excluded.timezone,
			interests = excluded.interests,
			health_notes = excluded.health_notes,
			family_notes = excluded.family_notes`,
		profile.ID, profile.Name, profile.PreferredName, profile.Timezone,
		profile.Interests, profile.HealthNotes, profile.FamilyNotes)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// SearchMemories implements Store.
func (s *PostgresStore) SearchMemories(ctx context.Context, callerID, query string, limit int) ([]types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	where := []string{"caller_id = $1"}
	args := []any{callerID}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		args = append(args, "%"+word+"%")
		where = append(where, fmt.Sprintf("content ILIKE $%d", len(args)))
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, `
		SELECT id, caller_id, content, created_at FROM memories
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var records []types.MemoryRecord
	for rows.Next() {
		var r types.MemoryRecord
		if err := rows.Scan(&r.ID, &r.CallerID, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("search memories: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveMemory implements Store.
func (s *PostgresStore) SaveMemory(ctx context.Context, callerID, content string) (string, error) {
	id := s.newID("mem_")
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memories (id, caller_id, content, created_at) VALUES ($1, $2, $3, now())`,
		id, callerID, content)
	if err != nil {
		return "", fmt.Errorf("save memory: %w", err)
	}
	return id, nil
}

// NextReminder implements Store.
func (s *PostgresStore) NextReminder(ctx context.Context, callerID string, now time.Time) (*types.Reminder, error) {
	var r types.Reminder
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, details, due_at FROM reminders
		WHERE caller_id = $1 AND delivered_at IS NULL AND due_at <= $2
		ORDER BY due_at ASC LIMIT 1`, callerID, now).
		Scan(&r.ID, &r.Title, &r.Details, &r.DueAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next reminder: %w", err)
	}
	return &r, nil
}

// AddReminder implements Store.
func (s *PostgresStore) AddReminder(ctx context.Context, callerID string, reminder types.Reminder) (string, error) {
	id := s.newID("rem_")
	dueAt := reminder.DueAt
	if dueAt.IsZero() {
		dueAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reminders (id, caller_id, title, details, due_at) VALUES ($1, $2, $3, $4, $5)`,
		id, callerID, reminder.Title, reminder.Details, dueAt)
	if err != nil {
		return "", fmt.Errorf("add reminder: %w", err)
	}
	return id, nil
}

// MarkDelivered implements Store.
func (s *PostgresStore) MarkDelivered(ctx context.Context, reminderID, callID string, acknowledged bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reminders SET delivered_at = now(), delivered_call_id = $1, acknowledged = $2
		WHERE id = $3`, callID, acknowledged, reminderID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	return nil
}

// SaveCallContext implements Store.
func (s *PostgresStore) SaveCallContext(ctx context.Context, record types.CallContextRecord) error {
	id := record.ID
	if id == "" {
		id = s.newID("cctx_")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_contexts (id, caller_id, day, summary, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, record.CallerID, record.Day, record.Summary, createdAt)
	if err != nil {
		return fmt.Errorf("save call context: %w", err)
	}
	return nil
}

// RecentSummaries implements Store.
func (s *PostgresStore) RecentSummaries(ctx context.Context, callerID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.pool.Query(ctx, `
		SELECT summary FROM call_contexts WHERE caller_id = $1
		ORDER BY created_at DESC LIMIT $2`, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, fmt.Errorf("recent summaries: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
