package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// SQLiteStore implements Store on a local SQLite database. Suitable for
// single-node deployments and tests; the schema is created on open.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return prefix + ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS callers (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		preferred_name TEXT NOT NULL DEFAULT '',
		timezone       TEXT NOT NULL DEFAULT '',
		interests      TEXT NOT NULL DEFAULT '[]',
		health_notes   TEXT NOT NULL DEFAULT '[]',
		family_notes   TEXT NOT NULL DEFAULT '[]',
		created_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		caller_id  TEXT NOT NULL REFERENCES callers(id),
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_caller ON memories(caller_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS reminders (
		id                TEXT PRIMARY KEY,
		caller_id         TEXT NOT NULL REFERENCES callers(id),
		title             TEXT NOT NULL,
		details           TEXT NOT NULL DEFAULT '',
		due_at            TEXT NOT NULL,
		delivered_at      TEXT,
		delivered_call_id TEXT,
		acknowledged      INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_pending ON reminders(caller_id, due_at) WHERE delivered_at IS NULL;

	CREATE TABLE IF NOT EXISTS call_contexts (
		id         TEXT PRIMARY KEY,
		caller_id  TEXT NOT NULL REFERENCES callers(id),
		day        TEXT NOT NULL,
		summary    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_call_contexts_caller ON call_contexts(caller_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetProfile implements Store.
func (s *SQLiteStore) GetProfile(ctx context.Context, callerID string) (*types.CallerProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, preferred_name, timezone, interests, health_notes, family_notes
		FROM callers WHERE id = ?`, callerID)

	var p types.CallerProfile
	var interests, healthNotes, familyNotes string
	err := row.Scan(&p.ID, &p.Name, &p.PreferredName, &p.Timezone, &interests, &healthNotes, &familyNotes)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("caller %s: %w", callerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if err := decodeStringList(interests, &p.Interests); err != nil {
		return nil, fmt.Errorf("get profile: interests: %w", err)
	}
	if err := decodeStringList(healthNotes, &p.HealthNotes); err != nil {
		return nil, fmt.Errorf("get profile: health notes: %w", err)
	}
	if err := decodeStringList(familyNotes, &p.FamilyNotes); err != nil {
		return nil, fmt.Errorf("get profile: family notes: %w", err)
	}
	return &p, nil
}

// SaveProfile implements Store.
func (s *SQLiteStore) SaveProfile(ctx context.Context, profile *types.CallerProfile) error {
	interests, err := encodeStringList(profile.Interests)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	healthNotes, err := encodeStringList(profile.HealthNotes)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	familyNotes, err := encodeStringList(profile.FamilyNotes)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO callers (id, name, preferred_name, timezone, interests, health_notes, family_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			preferred_name = excluded.preferred_name,
			timezone = excluded.timezone,
			interests = excluded.interests,
			health_notes = excluded.health_notes,
			family_notes = excluded.family_notes`,
		profile.ID, profile.Name, profile.PreferredName, profile.Timezone,
		interests, healthNotes, familyNotes, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// SearchMemories implements Store. Matching is keyword-based: every
// query word must appear in the memory content.
func (s *SQLiteStore) SearchMemories(ctx context.Context, callerID, query string, limit int) ([]types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	where := []string{"caller_id = ?"}
	args := []any{callerID}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		where = append(where, "LOWER(content) LIKE ?")
		args = append(args, "%"+word+"%")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caller_id, content, created_at FROM memories
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var records []types.MemoryRecord
	for rows.Next() {
		var r types.MemoryRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.CallerID, &r.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("search memories: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveMemory implements Store.
func (s *SQLiteStore) SaveMemory(ctx context.Context, callerID, content string) (string, error) {
	id := s.newID("mem_")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, caller_id, content, created_at) VALUES (?, ?, ?, ?)`,
		id, callerID, content, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("save memory: %w", err)
	}
	return id, nil
}

// NextReminder implements Store.
func (s *SQLiteStore) NextReminder(ctx context.Context, callerID string, now time.Time) (*types.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, details, due_at FROM reminders
		WHERE caller_id = ? AND delivered_at IS NULL AND due_at <= ?
		ORDER BY due_at ASC LIMIT 1`,
		callerID, now.UTC().Format(time.RFC3339))

	var r types.Reminder
	var dueAt string
	err := row.Scan(&r.ID, &r.Title, &r.Details, &dueAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next reminder: %w", err)
	}
	r.DueAt, _ = time.Parse(time.RFC3339, dueAt)
	return &r, nil
}

// AddReminder implements Store.
func (s *SQLiteStore) AddReminder(ctx context.Context, callerID string, reminder types.Reminder) (string, error) {
	id := s.newID("rem_")
	dueAt := reminder.DueAt
	if dueAt.IsZero() {
		dueAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, caller_id, title, details, due_at) VALUES (?, ?, ?, ?, ?)`,
		id, callerID, reminder.Title, reminder.Details, dueAt.UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("add reminder: %w", err)
	}
	return id, nil
}

// MarkDelivered implements Store.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, reminderID, callID string, acknowledged bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET delivered_at = ?, delivered_call_id = ?, acknowledged = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), callID, boolToInt(acknowledged), reminderID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	return nil
}

// SaveCallContext implements Store.
func (s *SQLiteStore) SaveCallContext(ctx context.Context, record types.CallContextRecord) error {
	id := record.ID
	if id == "" {
		id = s.newID("cctx_")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_contexts (id, caller_id, day, summary, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, record.CallerID, record.Day, record.Summary, createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save call context: %w", err)
	}
	return nil
}

// RecentSummaries implements Store.
func (s *SQLiteStore) RecentSummaries(ctx context.Context, callerID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT summary FROM call_contexts WHERE caller_id = ?
		ORDER BY created_at DESC LIMIT ?`, callerID, limit)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeStringList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	return string(data), err
}

func decodeStringList(data string, out *[]string) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), out)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
