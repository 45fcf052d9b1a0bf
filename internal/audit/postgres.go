package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

var _ Store = (*PGStore)(nil)

// PGStore appends events to the security_audit table. Rows are never
// updated or deleted by the application.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`insert into security_audit(id, event_type, risk_level, principal, user_id,
			client_ip, user_agent, request_id, http_method, path, response_status,
			details, occurred_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, string(e.Type), string(e.Risk),
		nullString(e.Principal), nullString(e.UserID), nullString(e.ClientIP),
		nullString(e.UserAgent), nullString(e.RequestID), nullString(e.Method),
		nullString(e.Path), nullInt(e.Status),
		details, e.At,
	)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt32 {
	return sql.NullInt32{Int32: int32(n), Valid: n != 0}
}

var _ Store = (*MemStore)(nil)

// MemStore keeps events in memory for tests.
type MemStore struct {
	mu     sync.Mutex
	events []Event
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a snapshot of recorded events.
func (s *MemStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
