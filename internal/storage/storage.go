package storage

import (
	"context"
	"time"
)

// BlobStore uploads call recordings. Implementations must be safe for
// concurrent use across sessions.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
}

// SessionRecord is the structured row persisted per call session
type SessionRecord struct {
	SessionID  string    `json:"session_id"`
	HospitalID string    `json:"hospital_id"`
	Caller     string    `json:"caller_phone"`
	Status     string    `json:"status"`
	Summary    string    `json:"ai_summary,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// RecordStore persists structured session records keyed by session ID
type RecordStore interface {
	InsertSession(ctx context.Context, rec SessionRecord) error
	UpdateSession(ctx context.Context, sessionID string, fields map[string]any) error
}
