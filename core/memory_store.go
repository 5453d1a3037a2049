package core

import (
	"context"
	"time"
)

// MemoryRecord is one long-term memory entry distilled from a completed
// session. Records are appended only; nothing updates them in place.
type MemoryRecord struct {
	ID        string    `json:"id"`
	AppName   string    `json:"app_name"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchResult is a scored memory hit.
type SearchResult struct {
	Record MemoryRecord `json:"record"`
	Score  float64      `json:"score"`
}

// MemoryStore persists long-term memory and answers keyword searches scoped to
// an application user.
type MemoryStore interface {
	// AddSession appends the textual events of sess as memory records. Events
	// that were already recorded for the same session are skipped.
	AddSession(ctx context.Context, sess *Session) error
	// Search returns up to limit records of (appName, userID) that match query,
	// best first. An empty query returns the most recent records.
	Search(ctx context.Context, appName, userID, query string, limit int) ([]SearchResult, error)
}
