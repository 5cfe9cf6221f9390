package session

import (
	"context"
	"time"
)

// Suggestion is a persisted activity or exercise suggestion derived from a
// widget.
type Suggestion struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Kind      WidgetKind `json:"kind"`
	Title     string     `json:"title"`
	// ScheduledFor is set for calendar suggestions.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Payload      []byte     `json:"payload,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// JournalEntry is a persisted journaling prompt shown to the user.
type JournalEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence collaborator. Calls may fail; failures surface as
// widget-level error states, never as a panic or session error.
type Store interface {
	AddSuggestion(ctx context.Context, s Suggestion) error
	DeleteSuggestion(ctx context.Context, id string) error
	AddJournalEntry(ctx context.Context, e JournalEntry) error
}
