// Package postgres provides the PostgreSQL-backed persistence collaborator
// for check-in sessions. A single pgxpool.Pool backs all operations; schema
// migrations are embedded and applied on startup.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lumeo-health/checkin/pkg/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ session.Store = (*Store)(nil)

// Store persists suggestions and journal entries. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and applies pending migrations.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("checkin store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkin store: ping: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkin store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return goose.UpContext(ctx, db, "migrations")
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// AddSuggestion records a widget-derived suggestion.
func (s *Store) AddSuggestion(ctx context.Context, sg session.Suggestion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suggestions (id, session_id, kind, title, scheduled_for, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		sg.ID, sg.SessionID, string(sg.Kind), sg.Title, sg.ScheduledFor, sg.Payload, sg.CreatedAt)
	if err != nil {
		return fmt.Errorf("add suggestion: %w", err)
	}
	return nil
}

// DeleteSuggestion removes a suggestion, e.g. when the user dismisses the
// widget. Deleting an unknown id is not an error.
func (s *Store) DeleteSuggestion(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM suggestions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete suggestion: %w", err)
	}
	return nil
}

// AddJournalEntry records a journaling prompt shown to the user.
func (s *Store) AddJournalEntry(ctx context.Context, e session.JournalEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO journal_entries (id, session_id, prompt, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.SessionID, e.Prompt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("add journal entry: %w", err)
	}
	return nil
}

// SuggestionsForSession returns a session's suggestions in creation order.
func (s *Store) SuggestionsForSession(ctx context.Context, sessionID string) ([]session.Suggestion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, kind, title, scheduled_for, payload, created_at
		FROM suggestions WHERE session_id = $1 ORDER BY created_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var out []session.Suggestion
	for rows.Next() {
		var sg session.Suggestion
		var kind string
		if err := rows.Scan(&sg.ID, &sg.SessionID, &kind, &sg.Title, &sg.ScheduledFor, &sg.Payload, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		sg.Kind = session.WidgetKind(kind)
		out = append(out, sg)
	}
	return out, rows.Err()
}
