package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumeo-health/checkin/internal/store/postgres"
	"github.com/lumeo-health/checkin/pkg/session"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if CHECKIN_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CHECKIN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHECKIN_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh store with a clean schema and registers
// cleanup to close it when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS journal_entries CASCADE",
		"DROP TABLE IF EXISTS suggestions CASCADE",
		"DROP TABLE IF EXISTS goose_db_version CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestSuggestionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	when := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	sg := session.Suggestion{
		ID:           "sug-1",
		SessionID:    "sess-1",
		Kind:         session.WidgetScheduleActivity,
		Title:        "Morning walk",
		ScheduledFor: &when,
		Payload:      []byte(`{"activity":"Morning walk","date":"2026-03-14","time":"10:30"}`),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.AddSuggestion(ctx, sg); err != nil {
		t.Fatalf("AddSuggestion: %v", err)
	}

	// Re-inserting the same id is not an error.
	if err := store.AddSuggestion(ctx, sg); err != nil {
		t.Fatalf("AddSuggestion duplicate: %v", err)
	}

	got, err := store.SuggestionsForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SuggestionsForSession: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 suggestion, got %d", len(got))
	}
	if got[0].Title != sg.Title {
		t.Errorf("Title: want %q, got %q", sg.Title, got[0].Title)
	}
	if got[0].Kind != session.WidgetScheduleActivity {
		t.Errorf("Kind: want %q, got %q", session.WidgetScheduleActivity, got[0].Kind)
	}
	if got[0].ScheduledFor == nil || !got[0].ScheduledFor.Equal(when) {
		t.Errorf("ScheduledFor: want %v, got %v", when, got[0].ScheduledFor)
	}

	// Suggestions from other sessions are not returned.
	other, err := store.SuggestionsForSession(ctx, "sess-2")
	if err != nil {
		t.Fatalf("SuggestionsForSession other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other session: want 0, got %d", len(other))
	}
}

func TestSuggestionWithoutSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sg := session.Suggestion{
		ID:        "sug-breathing",
		SessionID: "sess-1",
		Kind:      session.WidgetBreathingExercise,
		Title:     "Box breathing",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.AddSuggestion(ctx, sg); err != nil {
		t.Fatalf("AddSuggestion: %v", err)
	}
	got, err := store.SuggestionsForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SuggestionsForSession: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1, got %d", len(got))
	}
	if got[0].ScheduledFor != nil {
		t.Errorf("ScheduledFor: want nil, got %v", got[0].ScheduledFor)
	}
}

func TestDeleteSuggestion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sg := session.Suggestion{
		ID:        "sug-del",
		SessionID: "sess-1",
		Kind:      session.WidgetBreathingExercise,
		Title:     "Box breathing",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.AddSuggestion(ctx, sg); err != nil {
		t.Fatalf("AddSuggestion: %v", err)
	}
	if err := store.DeleteSuggestion(ctx, sg.ID); err != nil {
		t.Fatalf("DeleteSuggestion: %v", err)
	}
	got, err := store.SuggestionsForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SuggestionsForSession: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("after delete: want 0, got %d", len(got))
	}

	// Deleting an unknown id is not an error.
	if err := store.DeleteSuggestion(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteSuggestion unknown: unexpected error: %v", err)
	}
}

func TestAddJournalEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := session.JournalEntry{
		ID:        "journal-1",
		SessionID: "sess-1",
		Prompt:    "What felt heavy today, and what felt light?",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.AddJournalEntry(ctx, e); err != nil {
		t.Fatalf("AddJournalEntry: %v", err)
	}
	// Duplicate ids are ignored rather than rejected.
	if err := store.AddJournalEntry(ctx, e); err != nil {
		t.Fatalf("AddJournalEntry duplicate: %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	store.Close()

	again, err := postgres.NewStore(context.Background(), testDSN(t))
	if err != nil {
		t.Fatalf("NewStore second run: %v", err)
	}
	again.Close()
}
