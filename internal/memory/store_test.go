package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/models"
)

func setupStore(t *testing.T, opts ...Option) (*Store, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "memory_test.db")
	db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	store := NewStore(database.NewConversationRepo(db), opts...)
	return store, func() { db.Close() }
}

func appendAt(t *testing.T, store *Store, videoID string, role models.Role, content string, ts time.Time) *models.MemoryRecord {
	t.Helper()

	rec := models.NewMemoryRecord(videoID, role, content)
	rec.Timestamp = ts
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("Failed to append %q: %v", content, err)
	}
	return rec
}

func TestStore_AppendThenHistory(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	rec := appendAt(t, store, "video-1", models.RoleUser, "what is in this video?", time.Now())

	history, err := store.History(context.Background(), "video-1", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(history))
	}
	if history[0].MessageID != rec.MessageID {
		t.Errorf("Expected message id %s, got %s", rec.MessageID, history[0].MessageID)
	}
}

func TestStore_HistoryChronologicalAndBounded(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		content := []string{"one", "two", "three", "four", "five"}[i]
		appendAt(t, store, "video-1", models.RoleUser, content, base.Add(time.Duration(i)*time.Minute))
	}

	history, err := store.History(context.Background(), "video-1", 3, 0)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(history))
	}

	// Oldest-first, ending with the most recently appended.
	if history[0].Content != "three" || history[2].Content != "five" {
		t.Errorf("Wrong order: got %q .. %q", history[0].Content, history[2].Content)
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Errorf("History not chronological at %d", i)
		}
	}
}

func TestStore_ResetIdempotent(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	appendAt(t, store, "video-1", models.RoleUser, "hello", time.Now())
	appendAt(t, store, "video-1", models.RoleAssistant, "hi", time.Now())

	deleted, err := store.Reset(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	deleted, err = store.Reset(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("Second reset failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected 0 on second reset, got %d", deleted)
	}
}

func TestStore_RecentContextRendering(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	base := time.Now().Add(-time.Minute)
	appendAt(t, store, "video-1", models.RoleUser, "what happens at the start?", base)
	appendAt(t, store, "video-1", models.RoleAssistant, "a dog runs across the yard", base.Add(time.Second))

	narrative, err := store.RecentContext(context.Background(), "video-1", 10)
	if err != nil {
		t.Fatalf("Failed to render context: %v", err)
	}

	want := "User: what happens at the start?\nAssistant: a dog runs across the yard"
	if narrative != want {
		t.Errorf("Expected %q, got %q", want, narrative)
	}
}

func TestStore_RecentContextTruncation(t *testing.T) {
	store, cleanup := setupStore(t, WithContextChars(40))
	defer cleanup()

	base := time.Now().Add(-time.Minute)
	appendAt(t, store, "video-1", models.RoleUser, "this is a long early message that should be dropped", base)
	appendAt(t, store, "video-1", models.RoleAssistant, "short answer", base.Add(time.Second))

	narrative, err := store.RecentContext(context.Background(), "video-1", 10)
	if err != nil {
		t.Fatalf("Failed to render context: %v", err)
	}

	if len(narrative) > 40 {
		t.Errorf("Narrative exceeds budget: %d chars", len(narrative))
	}
	if !strings.Contains(narrative, "short answer") {
		t.Errorf("Most recent message must survive truncation, got %q", narrative)
	}
	if strings.Contains(narrative, "dropped") {
		t.Errorf("Oldest message should have been dropped, got %q", narrative)
	}
}
