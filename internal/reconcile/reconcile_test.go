package reconcile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"feedctl/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addTestFeed(t *testing.T, store *storage.Store, url string) int64 {
	t.Helper()
	id, err := store.AddFeed(context.Background(), &storage.Feed{URL: url, Title: "Feed " + url})
	if err != nil {
		t.Fatalf("AddFeed %s: %v", url, err)
	}
	return id
}

func addTestStory(t *testing.T, store *storage.Store, feedID int64, offset int, content string) int64 {
	t.Helper()
	now := time.Now()
	id, err := store.AddStory(context.Background(), &storage.Story{
		FeedID:      feedID,
		Offset:      offset,
		Title:       "story",
		Link:        "https://example.com/post/1",
		Content:     content,
		DtPublished: &now,
	})
	if err != nil {
		t.Fatalf("AddStory feed=%d offset=%d: %v", feedID, offset, err)
	}
	return id
}
