package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addTestFeed(t *testing.T, store *Store, url string) int64 {
	t.Helper()
	id, err := store.AddFeed(context.Background(), &Feed{URL: url, Title: "Feed " + url})
	if err != nil {
		t.Fatalf("AddFeed %s: %v", url, err)
	}
	return id
}

func addTestStory(t *testing.T, store *Store, feedID int64, offset int, published time.Time) int64 {
	t.Helper()
	id, err := store.AddStory(context.Background(), &Story{
		FeedID:      feedID,
		Offset:      offset,
		Title:       "story",
		Link:        "https://example.com/story",
		DtPublished: &published,
	})
	if err != nil {
		t.Fatalf("AddStory feed=%d offset=%d: %v", feedID, offset, err)
	}
	return id
}

func TestGetFeedNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFeed(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddAndGetFeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID := addTestFeed(t, store, "https://example.com/feed.xml")
	feed, err := store.GetFeed(ctx, feedID)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if feed.URL != "https://example.com/feed.xml" {
		t.Errorf("url: got %q", feed.URL)
	}
	if feed.TotalStorys != 0 {
		t.Errorf("total_storys: got %d, want 0", feed.TotalStorys)
	}
	if feed.Dryness != nil {
		t.Errorf("dryness should be unset, got %v", *feed.Dryness)
	}
	if feed.DtCreated.IsZero() {
		t.Error("dt_created not set")
	}
}

func TestFindFeedByKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID := addTestFeed(t, store, "https://blog.example.com/rss")
	addTestFeed(t, store, "https://other.example.org/atom")

	byID, err := store.FindFeedByKey(ctx, "1")
	if err != nil {
		t.Fatalf("FindFeedByKey by id: %v", err)
	}
	if byID.ID != feedID {
		t.Errorf("by id: got feed %d, want %d", byID.ID, feedID)
	}

	byKeyword, err := store.FindFeedByKey(ctx, "blog")
	if err != nil {
		t.Fatalf("FindFeedByKey by keyword: %v", err)
	}
	if byKeyword.ID != feedID {
		t.Errorf("by keyword: got feed %d, want %d", byKeyword.ID, feedID)
	}

	if _, err := store.FindFeedByKey(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindFeedIDsByKeyword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := addTestFeed(t, store, "https://golang.example.com/feed")
	addTestFeed(t, store, "https://python.example.com/feed")

	ids, err := store.FindFeedIDsByKeyword(ctx, "golang")
	if err != nil {
		t.Fatalf("FindFeedIDsByKeyword: %v", err)
	}
	if len(ids) != 1 || ids[0] != a {
		t.Errorf("got %v, want [%d]", ids, a)
	}
}

func TestDeleteFeedCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID := addTestFeed(t, store, "https://example.com/feed")
	storyID := addTestStory(t, store, feedID, 0, time.Now())
	_, err := store.AddUserStory(ctx, &UserStory{
		UserID: 1, FeedID: feedID, StoryID: storyID, Offset: 0,
	})
	if err != nil {
		t.Fatalf("AddUserStory: %v", err)
	}

	if err := store.DeleteFeed(ctx, feedID); err != nil {
		t.Fatalf("DeleteFeed: %v", err)
	}

	if _, err := store.GetStory(ctx, storyID); !errors.Is(err, ErrNotFound) {
		t.Errorf("story should have cascaded, got %v", err)
	}
	marked, err := store.ListMarkedUserStorys(ctx)
	if err != nil {
		t.Fatalf("ListMarkedUserStorys: %v", err)
	}
	if len(marked) != 0 {
		t.Errorf("user storys should have cascaded, got %d", len(marked))
	}
}

func TestBulkDeleteFeeds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := addTestFeed(t, store, "https://a.example.com/feed")
	b := addTestFeed(t, store, "https://b.example.com/feed")
	c := addTestFeed(t, store, "https://c.example.com/feed")

	if err := store.BulkDeleteFeeds(ctx, []int64{a, c}); err != nil {
		t.Fatalf("BulkDeleteFeeds: %v", err)
	}

	ids, err := store.GetAllFeedIDs(ctx)
	if err != nil {
		t.Fatalf("GetAllFeedIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != b {
		t.Errorf("remaining feeds: got %v, want [%d]", ids, b)
	}
}

func TestBulkDeleteFeedsEmpty(t *testing.T) {
	store := newTestStore(t)

	if err := store.BulkDeleteFeeds(context.Background(), nil); err != nil {
		t.Fatalf("BulkDeleteFeeds with empty list: %v", err)
	}
}

func TestSetFeedUseProxy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID := addTestFeed(t, store, "https://example.com/feed")
	if err := store.SetFeedUseProxy(ctx, feedID, true); err != nil {
		t.Fatalf("SetFeedUseProxy: %v", err)
	}

	feed, err := store.GetFeed(ctx, feedID)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if !feed.UseProxy {
		t.Error("use_proxy not set")
	}
}

func TestGetStoryByOffset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID := addTestFeed(t, store, "https://example.com/feed")
	storyID := addTestStory(t, store, feedID, 3, time.Now())

	st, err := store.GetStoryByOffset(ctx, feedID, 3)
	if err != nil {
		t.Fatalf("GetStoryByOffset: %v", err)
	}
	if st.ID != storyID {
		t.Errorf("got story %d, want %d", st.ID, storyID)
	}

	if _, err := store.GetStoryByOffset(ctx, feedID, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoryOffsetUnique(t *testing.T) {
	store := newTestStore(t)

	feedID := addTestFeed(t, store, "https://example.com/feed")
	addTestStory(t, store, feedID, 0, time.Now())

	now := time.Now()
	_, err := store.AddStory(context.Background(), &Story{
		FeedID: feedID, Offset: 0, DtPublished: &now,
	})
	if err == nil {
		t.Fatal("expected unique constraint violation for duplicate offset")
	}
}

func TestListMarkedUserStorys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID := addTestFeed(t, store, "https://example.com/feed")
	watched := addTestStory(t, store, feedID, 0, time.Now())
	plain := addTestStory(t, store, feedID, 1, time.Now())

	if _, err := store.AddUserStory(ctx, &UserStory{
		UserID: 1, FeedID: feedID, StoryID: watched, Offset: 0, IsWatched: true,
	}); err != nil {
		t.Fatalf("AddUserStory: %v", err)
	}
	if _, err := store.AddUserStory(ctx, &UserStory{
		UserID: 1, FeedID: feedID, StoryID: plain, Offset: 1,
	}); err != nil {
		t.Fatalf("AddUserStory: %v", err)
	}

	marked, err := store.ListMarkedUserStorys(ctx)
	if err != nil {
		t.Fatalf("ListMarkedUserStorys: %v", err)
	}
	if len(marked) != 1 {
		t.Fatalf("expected 1 marked user story, got %d", len(marked))
	}
	if marked[0].StoryID != watched {
		t.Errorf("got story %d, want %d", marked[0].StoryID, watched)
	}
}

func TestSetStoryUserMarked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID := addTestFeed(t, store, "https://example.com/feed")
	storyID := addTestStory(t, store, feedID, 0, time.Now())

	if err := store.SetStoryUserMarked(ctx, storyID); err != nil {
		t.Fatalf("SetStoryUserMarked: %v", err)
	}
	st, err := store.GetStory(ctx, storyID)
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}
	if !st.IsUserMarked {
		t.Error("is_user_marked not set")
	}
}
