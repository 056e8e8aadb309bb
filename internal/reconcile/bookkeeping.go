package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"feedctl/internal/processor"
	"feedctl/internal/storage"
)

// Bookkeeper runs the single-field maintenance routines: math notation
// flags, story link rewriting, user-marked flags, and reverse urls.
type Bookkeeper struct {
	store *storage.Store
	log   *slog.Logger
}

func NewBookkeeper(store *storage.Store, log *slog.Logger) *Bookkeeper {
	return &Bookkeeper{store: store, log: log}
}

// UpdateStoryMathjax flags storys whose content contains math notation.
// Returns the number of storys flagged.
func (b *Bookkeeper) UpdateStoryMathjax(ctx context.Context, storyIDs []int64) (int, error) {
	flagged := 0
	for _, storyID := range storyIDs {
		story, err := b.store.GetStory(ctx, storyID)
		if errors.Is(err, storage.ErrNotFound) {
			b.log.Warn("story not found", "story_id", storyID)
			continue
		}
		if err != nil {
			return flagged, err
		}
		if story.HasMathjax || !processor.ContainsMathNotation(story.Content) {
			continue
		}
		if err := b.store.SetStoryMathjax(ctx, storyID, true); err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}

// ProcessStoryLinks rewrites relative links in story content against the
// story's own link, writing only when the content actually changed.
// Returns the number of storys rewritten.
func (b *Bookkeeper) ProcessStoryLinks(ctx context.Context, storyIDs []int64) (int, error) {
	rewritten := 0
	for _, storyID := range storyIDs {
		story, err := b.store.GetStory(ctx, storyID)
		if errors.Is(err, storage.ErrNotFound) {
			b.log.Warn("story not found", "story_id", storyID)
			continue
		}
		if err != nil {
			return rewritten, err
		}
		content, err := processor.RewriteLinks(story.Content, story.Link)
		if err != nil {
			b.log.Warn("failed to rewrite story links", "story_id", storyID, "error", err)
			continue
		}
		if content == story.Content {
			continue
		}
		if err := b.store.UpdateStoryContent(ctx, storyID, content); err != nil {
			return rewritten, err
		}
		rewritten++
	}
	return rewritten, nil
}

// SanitizeStoryContent strips dangerous markup from story content, writing
// only when sanitization changed it. Returns the number of storys cleaned.
func (b *Bookkeeper) SanitizeStoryContent(ctx context.Context, storyIDs []int64) (int, error) {
	cleaned := 0
	for _, storyID := range storyIDs {
		story, err := b.store.GetStory(ctx, storyID)
		if errors.Is(err, storage.ErrNotFound) {
			b.log.Warn("story not found", "story_id", storyID)
			continue
		}
		if err != nil {
			return cleaned, err
		}
		content := processor.Clean(story.Content)
		if content == story.Content {
			continue
		}
		if err := b.store.UpdateStoryContent(ctx, storyID, content); err != nil {
			return cleaned, err
		}
		cleaned++
	}
	return cleaned, nil
}

// UpdateUserMarked flags every story that has watch or favorite activity on
// any user story. Returns the number of storys flagged.
func (b *Bookkeeper) UpdateUserMarked(ctx context.Context) (int, error) {
	marked, err := b.store.ListMarkedUserStorys(ctx)
	if err != nil {
		return 0, err
	}
	flagged := 0
	seen := make(map[int64]bool, len(marked))
	for _, us := range marked {
		if seen[us.StoryID] {
			continue
		}
		seen[us.StoryID] = true
		if err := b.store.SetStoryUserMarked(ctx, us.StoryID); err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}

// UpdateReverseURL recomputes the canonical reverse url for each feed.
func (b *Bookkeeper) UpdateReverseURL(ctx context.Context, feedIDs []int64) error {
	for _, feedID := range feedIDs {
		feed, err := b.store.GetFeed(ctx, feedID)
		if errors.Is(err, storage.ErrNotFound) {
			b.log.Warn("feed not found", "feed_id", feedID)
			continue
		}
		if err != nil {
			return err
		}
		if err := b.store.UpdateFeedReverseURL(ctx, feedID, ReverseURL(feed.URL)); err != nil {
			return err
		}
	}
	return nil
}

// ReverseURL canonicalizes a feed url for sorting: host labels reversed and
// dot-joined, then '!' and the path. "https://blog.example.com/feed"
// becomes "com.example.blog!/feed". Unparseable urls map to "".
func ReverseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	labels := strings.Split(u.Hostname(), ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	reversed := strings.Join(labels, ".")
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return reversed + "!" + path
}
