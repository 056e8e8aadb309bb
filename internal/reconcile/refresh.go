package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"feedctl/internal/storage"
	"feedctl/internal/unionid"
)

// SyncFeedAPI is the api name of the feed refresh task family.
const SyncFeedAPI = "worker_rss.sync_feed"

// RefreshTaskScheduler builds deduplicated, prioritized, expiring refresh
// tasks and submits them to the task table in one bulk upsert.
type RefreshTaskScheduler struct {
	store *storage.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewRefreshTaskScheduler(store *storage.Store, log *slog.Logger) *RefreshTaskScheduler {
	return &RefreshTaskScheduler{store: store, log: log, now: time.Now}
}

// ParseIDList parses a comma-separated id list. Malformed input fails fast
// before any mutation begins.
func ParseIDList(text string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CollectFeedIDs gathers target feeds from up to three sources: an explicit
// id list ("all" selects every feed), a list of encoded union ids, and a
// url/title keyword. The union is deduplicated and sorted so iteration
// order is deterministic.
func (s *RefreshTaskScheduler) CollectFeedIDs(ctx context.Context, explicit, encoded, keyword string) ([]int64, error) {
	var feedIDs []int64

	if explicit != "" {
		if explicit == "all" {
			ids, err := s.store.GetAllFeedIDs(ctx)
			if err != nil {
				return nil, err
			}
			feedIDs = append(feedIDs, ids...)
		} else {
			ids, err := ParseIDList(explicit)
			if err != nil {
				return nil, err
			}
			feedIDs = append(feedIDs, ids...)
		}
	}

	if encoded != "" {
		for _, part := range strings.Split(encoded, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			feedID, err := unionid.DecodeFeedID(part)
			if err != nil {
				return nil, fmt.Errorf("invalid union feed id %q: %w", part, err)
			}
			feedIDs = append(feedIDs, feedID)
		}
	}

	if keyword != "" {
		ids, err := s.store.FindFeedIDsByKeyword(ctx, keyword)
		if err != nil {
			return nil, err
		}
		feedIDs = append(feedIDs, ids...)
	}

	seen := make(map[int64]bool, len(feedIDs))
	unique := feedIDs[:0]
	for _, id := range feedIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	return unique, nil
}

// Schedule builds one refresh task per feed and submits the batch as a
// single bulk upsert. The dedup key api:feedID guarantees at most one live
// task per feed in the sync family; re-scheduling refreshes the existing
// task instead of duplicating it.
func (s *RefreshTaskScheduler) Schedule(ctx context.Context, feedIDs []int64, expireHours int) ([]storage.WorkerTask, error) {
	expiry := s.now().Add(time.Duration(expireHours) * time.Hour)
	tasks := make([]storage.WorkerTask, 0, len(feedIDs))
	for _, feedID := range feedIDs {
		feed, err := s.store.GetFeed(ctx, feedID)
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("feed not found, skipping refresh", "feed_id", feedID)
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, storage.WorkerTask{
			API:       SyncFeedAPI,
			Key:       fmt.Sprintf("%s:%d", SyncFeedAPI, feed.ID),
			Priority:  storage.PrioritySyncFeed,
			FeedID:    feed.ID,
			URL:       feed.URL,
			UseProxy:  feed.UseProxy,
			IsRefresh: true,
			DtExpired: expiry,
		})
	}
	if err := s.store.BulkSaveTasks(ctx, tasks); err != nil {
		return nil, err
	}
	s.log.Info("scheduled refresh tasks", "count", len(tasks))
	return tasks, nil
}
