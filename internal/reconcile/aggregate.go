// Package reconcile implements the consistency-repair components: derived
// counter recomputation, user story offset repair, feed health
// classification, and refresh task scheduling. Each component is a
// sequential batch loop over a snapshot collection; per-record drift
// (missing rows) is logged and skipped, storage failures propagate.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feedctl/internal/storage"
)

// AggregateRecalculator recomputes per-feed derived counters from the
// authoritative story set. All operations are idempotent: re-running with
// no drift performs no writes.
type AggregateRecalculator struct {
	store *storage.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewAggregateRecalculator(store *storage.Store, log *slog.Logger) *AggregateRecalculator {
	return &AggregateRecalculator{store: store, log: log, now: time.Now}
}

// ListIncorrectTotals reports feeds whose stored total_storys disagrees
// with a recount, without mutating anything. Drivers preview this before
// repairing.
func (r *AggregateRecalculator) ListIncorrectTotals(ctx context.Context) ([]storage.IncorrectTotal, error) {
	return r.store.QueryIncorrectTotalStorys(ctx)
}

// FixTotalStorys corrects total_storys for each listed feed, one
// transaction per feed. Returns the number of feeds actually corrected.
func (r *AggregateRecalculator) FixTotalStorys(ctx context.Context, items []storage.IncorrectTotal) (int, error) {
	corrected := 0
	for _, item := range items {
		fixed, err := r.store.FixTotalStorys(ctx, item.FeedID)
		if errors.Is(err, storage.ErrNotFound) {
			r.log.Warn("feed vanished during total_storys repair", "feed_id", item.FeedID)
			continue
		}
		if err != nil {
			return corrected, err
		}
		if fixed {
			corrected++
		}
	}
	return corrected, nil
}

// RefreshMonthlyStoryCounts rebuilds the monthly story histogram for each
// feed.
func (r *AggregateRecalculator) RefreshMonthlyStoryCounts(ctx context.Context, feedIDs []int64) error {
	for _, feedID := range feedIDs {
		if _, err := r.store.RefreshMonthlyStoryCount(ctx, feedID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				r.log.Warn("feed not found", "feed_id", feedID)
				continue
			}
			return err
		}
	}
	return nil
}

// RefreshDryness recomputes the dryness score for each feed with storys,
// rebuilding the histogram first where the cached one is empty.
func (r *AggregateRecalculator) RefreshDryness(ctx context.Context, feedIDs []int64) error {
	for _, feedID := range feedIDs {
		if _, err := r.store.RefreshDryness(ctx, feedID, r.now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				r.log.Warn("feed not found", "feed_id", feedID)
				continue
			}
			return err
		}
	}
	return nil
}

// BackfillFirstPublished fills dt_first_story_published from the story at
// position 0 for each feed where it is unset. A missing first story means
// the data is transiently inconsistent; the feed is logged and skipped.
func (r *AggregateRecalculator) BackfillFirstPublished(ctx context.Context, feedIDs []int64) error {
	for _, feedID := range feedIDs {
		if _, err := r.store.BackfillFirstPublished(ctx, feedID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				r.log.Warn("story at offset 0 not found, skipping feed", "feed_id", feedID)
				continue
			}
			return err
		}
	}
	return nil
}
