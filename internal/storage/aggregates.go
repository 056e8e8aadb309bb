package storage

// Derived-counter recomputation. Each exported operation is scoped to one
// feed and runs inside its own transaction; re-running with no drift
// performs no writes.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FixTotalStorys recounts the feed's storys and corrects total_storys when
// the stored value disagrees. Returns whether a correction was written.
func (s *Store) FixTotalStorys(ctx context.Context, feedID int64) (bool, error) {
	fixed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var stored, correct int
		err := tx.QueryRowContext(ctx, "SELECT total_storys FROM feeds WHERE id = ?", feedID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get total_storys for feed %d: %w", feedID, err)
		}
		err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM storys WHERE feed_id = ?", feedID).Scan(&correct)
		if err != nil {
			return fmt.Errorf("count storys for feed %d: %w", feedID, err)
		}
		if stored == correct {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE feeds SET total_storys = ?, dt_updated = CURRENT_TIMESTAMP WHERE id = ?",
			correct, feedID,
		)
		if err != nil {
			return fmt.Errorf("fix total_storys for feed %d: %w", feedID, err)
		}
		fixed = true
		return nil
	})
	return fixed, err
}

// RefreshMonthlyStoryCount rebuilds the per-month story histogram from the
// feed's story publish timestamps and overwrites the cached value.
func (s *Store) RefreshMonthlyStoryCount(ctx context.Context, feedID int64) (MonthlyStoryCount, error) {
	var counts MonthlyStoryCount
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		counts, err = refreshMonthlyStoryCountTx(ctx, tx, feedID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func refreshMonthlyStoryCountTx(ctx context.Context, tx *sql.Tx, feedID int64) (MonthlyStoryCount, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT strftime('%Y-%m', dt_published) AS month, COUNT(*)
		 FROM storys
		 WHERE feed_id = ? AND dt_published IS NOT NULL
		 GROUP BY month
		 ORDER BY month`,
		feedID,
	)
	if err != nil {
		return nil, fmt.Errorf("group storys by month for feed %d: %w", feedID, err)
	}
	defer rows.Close()

	var counts MonthlyStoryCount
	for rows.Next() {
		var month string
		var count int
		if err := rows.Scan(&month, &count); err != nil {
			return nil, fmt.Errorf("scan month count: %w", err)
		}
		mc, err := parseMonth(month)
		if err != nil {
			return nil, err
		}
		mc.Count = count
		counts = append(counts, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE feeds SET monthly_story_count = ?, dt_updated = CURRENT_TIMESTAMP WHERE id = ?",
		counts.String(), feedID,
	)
	if err != nil {
		return nil, fmt.Errorf("update monthly_story_count for feed %d: %w", feedID, err)
	}
	return counts, nil
}

// RefreshDryness recomputes the feed's dryness score from its monthly story
// histogram, rebuilding the histogram first when the cached one is empty.
// Feeds with no storys are skipped. Returns whether a score was written.
func (s *Store) RefreshDryness(ctx context.Context, feedID int64, now time.Time) (bool, error) {
	refreshed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var totalStorys int
		var monthly sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT total_storys, monthly_story_count FROM feeds WHERE id = ?", feedID,
		).Scan(&totalStorys, &monthly)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get feed %d: %w", feedID, err)
		}
		if totalStorys <= 0 {
			return nil
		}

		var counts MonthlyStoryCount
		if monthly.Valid && monthly.String != "" {
			counts, err = ParseMonthlyStoryCount(monthly.String)
			if err != nil {
				return fmt.Errorf("feed %d: %w", feedID, err)
			}
		}
		if len(counts) == 0 {
			counts, err = refreshMonthlyStoryCountTx(ctx, tx, feedID)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE feeds SET dryness = ?, dt_updated = CURRENT_TIMESTAMP WHERE id = ?",
			counts.Dryness(now), feedID,
		)
		if err != nil {
			return fmt.Errorf("update dryness for feed %d: %w", feedID, err)
		}
		refreshed = true
		return nil
	})
	return refreshed, err
}

// BackfillFirstPublished sets dt_first_story_published from the story at
// offset 0. Feeds already backfilled or without storys are skipped with no
// write. A feed counted as non-empty whose story at offset 0 is missing
// returns ErrNotFound; the data may be transiently inconsistent and the
// caller is expected to skip it.
func (s *Store) BackfillFirstPublished(ctx context.Context, feedID int64) (bool, error) {
	set := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var totalStorys int
		var first *time.Time
		err := tx.QueryRowContext(ctx,
			"SELECT total_storys, dt_first_story_published FROM feeds WHERE id = ?", feedID,
		).Scan(&totalStorys, &first)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get feed %d: %w", feedID, err)
		}
		if first != nil || totalStorys <= 0 {
			return nil
		}

		var published *time.Time
		err = tx.QueryRowContext(ctx,
			`SELECT dt_published FROM storys WHERE feed_id = ? AND "offset" = 0`, feedID,
		).Scan(&published)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("story feed_id=%d offset=0: %w", feedID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get first story for feed %d: %w", feedID, err)
		}
		if published == nil {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE feeds SET dt_first_story_published = ?, dt_updated = CURRENT_TIMESTAMP WHERE id = ?",
			*published, feedID,
		)
		if err != nil {
			return fmt.Errorf("set dt_first_story_published for feed %d: %w", feedID, err)
		}
		set = true
		return nil
	})
	return set, err
}
