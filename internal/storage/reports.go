package storage

// The queries in this file are fixed, reviewed reports. They are kept as
// explicit parametrized functions returning structured rows; positional
// tuples never cross the package boundary.

import (
	"context"
	"fmt"
	"time"
)

// IncorrectTotal is one row of the total_storys drift report.
type IncorrectTotal struct {
	FeedID       int64
	TotalStorys  int
	CorrectTotal int
}

// QueryIncorrectTotalStorys lists feeds whose stored total_storys disagrees
// with the recomputed story count.
func (s *Store) QueryIncorrectTotalStorys(ctx context.Context) ([]IncorrectTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.total_storys, COUNT(st.id) AS correct_total
		FROM feeds f
		LEFT JOIN storys st ON st.feed_id = f.id
		GROUP BY f.id, f.total_storys
		HAVING f.total_storys != COUNT(st.id)
		ORDER BY f.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query incorrect total_storys: %w", err)
	}
	defer rows.Close()

	var items []IncorrectTotal
	for rows.Next() {
		var it IncorrectTotal
		if err := rows.Scan(&it.FeedID, &it.TotalStorys, &it.CorrectTotal); err != nil {
			return nil, fmt.Errorf("scan incorrect total row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// OffsetMismatch is one row of the user story offset drift report.
type OffsetMismatch struct {
	UserStoryID     int64
	UserStoryOffset int
	StoryOffset     int
}

// QueryOffsetMismatches returns every user story whose denormalized offset
// disagrees with its story's authoritative offset. Callers must treat the
// result as a single upfront snapshot; the two-phase repair depends on both
// phases iterating the same fixed list.
func (s *Store) QueryOffsetMismatches(ctx context.Context) ([]OffsetMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT us.id, us."offset", st."offset"
		FROM user_storys AS us
		JOIN storys AS st ON us.story_id = st.id
		WHERE us."offset" != st."offset"
		ORDER BY us.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query offset mismatches: %w", err)
	}
	defer rows.Close()

	var items []OffsetMismatch
	for rows.Next() {
		var m OffsetMismatch
		if err := rows.Scan(&m.UserStoryID, &m.UserStoryOffset, &m.StoryOffset); err != nil {
			return nil, fmt.Errorf("scan offset mismatch row: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ErrorFeedGroup is one (feed, status) group of the error feed report.
type ErrorFeedGroup struct {
	FeedID     int64
	Title      string
	Link       string
	URL        string
	StatusCode int
	Count      int
}

// QueryErrorFeedGroups groups fetch failures within the trailing window by
// (feed, status), keeping only groups with more than minCount records,
// ordered by count descending and capped at limit groups.
func (s *Store) QueryErrorFeedGroups(ctx context.Context, since time.Time, minCount, limit int) ([]ErrorFeedGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT error_feed.feed_id, f.title, f.link, f.url, error_feed.status_code, error_feed.count
		FROM (
			SELECT feed_id, status_code, COUNT(*) AS count
			FROM raw_fetch_records
			WHERE dt_created >= ? AND (status_code < 200 OR status_code >= 400)
			GROUP BY feed_id, status_code
			HAVING COUNT(*) > ?
			ORDER BY count DESC
			LIMIT ?
		) error_feed
		JOIN feeds f ON error_feed.feed_id = f.id
		ORDER BY error_feed.feed_id, error_feed.status_code, error_feed.count`,
		since, minCount, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query error feed groups: %w", err)
	}
	defer rows.Close()

	var items []ErrorFeedGroup
	for rows.Next() {
		var g ErrorFeedGroup
		if err := rows.Scan(&g.FeedID, &g.Title, &g.Link, &g.URL, &g.StatusCode, &g.Count); err != nil {
			return nil, fmt.Errorf("scan error feed group: %w", err)
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

// QueryOKFetchCounts counts successful fetches (2xx/3xx) per feed within the
// same trailing window, restricted to the given candidate feeds.
func (s *Store) QueryOKFetchCounts(ctx context.Context, since time.Time, feedIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int)
	if len(feedIDs) == 0 {
		return counts, nil
	}
	query := `
		SELECT feed_id, COUNT(*)
		FROM raw_fetch_records
		WHERE dt_created >= ? AND status_code >= 200 AND status_code < 400
			AND feed_id IN (` + placeholders(len(feedIDs)) + `)
		GROUP BY feed_id`
	args := append([]any{since}, int64Args(feedIDs)...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ok fetch counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var feedID int64
		var count int
		if err := rows.Scan(&feedID, &count); err != nil {
			return nil, fmt.Errorf("scan ok fetch count: %w", err)
		}
		counts[feedID] = count
	}
	return counts, rows.Err()
}

// ProxyCandidateFilter selects feeds worth probing for proxy need. All
// values are injectable tuning, not baked-in literals.
type ProxyCandidateFilter struct {
	TitleBlacklist    []string  // LIKE patterns excluded from probing
	CreatedSince      time.Time // recently created feeds are always probed
	MaxTotalStorys    int       // low-volume cutoff for the stale branch
	UpdatedBefore     time.Time // staleness cutoff for the low-volume branch
}

// QueryProxyCandidates returns feeds matching the candidate heuristic:
// title not on the blacklist, and either created recently or both
// low-volume and stale.
func (s *Store) QueryProxyCandidates(ctx context.Context, filter ProxyCandidateFilter) ([]Feed, error) {
	query := "SELECT " + feedColumns + " FROM feeds WHERE 1=1"
	var args []any
	for _, pattern := range filter.TitleBlacklist {
		query += " AND title NOT LIKE ?"
		args = append(args, pattern)
	}
	query += " AND (dt_created >= ? OR (total_storys <= ? AND dt_updated <= ?)) ORDER BY id"
	args = append(args, filter.CreatedSince, filter.MaxTotalStorys, filter.UpdatedBefore)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query proxy candidates: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proxy candidate: %w", err)
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}
