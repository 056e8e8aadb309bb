package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports that a row expected to exist is missing. Callers that
// treat missing rows as recoverable data drift match on it with errors.Is.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

type Feed struct {
	ID                    int64
	URL                   string
	Title                 string
	Link                  string
	ReverseURL            string
	UseProxy              bool
	TotalStorys           int
	MonthlyStoryCount     MonthlyStoryCount
	Dryness               *float64
	DtFirstStoryPublished *time.Time
	DtCreated             time.Time
	DtUpdated             time.Time
}

type Story struct {
	ID           int64
	FeedID       int64
	Offset       int
	Title        string
	Link         string
	Content      string
	HasMathjax   bool
	IsUserMarked bool
	DtPublished  *time.Time
}

type UserStory struct {
	ID          int64
	UserID      int64
	FeedID      int64
	StoryID     int64
	Offset      int
	IsWatched   bool
	IsFavorited bool
}

type RawFetchRecord struct {
	ID         int64
	FeedID     int64
	StatusCode int
	DtCreated  time.Time
}

// NewStore opens the database and initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Feed lookups

const feedColumns = `id, url, title, link, reverse_url, use_proxy, total_storys,
	monthly_story_count, dryness, dt_first_story_published, dt_created, dt_updated`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var f Feed
	var monthly sql.NullString
	var dryness sql.NullFloat64
	if err := row.Scan(&f.ID, &f.URL, &f.Title, &f.Link, &f.ReverseURL, &f.UseProxy,
		&f.TotalStorys, &monthly, &dryness, &f.DtFirstStoryPublished,
		&f.DtCreated, &f.DtUpdated); err != nil {
		return nil, err
	}
	if dryness.Valid {
		v := dryness.Float64
		f.Dryness = &v
	}
	if monthly.Valid && monthly.String != "" {
		cnt, err := ParseMonthlyStoryCount(monthly.String)
		if err != nil {
			return nil, fmt.Errorf("feed %d: parse monthly_story_count: %w", f.ID, err)
		}
		f.MonthlyStoryCount = cnt
	}
	return &f, nil
}

// GetFeed returns a feed by id, or ErrNotFound.
func (s *Store) GetFeed(ctx context.Context, feedID int64) (*Feed, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+feedColumns+" FROM feeds WHERE id = ?", feedID)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get feed %d: %w", feedID, err)
	}
	return f, nil
}

// AddFeed inserts a feed and returns its id.
func (s *Store) AddFeed(ctx context.Context, feed *Feed) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (url, title, link, reverse_url, use_proxy, total_storys, dt_created, dt_updated)
		 VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))`,
		feed.URL, feed.Title, feed.Link, feed.ReverseURL, feed.UseProxy, feed.TotalStorys,
		nullTime(feed.DtCreated), nullTime(feed.DtUpdated),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add feed: %w", err)
	}
	return result.LastInsertId()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// GetAllFeedIDs returns every feed id ordered ascending.
func (s *Store) GetAllFeedIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM feeds ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get feed ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FindFeedIDsByKeyword returns ids of feeds whose url or title contains key.
func (s *Store) FindFeedIDsByKeyword(ctx context.Context, key string) ([]int64, error) {
	pattern := "%" + key + "%"
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM feeds WHERE url LIKE ? OR title LIKE ? ORDER BY id",
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find feeds by keyword: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FindFeedByKey looks a feed up by numeric id, or by the first url/title
// keyword match when key is not a number. Returns ErrNotFound when nothing
// matches.
func (s *Store) FindFeedByKey(ctx context.Context, key string) (*Feed, error) {
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return s.GetFeed(ctx, id)
	}
	pattern := "%" + key + "%"
	row := s.db.QueryRowContext(ctx,
		"SELECT "+feedColumns+" FROM feeds WHERE url LIKE ? OR title LIKE ? ORDER BY id LIMIT 1",
		pattern, pattern,
	)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed like %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find feed like %q: %w", key, err)
	}
	return f, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteFeed removes a single feed; storys and user_storys cascade.
func (s *Store) DeleteFeed(ctx context.Context, feedID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", feedID)
	if err != nil {
		return fmt.Errorf("failed to delete feed %d: %w", feedID, err)
	}
	return nil
}

// BulkDeleteFeeds removes all given feeds in one transaction. Either every
// feed is deleted or none are.
func (s *Store) BulkDeleteFeeds(ctx context.Context, feedIDs []int64) error {
	if len(feedIDs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := "DELETE FROM feeds WHERE id IN (" + placeholders(len(feedIDs)) + ")"
		if _, err := tx.ExecContext(ctx, query, int64Args(feedIDs)...); err != nil {
			return fmt.Errorf("failed to bulk delete feeds: %w", err)
		}
		return nil
	})
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// SetFeedUseProxy flips the proxy routing flag for a feed.
func (s *Store) SetFeedUseProxy(ctx context.Context, feedID int64, useProxy bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE feeds SET use_proxy = ?, dt_updated = CURRENT_TIMESTAMP WHERE id = ?",
		useProxy, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to set use_proxy for feed %d: %w", feedID, err)
	}
	return nil
}

// UpdateFeedReverseURL stores the canonicalized reverse url for a feed.
func (s *Store) UpdateFeedReverseURL(ctx context.Context, feedID int64, reverseURL string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE feeds SET reverse_url = ?, dt_updated = CURRENT_TIMESTAMP WHERE id = ?",
		reverseURL, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reverse_url for feed %d: %w", feedID, err)
	}
	return nil
}

// Story lookups and bookkeeping

const storyColumns = `id, feed_id, "offset", title, link, content, has_mathjax, is_user_marked, dt_published`

func scanStory(row interface{ Scan(...any) error }) (*Story, error) {
	var st Story
	if err := row.Scan(&st.ID, &st.FeedID, &st.Offset, &st.Title, &st.Link,
		&st.Content, &st.HasMathjax, &st.IsUserMarked, &st.DtPublished); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStoryByOffset returns the story at the given position within a feed,
// or ErrNotFound.
func (s *Store) GetStoryByOffset(ctx context.Context, feedID int64, offset int) (*Story, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM storys WHERE feed_id = ? AND "offset" = ?`,
		feedID, offset,
	)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("story feed_id=%d offset=%d: %w", feedID, offset, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get story feed_id=%d offset=%d: %w", feedID, offset, err)
	}
	return st, nil
}

// GetStory returns a story by id, or ErrNotFound.
func (s *Store) GetStory(ctx context.Context, storyID int64) (*Story, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+storyColumns+" FROM storys WHERE id = ?", storyID)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("story %d: %w", storyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get story %d: %w", storyID, err)
	}
	return st, nil
}

// AddStory inserts a story and returns its id.
func (s *Store) AddStory(ctx context.Context, st *Story) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO storys (feed_id, "offset", title, link, content, has_mathjax, is_user_marked, dt_published)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.FeedID, st.Offset, st.Title, st.Link, st.Content,
		st.HasMathjax, st.IsUserMarked, st.DtPublished,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add story: %w", err)
	}
	return result.LastInsertId()
}

// GetAllStoryIDs returns every story id ordered ascending.
func (s *Store) GetAllStoryIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM storys ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get story ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// SetStoryMathjax marks a story as containing math notation.
func (s *Store) SetStoryMathjax(ctx context.Context, storyID int64, hasMathjax bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE storys SET has_mathjax = ? WHERE id = ?", hasMathjax, storyID)
	if err != nil {
		return fmt.Errorf("failed to set has_mathjax for story %d: %w", storyID, err)
	}
	return nil
}

// UpdateStoryContent replaces a story's content.
func (s *Store) UpdateStoryContent(ctx context.Context, storyID int64, content string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE storys SET content = ? WHERE id = ?", content, storyID)
	if err != nil {
		return fmt.Errorf("failed to update content for story %d: %w", storyID, err)
	}
	return nil
}

// SetStoryUserMarked flags a story as having user activity.
func (s *Store) SetStoryUserMarked(ctx context.Context, storyID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE storys SET is_user_marked = 1 WHERE id = ?", storyID)
	if err != nil {
		return fmt.Errorf("failed to set is_user_marked for story %d: %w", storyID, err)
	}
	return nil
}

// User story records

// AddUserStory inserts a user story association and returns its id.
func (s *Store) AddUserStory(ctx context.Context, us *UserStory) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO user_storys (user_id, feed_id, story_id, "offset", is_watched, is_favorited)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		us.UserID, us.FeedID, us.StoryID, us.Offset, us.IsWatched, us.IsFavorited,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add user story: %w", err)
	}
	return result.LastInsertId()
}

// ListMarkedUserStorys returns every user story with watch or favorite
// activity.
func (s *Store) ListMarkedUserStorys(ctx context.Context) ([]UserStory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, feed_id, story_id, "offset", is_watched, is_favorited
		 FROM user_storys
		 WHERE is_watched = 1 OR is_favorited = 1
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list marked user storys: %w", err)
	}
	defer rows.Close()

	var items []UserStory
	for rows.Next() {
		var us UserStory
		if err := rows.Scan(&us.ID, &us.UserID, &us.FeedID, &us.StoryID,
			&us.Offset, &us.IsWatched, &us.IsFavorited); err != nil {
			return nil, fmt.Errorf("failed to scan user story: %w", err)
		}
		items = append(items, us)
	}
	return items, rows.Err()
}

// GetUserStory returns a user story by id, or ErrNotFound.
func (s *Store) GetUserStory(ctx context.Context, id int64) (*UserStory, error) {
	var us UserStory
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, feed_id, story_id, "offset", is_watched, is_favorited
		 FROM user_storys WHERE id = ?`, id,
	).Scan(&us.ID, &us.UserID, &us.FeedID, &us.StoryID, &us.Offset, &us.IsWatched, &us.IsFavorited)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user story %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user story %d: %w", id, err)
	}
	return &us, nil
}

// Raw fetch log

// AddRawFetchRecord appends a fetch attempt to the log. The log is
// append-only; rows are never updated.
func (s *Store) AddRawFetchRecord(ctx context.Context, feedID int64, statusCode int, created time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO raw_fetch_records (feed_id, status_code, dt_created) VALUES (?, ?, ?)",
		feedID, statusCode, created,
	)
	if err != nil {
		return fmt.Errorf("failed to add raw fetch record: %w", err)
	}
	return nil
}
