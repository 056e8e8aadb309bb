package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TaskPriority orders worker tasks; higher runs first.
type TaskPriority int

const (
	PriorityDefault  TaskPriority = 0
	PrioritySyncFeed TaskPriority = 100
)

// WorkerTask is a unit of asynchronous work handed to the external worker.
// Key is the dedup key: submitting a task with an existing key supersedes
// the prior pending task instead of duplicating it.
type WorkerTask struct {
	ID        int64
	API       string
	Key       string
	Priority  TaskPriority
	FeedID    int64
	URL       string
	UseProxy  bool
	IsRefresh bool
	DtExpired time.Time
	DtCreated time.Time
}

// BulkSaveTasks submits a batch of tasks in one transaction, upserting on
// the dedup key. A task sharing a key with an existing pending task
// replaces it; the batch never produces two live tasks with the same key.
func (s *Store) BulkSaveTasks(ctx context.Context, tasks []WorkerTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO worker_tasks (api, key, priority, feed_id, url, use_proxy, is_refresh, dt_expired)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				api = excluded.api,
				priority = excluded.priority,
				feed_id = excluded.feed_id,
				url = excluded.url,
				use_proxy = excluded.use_proxy,
				is_refresh = excluded.is_refresh,
				dt_expired = excluded.dt_expired,
				dt_created = CURRENT_TIMESTAMP`,
		)
		if err != nil {
			return fmt.Errorf("prepare task upsert: %w", err)
		}
		defer stmt.Close()

		for _, task := range tasks {
			_, err := stmt.ExecContext(ctx, task.API, task.Key, task.Priority,
				task.FeedID, task.URL, task.UseProxy, task.IsRefresh, task.DtExpired)
			if err != nil {
				return fmt.Errorf("save task %s: %w", task.Key, err)
			}
		}
		return nil
	})
}

// PendingTasks returns unexpired tasks ordered by priority descending then
// creation time. Consumed by the external worker; exposed here for preview
// and tests.
func (s *Store) PendingTasks(ctx context.Context, now time.Time) ([]WorkerTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api, key, priority, feed_id, url, use_proxy, is_refresh, dt_expired, dt_created
		FROM worker_tasks
		WHERE dt_expired > ?
		ORDER BY priority DESC, dt_created, id`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []WorkerTask
	for rows.Next() {
		var t WorkerTask
		if err := rows.Scan(&t.ID, &t.API, &t.Key, &t.Priority, &t.FeedID,
			&t.URL, &t.UseProxy, &t.IsRefresh, &t.DtExpired, &t.DtCreated); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteExpiredTasks removes tasks whose expiry has passed. Returns the
// number of rows deleted.
func (s *Store) DeleteExpiredTasks(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM worker_tasks WHERE dt_expired <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tasks: %w", err)
	}
	return result.RowsAffected()
}
