package storage

const Schema = `
CREATE TABLE IF NOT EXISTS feeds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL DEFAULT '',
    link TEXT NOT NULL DEFAULT '',
    reverse_url TEXT NOT NULL DEFAULT '',
    use_proxy BOOLEAN NOT NULL DEFAULT 0,
    total_storys INTEGER NOT NULL DEFAULT 0,
    monthly_story_count TEXT,
    dryness REAL,
    dt_first_story_published DATETIME,
    dt_created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    dt_updated DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS storys (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed_id INTEGER NOT NULL,
    "offset" INTEGER NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    link TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    has_mathjax BOOLEAN NOT NULL DEFAULT 0,
    is_user_marked BOOLEAN NOT NULL DEFAULT 0,
    dt_published DATETIME,
    FOREIGN KEY (feed_id) REFERENCES feeds(id) ON DELETE CASCADE,
    UNIQUE(feed_id, "offset")
);

CREATE INDEX IF NOT EXISTS idx_storys_feed_id ON storys(feed_id);
CREATE INDEX IF NOT EXISTS idx_storys_published ON storys(dt_published DESC);

CREATE TABLE IF NOT EXISTS user_storys (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    feed_id INTEGER NOT NULL,
    story_id INTEGER NOT NULL,
    "offset" INTEGER NOT NULL,
    is_watched BOOLEAN NOT NULL DEFAULT 0,
    is_favorited BOOLEAN NOT NULL DEFAULT 0,
    FOREIGN KEY (story_id) REFERENCES storys(id) ON DELETE CASCADE,
    UNIQUE(user_id, feed_id, "offset")
);

CREATE INDEX IF NOT EXISTS idx_user_storys_story ON user_storys(story_id);

CREATE TABLE IF NOT EXISTS raw_fetch_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed_id INTEGER NOT NULL,
    status_code INTEGER NOT NULL,
    dt_created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_raw_fetch_feed ON raw_fetch_records(feed_id);
CREATE INDEX IF NOT EXISTS idx_raw_fetch_created ON raw_fetch_records(dt_created);

CREATE TABLE IF NOT EXISTS worker_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    api TEXT NOT NULL,
    key TEXT NOT NULL UNIQUE,
    priority INTEGER NOT NULL DEFAULT 0,
    feed_id INTEGER NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    use_proxy BOOLEAN NOT NULL DEFAULT 0,
    is_refresh BOOLEAN NOT NULL DEFAULT 0,
    dt_expired DATETIME NOT NULL,
    dt_created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_worker_tasks_expired ON worker_tasks(dt_expired);
`
