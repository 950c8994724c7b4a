package sqlstore

var mysqlDDL = []string{`
CREATE TABLE IF NOT EXISTS reviews (
  id                BIGINT AUTO_INCREMENT PRIMARY KEY,
  author_name       VARCHAR(255) NOT NULL,
  author_url        TEXT NULL,
  profile_photo_url TEXT NULL,
  rating            TINYINT NOT NULL,
  review_text       TEXT NOT NULL,
  relative_time     VARCHAR(64) NOT NULL DEFAULT '',
  ts                BIGINT NOT NULL,
  categories        TEXT NOT NULL,
  source            VARCHAR(32) NOT NULL,
  review_id         VARCHAR(255) NULL,
  fetched_at        BIGINT NOT NULL,
  CONSTRAINT chk_reviews_rating CHECK (rating BETWEEN 1 AND 5),
  KEY idx_reviews_source_rid (source, review_id),
  KEY idx_reviews_ts (ts)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS oauth_tokens (
  service       VARCHAR(64) PRIMARY KEY,
  access_token  TEXT NOT NULL,
  refresh_token TEXT NOT NULL,
  expiry_date   BIGINT NOT NULL,
  account_id    VARCHAR(255) NULL,
  location_id   VARCHAR(255) NULL,
  updated_at    BIGINT NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresDDL = []string{`
CREATE TABLE IF NOT EXISTS reviews (
  id                BIGSERIAL PRIMARY KEY,
  author_name       TEXT NOT NULL,
  author_url        TEXT NULL,
  profile_photo_url TEXT NULL,
  rating            SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
  review_text       TEXT NOT NULL,
  relative_time     TEXT NOT NULL DEFAULT '',
  ts                BIGINT NOT NULL,
  categories        TEXT NOT NULL,
  source            TEXT NOT NULL,
  review_id         TEXT NULL,
  fetched_at        BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_source_rid ON reviews (source, review_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_ts ON reviews (ts)`, `
CREATE TABLE IF NOT EXISTS oauth_tokens (
  service       TEXT PRIMARY KEY,
  access_token  TEXT NOT NULL,
  refresh_token TEXT NOT NULL,
  expiry_date   BIGINT NOT NULL,
  account_id    TEXT NULL,
  location_id   TEXT NULL,
  updated_at    BIGINT NOT NULL
)`,
}

var sqliteDDL = []string{`
CREATE TABLE IF NOT EXISTS reviews (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  author_name       TEXT NOT NULL,
  author_url        TEXT NULL,
  profile_photo_url TEXT NULL,
  rating            INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
  review_text       TEXT NOT NULL,
  relative_time     TEXT NOT NULL DEFAULT '',
  ts                INTEGER NOT NULL,
  categories        TEXT NOT NULL,
  source            TEXT NOT NULL,
  review_id         TEXT NULL,
  fetched_at        INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_source_rid ON reviews (source, review_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_ts ON reviews (ts)`, `
CREATE TABLE IF NOT EXISTS oauth_tokens (
  service       TEXT PRIMARY KEY,
  access_token  TEXT NOT NULL,
  refresh_token TEXT NOT NULL,
  expiry_date   INTEGER NOT NULL,
  account_id    TEXT NULL,
  location_id   TEXT NULL,
  updated_at    INTEGER NOT NULL
)`,
}
