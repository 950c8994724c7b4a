package sqlstore

const reviewColumns = `id, author_name, author_url, profile_photo_url, rating, review_text,
  relative_time, ts, categories, source, review_id, fetched_at`

const insertReviewsPrefix = "INSERT INTO reviews\n  (author_name, author_url, profile_photo_url, rating, review_text, relative_time, ts, categories, source, review_id, fetched_at)\nVALUES "

const insertReviewTuple = "(?,?,?,?,?,?,?,?,?,?,?)"

const reviewParams = 11

// keeps every statement under the 65535-placeholder limit of mysql and postgres
const insertChunk = 500

const deleteAllReviewsSQL = `DELETE FROM reviews`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const selectAllReviewsSQL = `SELECT ` + reviewColumns + ` FROM reviews ORDER BY id`

// filters are appended as AND clauses by ListReviews
const listReviewsBaseSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE 1=1`

const listReviewsOrderSQL = ` ORDER BY ts DESC, id DESC`

const statsSQL = `SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM reviews`

const countSQL = `SELECT COUNT(*) FROM reviews`

// -----------------------------------------------------------------------------
// TOKENS
// -----------------------------------------------------------------------------

const getTokenSQL = `
SELECT service, access_token, refresh_token, expiry_date, account_id, location_id
FROM oauth_tokens
WHERE service = ?`

const insertTokenSQL = `
INSERT INTO oauth_tokens
  (service, access_token, refresh_token, expiry_date, account_id, location_id, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?)`

const updateTokenSQL = `
UPDATE oauth_tokens SET
  access_token  = ?,
  refresh_token = ?,
  expiry_date   = ?,
  account_id    = COALESCE(?, account_id),
  location_id   = COALESCE(?, location_id),
  updated_at    = ?
WHERE service = ?`
