package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reviewsync/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

type Repo struct {
	db *sql.DB
	d  Dialect
}

func New(db *sql.DB, d Dialect) *Repo { return &Repo{db: db, d: d} }

// Migrate applies the embedded schema; every statement is idempotent.
func (r *Repo) Migrate(ctx context.Context) error {
	for _, stmt := range r.d.ddl {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", r.d.Name, err)
		}
	}
	return nil
}

// ReplaceAll swaps the whole dataset in one transaction. An empty input is
// a no-op so a cycle where every provider failed cannot wipe the table.
func (r *Repo) ReplaceAll(ctx context.Context, rs []domain.Review) (int, error) {
	if len(rs) == 0 {
		log.Warn().Msg("replaceAll called with empty set; keeping existing reviews")
		return 0, nil
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteAllReviewsSQL); err != nil {
			return fmt.Errorf("delete all: %w", err)
		}
		return r.insertReviews(ctx, tx, rs)
	})
	if err != nil {
		return 0, err
	}
	return len(rs), nil
}

// ApplyDelta retires and inserts exactly the given rows in one transaction.
func (r *Repo) ApplyDelta(ctx context.Context, toInsert []domain.Review, toRetire []int64) error {
	if len(toInsert) == 0 && len(toRetire) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.deleteIDs(ctx, tx, toRetire); err != nil {
			return err
		}
		return r.insertReviews(ctx, tx, toInsert)
	})
}

func (r *Repo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %v: %w", err, domain.ErrPersistence)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Msg("rollback failed")
		}
		return fmt.Errorf("%v: %w", err, domain.ErrPersistence)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %v: %w", err, domain.ErrPersistence)
	}
	return nil
}

func (r *Repo) insertReviews(ctx context.Context, tx *sql.Tx, rs []domain.Review) error {
	for start := 0; start < len(rs); start += insertChunk {
		end := min(start+insertChunk, len(rs))
		chunk := rs[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*reviewParams)
		for _, rv := range chunk {
			cats, err := json.Marshal(rv.Categories)
			if err != nil {
				return fmt.Errorf("marshal categories: %w", err)
			}
			values = append(values, insertReviewTuple)
			args = append(args,
				rv.AuthorName,
				valStr(rv.AuthorURL),
				valStr(rv.ProfilePhotoURL),
				rv.Rating,
				rv.Text,
				rv.RelativeTime,
				rv.Timestamp,
				string(cats),
				string(rv.Source),
				valStr(rv.ReviewID),
				rv.FetchedAt.UnixMilli(),
			)
		}
		q := r.d.Rebind(insertReviewsPrefix + strings.Join(values, ","))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert reviews [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (r *Repo) deleteIDs(ctx context.Context, tx *sql.Tx, ids []int64) error {
	for start := 0; start < len(ids); start += insertChunk {
		end := min(start+insertChunk, len(ids))
		marks := strings.TrimSuffix(strings.Repeat("?,", end-start), ",")
		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}
		q := r.d.Rebind("DELETE FROM reviews WHERE id IN (" + marks + ")")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("retire reviews: %w", err)
		}
	}
	return nil
}

func (r *Repo) All(ctx context.Context) ([]domain.Review, error) {
	return r.query(ctx, selectAllReviewsSQL)
}

func (r *Repo) ListReviews(ctx context.Context, q domain.ReviewsQuery) ([]domain.Review, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(listReviewsBaseSQL)
	if q.Category != "" {
		// categories is a JSON array of strings; match one whole element
		sb.WriteString(" AND categories LIKE ? ESCAPE '!'")
		args = append(args, categoryPattern(q.Category))
	}
	if q.MinRating > 0 {
		sb.WriteString(" AND rating >= ?")
		args = append(args, q.MinRating)
	}
	if q.Source != "" {
		sb.WriteString(" AND source = ?")
		args = append(args, string(q.Source))
	}
	sb.WriteString(listReviewsOrderSQL)
	return r.query(ctx, r.d.Rebind(sb.String()), args...)
}

func (r *Repo) query(ctx context.Context, q string, args ...any) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var (
			rv         domain.Review
			authorURL  sql.NullString
			photoURL   sql.NullString
			reviewID   sql.NullString
			categories string
			source     string
			fetchedAt  int64
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.AuthorName,
			&authorURL,
			&photoURL,
			&rv.Rating,
			&rv.Text,
			&rv.RelativeTime,
			&rv.Timestamp,
			&categories,
			&source,
			&reviewID,
			&fetchedAt,
		); err != nil {
			return nil, err
		}
		rv.AuthorURL = strPtr(authorURL)
		rv.ProfilePhotoURL = strPtr(photoURL)
		rv.ReviewID = strPtr(reviewID)
		rv.Source = domain.Source(source)
		rv.FetchedAt = time.UnixMilli(fetchedAt).UTC()
		if err := json.Unmarshal([]byte(categories), &rv.Categories); err != nil || len(rv.Categories) == 0 {
			rv.Categories = []string{domain.CategoryGeneral}
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	if err := r.db.QueryRowContext(ctx, statsSQL).Scan(&st.Count, &st.Average); err != nil {
		return domain.Stats{}, err
	}
	return st, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// categoryPattern encodes c the way categories are stored and escapes the
// LIKE wildcards so the tag matches literally.
func categoryPattern(c string) string {
	b, _ := json.Marshal(c)
	return "%" + likeEscaper.Replace(string(b)) + "%"
}
