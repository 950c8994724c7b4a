package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"reviewsync/internal/domain"
	"reviewsync/internal/storage/sqlstore"
)

func pstr(s string) *string { return &s }

func newSQLite(t *testing.T) *sqlstore.Repo {
	t.Helper()
	db, d, err := sqlstore.Open("sqlite", filepath.Join(t.TempDir(), "reviews.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := sqlstore.New(db, d)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func review(src domain.Source, id, text string, ts int64, rating int, cats ...string) domain.Review {
	if len(cats) == 0 {
		cats = []string{domain.CategoryGeneral}
	}
	r := domain.Review{
		AuthorName:   "Author " + text,
		Rating:       rating,
		Text:         text,
		RelativeTime: "a day ago",
		Timestamp:    ts,
		Categories:   cats,
		Source:       src,
		FetchedAt:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if id != "" {
		r.ReviewID = pstr(id)
	}
	return r
}

func texts(rs []domain.Review) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Text)
	}
	return out
}

func TestReplaceAll_EmptyIsNoop(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	if _, err := repo.ReplaceAll(ctx, []domain.Review{review(domain.SourceYelp, "a", "kept", 1, 5)}); err != nil {
		t.Fatal(err)
	}
	n, err := repo.ReplaceAll(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("want no-op, got n=%d err=%v", n, err)
	}
	all, _ := repo.All(ctx)
	if len(all) != 1 || all[0].Text != "kept" {
		t.Fatalf("store changed: %v", texts(all))
	}
}

func TestReplaceAll_SwapsDataset(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	_, _ = repo.ReplaceAll(ctx, []domain.Review{review(domain.SourceYelp, "a", "old", 1, 5)})
	n, err := repo.ReplaceAll(ctx, []domain.Review{
		review(domain.SourcePlaces, "", "new1", 2, 5),
		review(domain.SourceFacebook, "f", "new2", 3, 4),
	})
	if err != nil || n != 2 {
		t.Fatalf("replace: n=%d err=%v", n, err)
	}
	all, _ := repo.All(ctx)
	if len(all) != 2 || all[0].Text != "new1" || all[1].Text != "new2" {
		t.Fatalf("unexpected rows: %v", texts(all))
	}
	if all[0].ReviewID != nil || *all[1].ReviewID != "f" {
		t.Fatalf("review ids not round-tripped: %+v", all)
	}
	if !all[0].FetchedAt.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("fetchedAt: %v", all[0].FetchedAt)
	}
}

func TestReplaceAll_FailedInsertKeepsPriorData(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	_, _ = repo.ReplaceAll(ctx, []domain.Review{
		review(domain.SourceYelp, "a", "prior-1", 1, 5),
		review(domain.SourceYelp, "b", "prior-2", 2, 4),
	})

	// rating 9 violates the CHECK constraint mid-insert
	_, err := repo.ReplaceAll(ctx, []domain.Review{
		review(domain.SourcePlaces, "", "good", 3, 5),
		review(domain.SourcePlaces, "", "bad", 4, 9),
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
	all, _ := repo.All(ctx)
	if len(all) != 2 || all[0].Text != "prior-1" || all[1].Text != "prior-2" {
		t.Fatalf("prior dataset not intact: %v", texts(all))
	}
}

func TestApplyDelta_TouchesOnlyGivenRows(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	_, _ = repo.ReplaceAll(ctx, []domain.Review{
		review(domain.SourceDataForSEO, "d", "T", 100, 5),
		review(domain.SourceYelp, "y", "U", 200, 5),
	})
	before, _ := repo.All(ctx)

	err := repo.ApplyDelta(ctx, []domain.Review{review(domain.SourcePlaces, "", "T", 100, 5)}, []int64{before[0].ID})
	if err != nil {
		t.Fatal(err)
	}
	after, _ := repo.All(ctx)
	if len(after) != 2 {
		t.Fatalf("row count changed: %d", len(after))
	}
	if after[0].ID != before[1].ID || after[0].Text != "U" {
		t.Fatalf("unrelated row touched: %+v", after[0])
	}
	if after[1].Source != domain.SourcePlaces || after[1].Text != "T" {
		t.Fatalf("upgrade not applied: %+v", after[1])
	}
}

func TestApplyDelta_FailureRollsBackRetire(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	_, _ = repo.ReplaceAll(ctx, []domain.Review{review(domain.SourceYelp, "y", "keep", 1, 5)})
	before, _ := repo.All(ctx)

	err := repo.ApplyDelta(ctx, []domain.Review{review(domain.SourcePlaces, "", "bad", 2, 0)}, []int64{before[0].ID})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
	after, _ := repo.All(ctx)
	if len(after) != 1 || after[0].Text != "keep" {
		t.Fatalf("retire not rolled back: %v", texts(after))
	}
}

func TestListReviews_Filters(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	_, _ = repo.ReplaceAll(ctx, []domain.Review{
		review(domain.SourceYelp, "1", "oldest", 10, 5, "water_heater"),
		review(domain.SourcePlaces, "", "middle", 20, 4, "drain_cleaning", "pricing"),
		review(domain.SourceYelp, "2", "newest", 30, 4, "water_heater", "pricing"),
	})

	all, err := repo.ListReviews(ctx, domain.ReviewsQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if got := texts(all); len(got) != 3 || got[0] != "newest" || got[2] != "oldest" {
		t.Fatalf("want newest first, got %v", got)
	}

	byCat, _ := repo.ListReviews(ctx, domain.ReviewsQuery{Category: "pricing"})
	if got := texts(byCat); len(got) != 2 || got[0] != "newest" || got[1] != "middle" {
		t.Fatalf("category filter: %v", got)
	}

	byRating, _ := repo.ListReviews(ctx, domain.ReviewsQuery{MinRating: 5})
	if got := texts(byRating); len(got) != 1 || got[0] != "oldest" {
		t.Fatalf("minRating filter: %v", got)
	}

	combined, _ := repo.ListReviews(ctx, domain.ReviewsQuery{Category: "water_heater", Source: domain.SourceYelp, MinRating: 4})
	if got := texts(combined); len(got) != 2 {
		t.Fatalf("combined filter: %v", got)
	}
	if len(combined[0].Categories) != 2 || combined[0].Categories[1] != "pricing" {
		t.Fatalf("categories round trip: %v", combined[0].Categories)
	}
}

func TestListReviews_CategoryMatchesLiterally(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	_, _ = repo.ReplaceAll(ctx, []domain.Review{
		review(domain.SourceYelp, "1", "a", 10, 5, "general"),
		review(domain.SourceYelp, "2", "b", 20, 5, "pricing", "water_heater"),
	})

	for _, cat := range []string{"%", "_______", "water%heater", "water!heater", `pricing","water_heater`, "pric"} {
		got, err := repo.ListReviews(ctx, domain.ReviewsQuery{Category: cat})
		if err != nil {
			t.Fatalf("%q: %v", cat, err)
		}
		if len(got) != 0 {
			t.Fatalf("%q matched %v", cat, texts(got))
		}
	}
	got, _ := repo.ListReviews(ctx, domain.ReviewsQuery{Category: "water_heater"})
	if len(got) != 1 || got[0].Text != "b" {
		t.Fatalf("exact tag: %v", texts(got))
	}
}

func TestStatsAndCount(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()

	st, err := repo.Stats(ctx)
	if err != nil || st.Count != 0 || st.Average != 0 {
		t.Fatalf("empty stats: %+v %v", st, err)
	}
	_, _ = repo.ReplaceAll(ctx, []domain.Review{
		review(domain.SourceYelp, "1", "a", 1, 5),
		review(domain.SourceYelp, "2", "b", 2, 4),
		review(domain.SourceYelp, "3", "c", 3, 4),
	})
	st, err = repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 3 || st.Average < 4.33 || st.Average > 4.34 {
		t.Fatalf("stats: %+v", st)
	}
	if n, _ := repo.Count(ctx); n != 3 {
		t.Fatalf("count: %d", n)
	}
}

func TestTokens_InsertGetUpdate(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()

	if _, err := repo.GetToken(ctx, "google_my_business"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	exp := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	tok := domain.OAuthToken{
		Service:      "google_my_business",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiryDate:   exp,
		AccountID:    pstr("acc"),
		LocationID:   pstr("loc"),
	}
	if err := repo.InsertToken(ctx, tok); err != nil {
		t.Fatal(err)
	}

	tok.AccessToken = "at-2"
	tok.ExpiryDate = exp.Add(time.Hour)
	tok.AccountID, tok.LocationID = nil, nil
	if err := repo.UpdateToken(ctx, tok); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetToken(ctx, "google_my_business")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "at-2" || got.RefreshToken != "rt-1" || !got.ExpiryDate.Equal(exp.Add(time.Hour)) {
		t.Fatalf("token not updated: %+v", got)
	}
	if got.AccountID == nil || *got.AccountID != "acc" || *got.LocationID != "loc" {
		t.Fatalf("nil ids should keep stored values: %+v", got)
	}
}

func TestReplaceAll_InjectedFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reviews").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO reviews").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	repo := sqlstore.New(db, sqlstore.MySQL)
	_, err = repo.ReplaceAll(context.Background(), []domain.Review{review(domain.SourceYelp, "a", "x", 1, 5)})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyDelta_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reviews WHERE id IN ($1,$2)").
		WithArgs(int64(4), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	repo := sqlstore.New(db, sqlstore.Postgres)
	if err := repo.ApplyDelta(context.Background(), nil, []int64{4, 9}); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y IN (?,?)"
	if got := sqlstore.Postgres.Rebind(q); got != "SELECT a FROM t WHERE x = $1 AND y IN ($2,$3)" {
		t.Fatalf("postgres: %s", got)
	}
	if got := sqlstore.MySQL.Rebind(q); got != q {
		t.Fatalf("mysql should be untouched: %s", got)
	}
}
