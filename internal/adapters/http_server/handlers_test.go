package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	server "reviewsync/internal/adapters/http_server"
	"reviewsync/internal/app"
	"reviewsync/internal/domain"
)

type fakeQueries struct {
	reviews   []domain.ReviewView
	stats     domain.StatsView
	err       error
	lastQuery domain.ReviewsQuery
	lastForce bool
}

func (f *fakeQueries) ListReviews(ctx context.Context, q domain.ReviewsQuery, force bool) ([]domain.ReviewView, error) {
	f.lastQuery, f.lastForce = q, force
	return f.reviews, f.err
}

func (f *fakeQueries) Stats(ctx context.Context) (domain.StatsView, error) { return f.stats, f.err }

type fixedLastRun time.Time

func (f fixedLastRun) LastRun() time.Time { return time.Time(f) }

func newTestServer(q *fakeQueries) *httptest.Server {
	s := server.New(5 * time.Second)
	s.MountHandlers(&server.Handlers{Q: q, Refresh: fixedLastRun(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))})
	return httptest.NewServer(s.Mux())
}

func get(t *testing.T, url string, hdr map[string]string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestListReviews_ShapeAndParams(t *testing.T) {
	url := "https://maps.example/a"
	q := &fakeQueries{reviews: []domain.ReviewView{{
		ID: 1, AuthorName: "Ann", AuthorURL: &url, Rating: 5, Text: "great", RelativeTime: "a day ago",
		Timestamp: 100, Categories: []string{"general"}, Source: domain.SourcePlaces,
		FetchedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}}}
	ts := newTestServer(q)
	defer ts.Close()

	res := get(t, ts.URL+"/reviews?category=pricing&minRating=2&source=yelp&refresh=true", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	if q.lastQuery.Category != "pricing" || q.lastQuery.MinRating != 2 || q.lastQuery.Source != domain.SourceYelp || !q.lastForce {
		t.Fatalf("params not passed through: %+v force=%v", q.lastQuery, q.lastForce)
	}

	var body []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("body: %v", body)
	}
	for _, k := range []string{"id", "authorName", "authorUrl", "profilePhotoUrl", "rating", "text", "relativeTime", "timestamp", "categories", "fetchedAt", "source"} {
		if _, ok := body[0][k]; !ok {
			t.Fatalf("missing field %q in %v", k, body[0])
		}
	}
	if body[0]["profilePhotoUrl"] != nil || body[0]["source"] != "places_api" {
		t.Fatalf("field values: %v", body[0])
	}
}

func TestListReviews_DefaultMinRating(t *testing.T) {
	q := &fakeQueries{}
	ts := newTestServer(q)
	defer ts.Close()

	res := get(t, ts.URL+"/reviews", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	if q.lastQuery.MinRating != 4 || q.lastForce {
		t.Fatalf("defaults: %+v force=%v", q.lastQuery, q.lastForce)
	}
}

func TestListReviews_Validation(t *testing.T) {
	ts := newTestServer(&fakeQueries{})
	defer ts.Close()

	for _, qs := range []string{"minRating=0", "minRating=6", "minRating=abc", "source=myspace", "refresh=maybe"} {
		res := get(t, ts.URL+"/reviews?"+qs, nil)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status %d", qs, res.StatusCode)
		}
		if ct := res.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: content type %q", qs, ct)
		}
	}
}

func TestListReviews_ForcedRefreshFailureIs502(t *testing.T) {
	q := &fakeQueries{err: fmt.Errorf("%w: %w", app.ErrRefreshFailed, domain.ErrProviderUnavailable)}
	ts := newTestServer(q)
	defer ts.Close()

	res := get(t, ts.URL+"/reviews?refresh=true", nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status %d", res.StatusCode)
	}
	var p struct {
		Status int    `json:"status"`
		Title  string `json:"title"`
	}
	_ = json.NewDecoder(res.Body).Decode(&p)
	if p.Status != http.StatusBadGateway || p.Title == "" {
		t.Fatalf("problem body: %+v", p)
	}
}

func TestStats_ETagRoundTrip(t *testing.T) {
	v := "4.3"
	ts := newTestServer(&fakeQueries{stats: domain.StatsView{RatingValue: &v, ReviewCount: 4}})
	defer ts.Close()

	res := get(t, ts.URL+"/reviews/stats", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var body domain.StatsView
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body.RatingValue == nil || *body.RatingValue != "4.3" || body.ReviewCount != 4 {
		t.Fatalf("body: %+v", body)
	}
	etag := res.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	res2 := get(t, ts.URL+"/reviews/stats", map[string]string{"If-None-Match": etag})
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("want 304, got %d", res2.StatusCode)
	}
}

func TestStats_EmptyIsNull(t *testing.T) {
	ts := newTestServer(&fakeQueries{stats: domain.StatsView{}})
	defer ts.Close()

	res := get(t, ts.URL+"/reviews/stats", nil)
	var raw map[string]any
	_ = json.NewDecoder(res.Body).Decode(&raw)
	if v, ok := raw["ratingValue"]; !ok || v != nil {
		t.Fatalf("ratingValue should be null, got %v", raw)
	}
	if raw["reviewCount"] != float64(0) {
		t.Fatalf("reviewCount: %v", raw)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&fakeQueries{})
	defer ts.Close()

	res := get(t, ts.URL+"/healthz", nil)
	var body map[string]string
	_ = json.NewDecoder(res.Body).Decode(&body)
	if res.StatusCode != http.StatusOK || body["status"] != "ok" || body["lastRefresh"] != "2024-06-01T00:00:00Z" {
		t.Fatalf("healthz: %d %v", res.StatusCode, body)
	}
}
