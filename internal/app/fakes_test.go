package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"reviewsync/internal/domain"
)

// ---- fakes ----

// memRepo is an in-memory ReviewRepository. Writes are all-or-nothing.
type memRepo struct {
	mu       sync.Mutex
	rows     []domain.Review
	nextID   int64
	failNext error

	// when listGate is set, ListReviews signals listEntered after reading
	// and waits for the gate before returning
	listEntered chan struct{}
	listGate    chan struct{}
}

func (m *memRepo) seed(rs ...domain.Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		m.nextID++
		r.ID = m.nextID
		m.rows = append(m.rows, r)
	}
}

func (m *memRepo) snapshot() []domain.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Review(nil), m.rows...)
}

func (m *memRepo) takeFail() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memRepo) ReplaceAll(ctx context.Context, rs []domain.Review) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(rs) == 0 {
		return 0, nil
	}
	if err := m.takeFail(); err != nil {
		return 0, err
	}
	m.rows = nil
	for _, r := range rs {
		m.nextID++
		r.ID = m.nextID
		m.rows = append(m.rows, r)
	}
	return len(rs), nil
}

func (m *memRepo) ApplyDelta(ctx context.Context, toInsert []domain.Review, toRetire []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFail(); err != nil {
		return err
	}
	drop := map[int64]bool{}
	for _, id := range toRetire {
		drop[id] = true
	}
	kept := m.rows[:0:0]
	for _, r := range m.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	for _, r := range toInsert {
		m.nextID++
		r.ID = m.nextID
		kept = append(kept, r)
	}
	m.rows = kept
	return nil
}

func (m *memRepo) All(ctx context.Context) ([]domain.Review, error) { return m.snapshot(), nil }

func (m *memRepo) ListReviews(ctx context.Context, q domain.ReviewsQuery) ([]domain.Review, error) {
	var out []domain.Review
	for _, r := range m.snapshot() {
		if q.Category != "" && !r.HasCategory(q.Category) {
			continue
		}
		if r.Rating < q.MinRating {
			continue
		}
		if q.Source != "" && r.Source != q.Source {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if m.listGate != nil {
		select {
		case m.listEntered <- struct{}{}:
		default:
		}
		<-m.listGate
	}
	return out, nil
}

func (m *memRepo) Stats(ctx context.Context) (domain.Stats, error) {
	rs := m.snapshot()
	st := domain.Stats{Count: len(rs)}
	for _, r := range rs {
		st.Average += float64(r.Rating)
	}
	if st.Count > 0 {
		st.Average /= float64(st.Count)
	}
	return st, nil
}

func (m *memRepo) Count(ctx context.Context) (int, error) { return len(m.snapshot()), nil }

// fakeAdapter returns a canned outcome; gate, when set, blocks Fetch.
type fakeAdapter struct {
	src     domain.Source
	reviews []domain.Review
	err     error
	partial bool
	panics  bool
	entered chan struct{}
	gate    chan struct{}
	onFetch func()
	calls   atomic.Int32
}

func (f *fakeAdapter) Source() domain.Source { return f.src }

func (f *fakeAdapter) Fetch(ctx context.Context) domain.Outcome {
	f.calls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.panics {
		panic("boom")
	}
	return domain.Outcome{Source: f.src, Reviews: f.reviews, Err: f.err, Partial: f.partial}
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	tick  chan time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), tick: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	return c.tick
}

func (c *fakeClock) requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// Skip moves time without firing After.
func (c *fakeClock) Skip(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Advance moves time and fires the pending After.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	c.tick <- now
}

type fakeCache struct {
	mu          sync.Mutex
	store       map[string][]byte
	invalidated []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

func (c *fakeCache) DelPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, prefix)
	for k := range c.store {
		if strings.HasPrefix(k, prefix) {
			delete(c.store, k)
		}
	}
	return nil
}

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l.err != nil {
		return func() {}, false, l.err
	}
	if l.held {
		return func() {}, false, nil
	}
	return func() { l.released++ }, true, nil
}

var errDiskFull = errors.New("disk full")
