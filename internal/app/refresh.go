package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"reviewsync/internal/adapters/observability"
	"reviewsync/internal/domain"
)

const (
	ModeReplace = "replace"
	ModeDelta   = "delta"

	// every read-model cache key lives under this prefix
	CachePrefix = "reviews:"

	refreshLockKey = "reviewsync:lock:refresh"
)

// ErrNoSources means no adapter produced data: none configured, or all failed.
var ErrNoSources = fmt.Errorf("no source produced data: %w", domain.ErrProviderUnavailable)

type RefreshResult struct {
	RunID    string
	Mode     string
	Fetched  int
	Inserted int
	Retired  int
	Failed   []domain.Source
	Skipped  bool // periodic cycle skipped because another process holds the lock
}

// Refresher runs the fetch, merge and store pipeline. RefreshAll swaps the
// whole dataset; SyncDelta applies only the merge decisions.
type Refresher struct {
	adapters []domain.SourceAdapter
	repo     domain.ReviewRepository
	merger   *Merger
	cache    domain.Cache
	lock     domain.Locker
	clock    domain.Clock
	timeout  time.Duration
	interval time.Duration

	sf      singleflight.Group
	gen     atomic.Uint64
	mu      sync.Mutex
	lastRun time.Time
}

type RefresherOption func(*Refresher)

func WithCache(c domain.Cache) RefresherOption { return func(r *Refresher) { r.cache = c } }
func WithLocker(l domain.Locker) RefresherOption { return func(r *Refresher) { r.lock = l } }
func WithClock(c domain.Clock) RefresherOption { return func(r *Refresher) { r.clock = c } }
func WithAdapterTimeout(d time.Duration) RefresherOption { return func(r *Refresher) { r.timeout = d } }
func WithInterval(d time.Duration) RefresherOption { return func(r *Refresher) { r.interval = d } }

func NewRefresher(adapters []domain.SourceAdapter, repo domain.ReviewRepository, m *Merger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		adapters: adapters,
		repo:     repo,
		merger:   m,
		clock:    domain.SystemClock{},
		timeout:  60 * time.Second,
		interval: 24 * time.Hour,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LastRun is the clock time of the last committed cycle (zero before any).
func (r *Refresher) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// Generation counts committed cycles. It moves before the read-model cache
// is cleared, so a read that started under an older value may be stale.
func (r *Refresher) Generation() uint64 { return r.gen.Load() }

// RefreshAll is the on-demand path. Concurrent callers share one run, and
// the run outlives a cancelled caller so a disconnect cannot abort it.
func (r *Refresher) RefreshAll(ctx context.Context) (RefreshResult, error) {
	ch := r.sf.DoChan(ModeReplace, func() (any, error) {
		return r.replace(context.WithoutCancel(ctx))
	})
	res := <-ch
	out, _ := res.Val.(RefreshResult)
	return out, res.Err
}

func (r *Refresher) replace(ctx context.Context) (RefreshResult, error) {
	start := r.clock.Now()
	res := RefreshResult{RunID: uuid.NewString(), Mode: ModeReplace}
	lg := log.With().Str("run_id", res.RunID).Str("mode", res.Mode).Logger()

	outcomes := r.fetchAll(ctx, lg)
	batch := r.collect(outcomes, &res)
	merged := r.merger.Batch(batch)

	if len(merged) == 0 && len(res.Failed) == len(r.adapters) {
		observability.ObserveRefresh(res.Mode, "error", r.clock.Now().Sub(start))
		lg.Error().Int("sources", len(r.adapters)).Msg("refresh produced nothing; dataset left untouched")
		return res, ErrNoSources
	}

	n, err := r.repo.ReplaceAll(ctx, merged)
	if err != nil {
		observability.ObserveRefresh(res.Mode, "error", r.clock.Now().Sub(start))
		lg.Error().Err(err).Msg("replace failed; previous dataset kept")
		return res, err
	}
	res.Inserted = n
	r.committed(ctx, lg, res, start)
	return res, nil
}

// SyncDelta is the periodic path: merge against stored rows, write only
// the difference.
func (r *Refresher) SyncDelta(ctx context.Context) (RefreshResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := r.clock.Now()
	res := RefreshResult{RunID: uuid.NewString(), Mode: ModeDelta}
	lg := log.With().Str("run_id", res.RunID).Str("mode", res.Mode).Logger()

	if r.lock != nil {
		release, ok, err := r.lock.Acquire(ctx, refreshLockKey, 2*r.timeout+time.Minute)
		if err != nil {
			// lock backend down: fall back to running unguarded
			lg.Warn().Err(err).Msg("refresh lock unavailable; running without it")
		} else if !ok {
			res.Skipped = true
			observability.ObserveRefresh(res.Mode, "skipped", 0)
			lg.Info().Msg("another instance holds the refresh lock; skipping cycle")
			return res, nil
		} else {
			defer release()
		}
	}

	outcomes := r.fetchAll(ctx, lg)
	batch := r.collect(outcomes, &res)

	persisted, err := r.repo.All(ctx)
	if err != nil {
		observability.ObserveRefresh(res.Mode, "error", r.clock.Now().Sub(start))
		return res, fmt.Errorf("load persisted reviews: %v: %w", err, domain.ErrPersistence)
	}
	toInsert, toRetire := r.merger.Delta(batch, persisted)
	if err := r.repo.ApplyDelta(ctx, toInsert, toRetire); err != nil {
		observability.ObserveRefresh(res.Mode, "error", r.clock.Now().Sub(start))
		lg.Error().Err(err).Msg("delta failed; store unchanged")
		return res, err
	}
	res.Inserted, res.Retired = len(toInsert), len(toRetire)
	r.committed(ctx, lg, res, start)
	return res, nil
}

// Run performs one delta cycle now and then one per interval, on a fixed
// schedule measured from the start, until ctx ends. A cycle in flight is
// never cut short; slots a cycle overran are skipped.
func (r *Refresher) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.interval).Int("sources", len(r.adapters)).Msg("periodic refresh started")
	next := r.clock.Now()
	for {
		if _, err := r.SyncDelta(ctx); err != nil {
			log.Error().Err(err).Msg("periodic refresh failed")
		}
		now := r.clock.Now()
		next = next.Add(r.interval)
		for !next.After(now) {
			next = next.Add(r.interval)
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("periodic refresh stopped")
			return ctx.Err()
		case <-r.clock.After(next.Sub(now)):
		}
	}
}

func (r *Refresher) committed(ctx context.Context, lg zerolog.Logger, res RefreshResult, start time.Time) {
	now := r.clock.Now()
	r.mu.Lock()
	r.lastRun = now
	r.mu.Unlock()
	r.gen.Add(1)

	if r.cache != nil {
		if err := r.cache.DelPrefix(ctx, CachePrefix); err != nil {
			lg.Warn().Err(err).Msg("cache invalidation failed; entries expire with their ttl")
		}
	}
	result := "ok"
	if len(res.Failed) > 0 {
		result = "degraded"
	}
	observability.ObserveRefresh(res.Mode, result, now.Sub(start))

	failed := make([]string, 0, len(res.Failed))
	for _, s := range res.Failed {
		failed = append(failed, string(s))
	}
	lg.Info().
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Int("retired", res.Retired).
		Strs("failed_sources", failed).
		Dur("duration", now.Sub(start)).
		Msg("refresh committed")
}

// collect concatenates yields in adapter order and records failures.
func (r *Refresher) collect(outcomes []domain.Outcome, res *RefreshResult) []domain.Review {
	var batch []domain.Review
	for _, o := range outcomes {
		if !o.OK() {
			res.Failed = append(res.Failed, o.Source)
		}
		batch = append(batch, o.Reviews...)
	}
	res.Fetched = len(batch)
	return batch
}

// fetchAll runs every adapter concurrently, each bounded by its own
// timeout. Results keep adapter order.
func (r *Refresher) fetchAll(ctx context.Context, lg zerolog.Logger) []domain.Outcome {
	out := make([]domain.Outcome, len(r.adapters))
	var g errgroup.Group
	for i, a := range r.adapters {
		i, a := i, a
		g.Go(func() error {
			out[i] = r.fetchOne(ctx, a)
			logOutcome(lg, out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Refresher) fetchOne(ctx context.Context, a domain.SourceAdapter) domain.Outcome {
	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan domain.Outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- domain.Outcome{Source: a.Source(), Err: fmt.Errorf("adapter panic: %v: %w", p, domain.ErrProviderUnavailable)}
			}
		}()
		done <- a.Fetch(actx)
	}()

	select {
	case o := <-done:
		o.Source = a.Source()
		return o
	case <-actx.Done():
		return domain.Outcome{Source: a.Source(), Err: fmt.Errorf("fetch %s: %w: %w", a.Source(), actx.Err(), domain.ErrProviderUnavailable)}
	}
}

func logOutcome(lg zerolog.Logger, o domain.Outcome) {
	src := string(o.Source)
	switch {
	case o.OK():
		observability.ObserveAdapter(src, "ok", len(o.Reviews))
		lg.Info().Str("source", src).Int("reviews", len(o.Reviews)).Msg("source fetched")
	case errors.Is(o.Err, domain.ErrAuthExpired):
		observability.ObserveAdapter(src, "auth_expired", len(o.Reviews))
		lg.Error().Str("source", src).Err(o.Err).Str("action", "reauthorize").Int("reviews", len(o.Reviews)).Msg("source needs re-authorization")
	case o.Partial:
		observability.ObserveAdapter(src, "partial", len(o.Reviews))
		lg.Warn().Str("source", src).Err(o.Err).Int("reviews", len(o.Reviews)).Msg("source fetched partially")
	default:
		observability.ObserveAdapter(src, observability.LabelErr(o.Err), 0)
		lg.Warn().Str("source", src).Err(o.Err).Msg("source failed")
	}
}
