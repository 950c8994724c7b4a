package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"reviewsync/internal/domain"
)

// ErrRefreshFailed marks a caller-forced refresh that could not commit.
var ErrRefreshFailed = errors.New("refresh failed")

// Refreshing is the on-demand side of the Refresher.
type Refreshing interface {
	RefreshAll(ctx context.Context) (RefreshResult, error)
	Generation() uint64
}

type QueryService struct {
	repo     domain.ReviewRepository
	cache    domain.Cache
	cacheTTL time.Duration
	refresh  Refreshing
}

// NewQueryService: a nil cache disables caching, a nil refresher disables
// on-demand refreshes.
func NewQueryService(r domain.ReviewRepository, c domain.Cache, ttl time.Duration, rf Refreshing) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl, refresh: rf}
}

// ListReviews serves the stored dataset, newest first. A forced refresh
// runs before answering and its failure is returned; an empty store
// triggers a best-effort refresh.
func (s *QueryService) ListReviews(ctx context.Context, q domain.ReviewsQuery, forceRefresh bool) ([]domain.ReviewView, error) {
	if forceRefresh {
		if err := s.forceRefresh(ctx); err != nil {
			return nil, err
		}
	}

	key := fmt.Sprintf("%slist:%s:%d:%s", CachePrefix, q.Category, q.MinRating, q.Source)
	var out []domain.ReviewView
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}

	populated, err := s.ensureData(ctx)
	if err != nil {
		return nil, err
	}
	gen := s.generation()
	rs, err := s.repo.ListReviews(ctx, q)
	if err != nil {
		return nil, err
	}
	out = make([]domain.ReviewView, 0, len(rs))
	for _, r := range rs {
		out = append(out, domain.NewReviewView(r))
	}

	// never cache an empty store, the next read must retry the refresh
	if populated {
		if b, _ := json.Marshal(out); len(b) < 1_000_000 {
			s.cacheSet(ctx, key, out, gen)
		}
	}
	return out, nil
}

func (s *QueryService) Stats(ctx context.Context) (domain.StatsView, error) {
	key := CachePrefix + "stats"
	var out domain.StatsView
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}
	populated, err := s.ensureData(ctx)
	if err != nil {
		return domain.StatsView{}, err
	}
	gen := s.generation()
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return domain.StatsView{}, err
	}
	out = domain.NewStatsView(st)
	if populated {
		s.cacheSet(ctx, key, out, gen)
	}
	return out, nil
}

func (s *QueryService) forceRefresh(ctx context.Context) error {
	if s.refresh == nil {
		return fmt.Errorf("%w: refresh not configured", ErrRefreshFailed)
	}
	if _, err := s.refresh.RefreshAll(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return nil
}

// ensureData refreshes when the store is empty. A failed refresh is logged
// and the (empty) store is served.
func (s *QueryService) ensureData(ctx context.Context) (bool, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 || s.refresh == nil {
		return n > 0, nil
	}
	log.Info().Msg("review store empty; refreshing on demand")
	res, err := s.refresh.RefreshAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("on-demand refresh failed; serving empty dataset")
		return false, nil
	}
	return res.Inserted > 0, nil
}

func (s *QueryService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	return ok
}

func (s *QueryService) generation() uint64 {
	if s.refresh == nil {
		return 0
	}
	return s.refresh.Generation()
}

// cacheSet stores v read under generation gen. If a commit landed since,
// its invalidation may already have run, so the entry is dropped again.
func (s *QueryService) cacheSet(ctx context.Context, key string, v any, gen uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds())); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set failed")
		return
	}
	if s.generation() != gen {
		if err := s.cache.Del(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("stale cache entry not removed")
		}
	}
}
