package domain

import (
	"context"
	"time"
)

type ReviewRepository interface {
	// Write paths. Both run inside a single transaction.
	ReplaceAll(ctx context.Context, rs []Review) (int, error)
	ApplyDelta(ctx context.Context, toInsert []Review, toRetire []int64) error

	// Read paths
	All(ctx context.Context) ([]Review, error)
	ListReviews(ctx context.Context, q ReviewsQuery) ([]Review, error)
	Stats(ctx context.Context) (Stats, error)
	Count(ctx context.Context) (int, error)
}

type TokenRepository interface {
	GetToken(ctx context.Context, service string) (OAuthToken, error)
	InsertToken(ctx context.Context, t OAuthToken) error
	UpdateToken(ctx context.Context, t OAuthToken) error
}

// SourceAdapter fetches and normalizes one provider. Fetch never panics or
// returns a bare error: failures are reported through Outcome.Err with
// whatever reviews were gathered before the failure.
type SourceAdapter interface {
	Source() Source
	Fetch(ctx context.Context) Outcome
}

type Outcome struct {
	Source  Source
	Reviews []Review
	Err     error
	Partial bool // Err is set but Reviews holds data gathered before it
}

func (o Outcome) OK() bool { return o.Err == nil }

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
	DelPrefix(ctx context.Context, prefix string) error
}

// Locker guards a refresh cycle across processes. Acquire returns ok=false
// when another holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Read models & queries
type ReviewsQuery struct {
	Category  string
	MinRating int
	Source    Source
}

type Stats struct {
	Count   int
	Average float64
}
