package sources

import (
	"context"

	"reviewsync/internal/adapters/taskbroker"
	"reviewsync/internal/domain"
)

const (
	googleReviewsPrefix = "business_data/google/reviews"
	yelpReviewsPrefix   = "business_data/yelp/reviews"
)

// TaskReviews adapts one task-queue data type (Google or Yelp reviews).
// Each Fetch yields the newest finished task and queues the next one.
type TaskReviews struct {
	src     domain.Source
	broker  *taskbroker.Broker
	payload map[string]any
	a       aliases
	n       *normalizer
}

func newGoogleTaskReviews(b *taskbroker.Broker, keyword string, locationCode int, n *normalizer) *TaskReviews {
	return &TaskReviews{
		src:    domain.SourceDataForSEO,
		broker: b,
		payload: map[string]any{
			"keyword":       keyword,
			"location_code": locationCode,
			"language_code": "en",
			"depth":         100,
			"sort_by":       "newest",
		},
		a: dataForSEOGoogleAliases,
		n: n,
	}
}

func newYelpTaskReviews(b *taskbroker.Broker, alias string, n *normalizer) *TaskReviews {
	return &TaskReviews{
		src:    domain.SourceYelp,
		broker: b,
		payload: map[string]any{
			"alias":   alias,
			"depth":   100,
			"sort_by": "relevance_desc",
		},
		a: dataForSEOYelpAliases,
		n: n,
	}
}

func (t *TaskReviews) Source() domain.Source { return t.src }

func (t *TaskReviews) Fetch(ctx context.Context) domain.Outcome {
	items, err := t.broker.Cycle(ctx, t.payload)
	if err != nil {
		return failure(t.src, err)
	}
	return success(t.src, t.n.items(t.src, t.a, items))
}
