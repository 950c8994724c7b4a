package sources

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"reviewsync/internal/classify"
	"reviewsync/internal/domain"
)

const anonymous = "Anonymous"

// normalizer turns provider-shaped items into canonical reviews.
type normalizer struct {
	cls   *classify.Classifier
	clock domain.Clock
}

func newNormalizer(cls *classify.Classifier, clock domain.Clock) *normalizer {
	if cls == nil {
		cls = classify.New(nil)
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &normalizer{cls: cls, clock: clock}
}

// item maps one payload entry. Entries without a usable rating or timestamp
// are dropped.
func (n *normalizer) item(src domain.Source, a aliases, m map[string]any) (domain.Review, bool) {
	rating, ok := a.rating(m)
	if !ok {
		log.Debug().Str("source", string(src)).Msg("dropping item without usable rating")
		return domain.Review{}, false
	}
	ts := unixFlexible(m, a["time"]...)
	if ts <= 0 {
		log.Debug().Str("source", string(src)).Msg("dropping item without timestamp")
		return domain.Review{}, false
	}

	now := n.clock.Now()
	rv := domain.Review{
		AuthorName:      anonymous,
		AuthorURL:       a.firstNonEmpty(m, "author_url"),
		ProfilePhotoURL: a.firstNonEmpty(m, "photo"),
		Rating:          rating,
		Timestamp:       ts,
		Source:          src,
		ReviewID:        a.firstNonEmpty(m, "id"),
		FetchedAt:       now.UTC(),
	}
	if s := a.firstNonEmpty(m, "author"); s != nil {
		rv.AuthorName = *s
	}
	if s := a.firstNonEmpty(m, "text"); s != nil {
		rv.Text = *s
	}
	if s := a.firstNonEmpty(m, "relative"); s != nil {
		rv.RelativeTime = *s
	} else {
		rv.RelativeTime = humanize.RelTime(time.Unix(ts, 0), now, "ago", "from now")
	}
	rv.Categories = n.cls.Classify(rv.Text)
	return rv, true
}

func (n *normalizer) items(src domain.Source, a aliases, in []map[string]any) []domain.Review {
	out := make([]domain.Review, 0, len(in))
	for _, m := range in {
		if rv, ok := n.item(src, a, m); ok {
			out = append(out, rv)
		}
	}
	return out
}

/********** outcome helpers **********/

func success(src domain.Source, rs []domain.Review) domain.Outcome {
	return domain.Outcome{Source: src, Reviews: rs}
}

func failure(src domain.Source, err error) domain.Outcome {
	return domain.Outcome{Source: src, Err: err}
}

// partial keeps what was accumulated before err.
func partial(src domain.Source, rs []domain.Review, err error) domain.Outcome {
	if len(rs) == 0 {
		return failure(src, err)
	}
	return domain.Outcome{Source: src, Reviews: rs, Err: err, Partial: true}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrMalformedResponse)...)
}
