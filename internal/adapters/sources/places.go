package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"reviewsync/internal/adapters/apiclient"
	"reviewsync/internal/domain"
)

// Places reads the synchronous place-details endpoint. It returns at most
// the handful of reviews the API exposes and never a review id.
type Places struct {
	c       *apiclient.Client
	base    string
	key     string
	placeID string
	n       *normalizer
}

func (p *Places) Source() domain.Source { return domain.SourcePlaces }

func (p *Places) Fetch(ctx context.Context) domain.Outcome {
	q := url.Values{
		"place_id":     {p.placeID},
		"fields":       {"reviews"},
		"reviews_sort": {"newest"},
		"key":          {p.key},
	}
	var resp struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Result       struct {
			Reviews []map[string]any `json:"reviews"`
		} `json:"result"`
	}
	u := strings.TrimRight(p.base, "/") + "/details/json?" + q.Encode()
	if err := p.c.GetJSON(ctx, u, nil, &resp); err != nil {
		return failure(p.Source(), err)
	}
	switch resp.Status {
	case "OK", "ZERO_RESULTS":
	case "":
		return failure(p.Source(), malformed("places: missing status"))
	default:
		return failure(p.Source(), fmt.Errorf("places status %s %s: %w", resp.Status, resp.ErrorMessage, domain.ErrProviderUnavailable))
	}
	return success(p.Source(), p.n.items(p.Source(), placesAliases, resp.Result.Reviews))
}
