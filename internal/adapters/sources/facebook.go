package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"reviewsync/internal/adapters/apiclient"
	"reviewsync/internal/domain"
)

const facebookFields = "reviewer{name,picture},rating,recommendation_type,review_text,created_time,open_graph_story{id}"

// Facebook follows the ratings edge's paging.next cursor.
type Facebook struct {
	c         *apiclient.Client
	base      string
	pageID    string
	pageToken string
	maxPages  int
	n         *normalizer
}

func (f *Facebook) Source() domain.Source { return domain.SourceFacebook }

func (f *Facebook) Fetch(ctx context.Context) domain.Outcome {
	q := url.Values{
		"access_token": {f.pageToken},
		"fields":       {facebookFields},
		"limit":        {"100"},
	}
	next := fmt.Sprintf("%s/%s/ratings?%s", strings.TrimRight(f.base, "/"), url.PathEscape(f.pageID), q.Encode())

	var out []domain.Review
	for page := 0; next != "" && page < f.maxPages; page++ {
		var resp struct {
			Data   []map[string]any `json:"data"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := f.c.GetJSON(ctx, next, nil, &resp); err != nil {
			return partial(f.Source(), out, fmt.Errorf("ratings page %d: %w", page+1, err))
		}
		out = append(out, f.n.items(f.Source(), facebookAliases, resp.Data)...)
		next = resp.Paging.Next
	}
	return success(f.Source(), out)
}
