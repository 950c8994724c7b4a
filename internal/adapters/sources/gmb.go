package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"reviewsync/internal/adapters/apiclient"
	"reviewsync/internal/domain"
)

const (
	GMBService  = "google_my_business"
	gmbPageSize = 50
)

// TokenSource hands out a stored, unexpired OAuth record.
type TokenSource interface {
	Token(ctx context.Context, service string) (domain.OAuthToken, error)
}

// GMB reads the business-listing reviews with a bearer token, following
// nextPageToken. A failed page keeps what earlier pages returned.
type GMB struct {
	c          *apiclient.Client
	tokens     TokenSource
	base       string
	accountID  string
	locationID string
	maxPages   int
	n          *normalizer
}

func (g *GMB) Source() domain.Source { return domain.SourceGMB }

func (g *GMB) Fetch(ctx context.Context) domain.Outcome {
	tok, err := g.tokens.Token(ctx, GMBService)
	if err != nil {
		return failure(g.Source(), err)
	}
	account, location := g.accountID, g.locationID
	if tok.AccountID != nil && *tok.AccountID != "" {
		account = *tok.AccountID
	}
	if tok.LocationID != nil && *tok.LocationID != "" {
		location = *tok.LocationID
	}
	if account == "" || location == "" {
		return failure(g.Source(), fmt.Errorf("gmb: account or location id missing: %w", domain.ErrProviderUnavailable))
	}

	hdr := http.Header{"Authorization": {"Bearer " + tok.AccessToken}}
	base := fmt.Sprintf("%s/v4/accounts/%s/locations/%s/reviews",
		strings.TrimRight(g.base, "/"), url.PathEscape(account), url.PathEscape(location))

	var out []domain.Review
	pageToken := ""
	for page := 0; page < g.maxPages; page++ {
		q := url.Values{"pageSize": {fmt.Sprint(gmbPageSize)}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var resp struct {
			Reviews       []map[string]any `json:"reviews"`
			NextPageToken string           `json:"nextPageToken"`
		}
		if err := g.c.GetJSON(ctx, base+"?"+q.Encode(), hdr, &resp); err != nil {
			if apiclient.IsAuthError(err) {
				err = fmt.Errorf("%w: %w", err, domain.ErrAuthExpired)
			}
			return partial(g.Source(), out, fmt.Errorf("reviews page %d: %w", page+1, err))
		}
		out = append(out, g.n.items(g.Source(), gmbAliases, resp.Reviews)...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return success(g.Source(), out)
}
