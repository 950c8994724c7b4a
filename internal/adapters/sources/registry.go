// Package sources holds one adapter per review provider. Every adapter
// fetches, normalizes and classifies; none of them touch storage.
package sources

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"reviewsync/internal/adapters/apiclient"
	"reviewsync/internal/adapters/taskbroker"
	"reviewsync/internal/classify"
	"reviewsync/internal/domain"
	"reviewsync/internal/shared"
)

const defaultMaxPages = 20

type Deps struct {
	Classifier *classify.Classifier
	Clock      domain.Clock
	Tokens     TokenSource  // required for google_my_business
	HTTPClient *http.Client // optional; tests point it at fakes
}

// Build returns the adapters whose credentials are configured, in
// places, dataforseo, yelp, facebook, gmb order.
func Build(cfg shared.Config, d Deps) []domain.SourceAdapter {
	n := newNormalizer(d.Classifier, d.Clock)
	opts := func(extra ...apiclient.Option) []apiclient.Option {
		if d.HTTPClient != nil {
			extra = append(extra, apiclient.WithHTTPClient(d.HTTPClient))
		}
		return extra
	}

	var out []domain.SourceAdapter
	if cfg.PlacesEnabled() {
		out = append(out, &Places{
			c:       apiclient.New("places", cfg.ProviderRPS, opts()...),
			base:    cfg.Places.BaseURL,
			key:     cfg.Places.APIKey,
			placeID: cfg.Places.PlaceID,
			n:       n,
		})
	}
	if cfg.DataForSEOEnabled() || cfg.YelpEnabled() {
		c := apiclient.New("dataforseo", cfg.ProviderRPS,
			opts(apiclient.WithBasicAuth(cfg.DataForSEO.Login, cfg.DataForSEO.Password))...)
		if cfg.DataForSEOEnabled() {
			b := taskbroker.New(c, cfg.DataForSEO.BaseURL, googleReviewsPrefix)
			out = append(out, newGoogleTaskReviews(b, cfg.DataForSEO.Keyword, cfg.DataForSEO.LocationCode, n))
		}
		if cfg.YelpEnabled() {
			b := taskbroker.New(c, cfg.DataForSEO.BaseURL, yelpReviewsPrefix)
			out = append(out, newYelpTaskReviews(b, cfg.DataForSEO.YelpAlias, n))
		}
	}
	if cfg.FacebookEnabled() {
		out = append(out, &Facebook{
			c:         apiclient.New("facebook", cfg.ProviderRPS, opts()...),
			base:      cfg.Facebook.BaseURL,
			pageID:    cfg.Facebook.PageID,
			pageToken: cfg.Facebook.PageToken,
			maxPages:  defaultMaxPages,
			n:         n,
		})
	}
	if cfg.GMBEnabled() {
		if d.Tokens == nil {
			log.Warn().Msg("google_my_business configured without a token source, skipping")
		} else {
			out = append(out, &GMB{
				c:          apiclient.New("gmb", cfg.ProviderRPS, opts()...),
				tokens:     d.Tokens,
				base:       cfg.GMB.BaseURL,
				accountID:  cfg.GMB.AccountID,
				locationID: cfg.GMB.LocationID,
				maxPages:   defaultMaxPages,
				n:          n,
			})
		}
	}

	names := make([]string, 0, len(out))
	for _, a := range out {
		names = append(names, string(a.Source()))
	}
	log.Info().Strs("sources", names).Msg("source adapters configured")
	return out
}
