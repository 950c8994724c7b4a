package domain

import (
	"fmt"
	"strings"
	"time"
)

type Source string

const (
	SourcePlaces     Source = "places_api"
	SourceDataForSEO Source = "dataforseo"
	SourceYelp       Source = "yelp"
	SourceFacebook   Source = "facebook"
	SourceGMB        Source = "google_my_business"
)

// AllSources lists every known source, highest default priority first.
func AllSources() []Source {
	return []Source{SourcePlaces, SourceDataForSEO, SourceYelp, SourceFacebook, SourceGMB}
}

func ParseSource(s string) (Source, error) {
	for _, src := range AllSources() {
		if strings.EqualFold(strings.TrimSpace(s), string(src)) {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

const CategoryGeneral = "general"

type Review struct {
	ID              int64
	AuthorName      string
	AuthorURL       *string
	ProfilePhotoURL *string
	Rating          int
	Text            string
	RelativeTime    string
	Timestamp       int64 // unix seconds
	Categories      []string
	Source          Source
	ReviewID        *string // provider-native id
	FetchedAt       time.Time
}

// UniqueKey identifies a review within one batch: source+reviewId when the
// provider supplied an id, else author, the first 100 runes of text and timestamp.
func (r Review) UniqueKey() string {
	if r.ReviewID != nil && *r.ReviewID != "" {
		return "id|" + string(r.Source) + "|" + *r.ReviewID
	}
	return fmt.Sprintf("c|%s|%s|%d", r.AuthorName, prefixRunes(r.Text, 100), r.Timestamp)
}

// ContentKey is shared by the same review surfaced through different sources.
func (r Review) ContentKey() string {
	return fmt.Sprintf("%d|%s", r.Timestamp, r.Text)
}

func (r Review) HasCategory(c string) bool {
	for _, x := range r.Categories {
		if x == c {
			return true
		}
	}
	return false
}

func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// SourcePriority ranks sources; a lower index outranks a higher one.
// Sources missing from the list rank below every listed source.
type SourcePriority []Source

func DefaultPriority() SourcePriority { return SourcePriority(AllSources()) }

func (p SourcePriority) rank(s Source) int {
	for i, x := range p {
		if x == s {
			return i
		}
	}
	return len(p)
}

// Outranks reports whether a strictly outranks b.
func (p SourcePriority) Outranks(a, b Source) bool { return p.rank(a) < p.rank(b) }

// ParsePriority reads a comma separated source list. Unknown names are errors,
// known sources left out are appended in default order.
func ParsePriority(csv string) (SourcePriority, error) {
	var out SourcePriority
	seen := map[Source]bool{}
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseSource(part)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range AllSources() {
		if !seen[s] {
			out = append(out, s)
		}
	}
	return out, nil
}
