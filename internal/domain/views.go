package domain

import (
	"fmt"
	"math"
	"time"
)

// ReviewView is the public JSON shape of a stored review.
type ReviewView struct {
	ID              int64     `json:"id"`
	AuthorName      string    `json:"authorName"`
	AuthorURL       *string   `json:"authorUrl"`
	ProfilePhotoURL *string   `json:"profilePhotoUrl"`
	Rating          int       `json:"rating"`
	Text            string    `json:"text"`
	RelativeTime    string    `json:"relativeTime"`
	Timestamp       int64     `json:"timestamp"`
	Categories      []string  `json:"categories"`
	FetchedAt       time.Time `json:"fetchedAt"`
	Source          Source    `json:"source"`
}

func NewReviewView(r Review) ReviewView {
	cats := r.Categories
	if len(cats) == 0 {
		cats = []string{CategoryGeneral}
	}
	return ReviewView{
		ID:              r.ID,
		AuthorName:      r.AuthorName,
		AuthorURL:       r.AuthorURL,
		ProfilePhotoURL: r.ProfilePhotoURL,
		Rating:          r.Rating,
		Text:            r.Text,
		RelativeTime:    r.RelativeTime,
		Timestamp:       r.Timestamp,
		Categories:      cats,
		FetchedAt:       r.FetchedAt,
		Source:          r.Source,
	}
}

// StatsView: RatingValue is the mean rounded half-up to one decimal, null
// when there are no reviews.
type StatsView struct {
	RatingValue *string `json:"ratingValue"`
	ReviewCount int     `json:"reviewCount"`
}

func NewStatsView(s Stats) StatsView {
	v := StatsView{ReviewCount: s.Count}
	if s.Count > 0 {
		str := fmt.Sprintf("%.1f", math.Round(s.Average*10)/10)
		v.RatingValue = &str
	}
	return v
}
