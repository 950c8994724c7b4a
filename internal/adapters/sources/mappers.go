package sources

import (
	"math"
	"strconv"
	"strings"
	"time"
)

/********** alias registries (one per provider payload shape) **********/

// Keys: author, author_url, photo, rating, star_rating, recommendation,
// text, relative, time, id.
type aliases map[string][]string

var placesAliases = aliases{
	"author":     {"author_name"},
	"author_url": {"author_url"},
	"photo":      {"profile_photo_url"},
	"rating":     {"rating"},
	"text":       {"text", "original_text.text"},
	"relative":   {"relative_time_description"},
	"time":       {"time"},
}

var dataForSEOGoogleAliases = aliases{
	"author":     {"profile_name", "user_profile.name"},
	"author_url": {"profile_url", "user_profile.url"},
	"photo":      {"profile_image_url", "user_profile.image_url"},
	"rating":     {"rating.value", "rating"},
	"text":       {"review_text", "original_review_text"},
	"relative":   {"time_ago"},
	"time":       {"timestamp"},
	"id":         {"review_id"},
}

var dataForSEOYelpAliases = aliases{
	"author":     {"user_profile.name", "profile_name"},
	"author_url": {"user_profile.url", "profile_url"},
	"photo":      {"user_profile.image_url", "profile_image_url"},
	"rating":     {"rating.value", "rating"},
	"text":       {"review_text", "original_review_text"},
	"relative":   {"time_ago"},
	"time":       {"timestamp"},
	"id":         {"review_id"},
}

var facebookAliases = aliases{
	"author":         {"reviewer.name"},
	"photo":          {"reviewer.picture.data.url"},
	"rating":         {"rating"},
	"recommendation": {"recommendation_type"},
	"text":           {"review_text"},
	"time":           {"created_time"},
	"id":             {"open_graph_story.id"},
}

var gmbAliases = aliases{
	"author":      {"reviewer.displayName"},
	"photo":       {"reviewer.profilePhotoUrl"},
	"star_rating": {"starRating"},
	"text":        {"comment"},
	"time":        {"createTime", "updateTime"},
	"id":          {"reviewId", "name"},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",   // graph api
	"2006-01-02 15:04:05 -07:00", // task api
	"2006-01-02 15:04:05",
}

var starRatings = map[string]int{"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmpty: first non-empty trimmed string for a named alias set.
func (a aliases) firstNonEmpty(m map[string]any, key string) *string {
	for _, p := range a[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return &s
		}
	}
	return nil
}

// getFloatFlexible: number from several paths (float64/int/string like "4,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// unixFlexible: unix seconds from numeric fields or formatted time strings.
func unixFlexible(m map[string]any, paths ...string) int64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		case int:
			return int64(v)
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.Unix()
				}
			}
		}
	}
	return 0
}

// rating maps numeric, enum (FIVE) or recommendation (positive|negative)
// ratings onto 1..5. ok=false when nothing usable is present.
func (a aliases) rating(m map[string]any) (int, bool) {
	if f := getFloatFlexible(m, a["rating"]...); f != nil {
		r := int(math.Round(*f))
		return r, r >= 1 && r <= 5
	}
	for _, p := range a["star_rating"] {
		if r, ok := starRatings[strings.ToUpper(lookupStr(m, p))]; ok {
			return r, true
		}
	}
	for _, p := range a["recommendation"] {
		switch strings.ToLower(lookupStr(m, p)) {
		case "positive":
			return 5, true
		case "negative":
			return 1, true
		}
	}
	return 0, false
}
