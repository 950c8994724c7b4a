// Package classify tags review text with service categories by keyword.
package classify

import (
	"strings"

	"reviewsync/internal/domain"
)

// Rule maps a category to the keywords that select it.
type Rule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// DefaultRules is evaluated in order; output order follows rule order.
var DefaultRules = []Rule{
	{Category: "water_heater", Keywords: []string{"water heater", "tankless", "hot water", "boiler"}},
	{Category: "drain_cleaning", Keywords: []string{"drain", "clog", "sewer", "snake", "hydro jet", "backed up"}},
	{Category: "leak_repair", Keywords: []string{"leak", "burst", "pipe", "drip", "flood"}},
	{Category: "installation", Keywords: []string{"install", "replace", "replacement", "faucet", "toilet", "garbage disposal"}},
	{Category: "emergency", Keywords: []string{"emergency", "same day", "same-day", "after hours", "middle of the night", "weekend"}},
	{Category: "timeliness", Keywords: []string{"on time", "prompt", "punctual", "quick", "fast", "right away"}},
	{Category: "pricing", Keywords: []string{"price", "pricing", "fair", "affordable", "reasonable", "quote", "estimate", "cost"}},
	{Category: "professionalism", Keywords: []string{"professional", "courteous", "polite", "respectful", "knowledgeable", "friendly", "clean"}},
}

type Classifier struct{ rules []Rule }

// New builds a classifier; an empty rule set falls back to DefaultRules.
// Keywords are lowercased once here.
func New(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	cp := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		cp = append(cp, Rule{Category: r.Category, Keywords: kws})
	}
	return &Classifier{rules: cp}
}

// Classify returns every category with a keyword contained in text, or
// {general} when none match.
func (c *Classifier) Classify(text string) []string {
	low := strings.ToLower(text)
	var out []string
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(low, k) {
				out = append(out, r.Category)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{domain.CategoryGeneral}
	}
	return out
}
