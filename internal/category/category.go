// Package category decides whether a market belongs to one of the fixed
// browse categories, using the provider's category label first and
// whole-word keyword matches on the question second.
package category

import (
	"regexp"
	"strings"

	"github.com/polylabs/league-engine/internal/model"
)

// All matches every market.
const All = "all"

type rule struct {
	aliases  []string
	keywords []*regexp.Regexp
}

type entry struct {
	name     string
	aliases  []string
	keywords []string
}

var table = []entry{
	{
		name:     "politics",
		aliases:  []string{"us-current-affairs", "current-affairs", "politics"},
		keywords: []string{"election", "president", "congress", "vote", "trump", "biden", "senate", "governor", "democrat", "republican"},
	},
	{
		name:     "sports",
		aliases:  []string{"sports"},
		keywords: []string{"nfl", "nba", "football", "basketball", "soccer", "championship", "super bowl", "world cup", "playoffs", "mvp"},
	},
	{
		name:     "crypto",
		aliases:  []string{"crypto"},
		keywords: []string{"bitcoin", "ethereum", "btc", "eth", "blockchain", "token", "solana", "crypto", "coin", "defi"},
	},
	{
		name:     "pop-culture",
		aliases:  []string{"pop-culture"},
		keywords: []string{"movie", "oscar", "grammy", "celebrity", "music", "entertainment", "award", "album", "actor", "singer"},
	},
	{
		name:     "tech",
		aliases:  []string{"tech"},
		keywords: []string{"apple", "google", "microsoft", "ai", "openai", "chatgpt", "twitter", "meta", "tesla", "elon"},
	},
}

// rules is built once and never mutated.
var rules = compile(table)

func compile(entries []entry) map[string]rule {
	out := make(map[string]rule, len(entries))
	for _, e := range entries {
		r := rule{}
		for _, a := range e.aliases {
			r.aliases = append(r.aliases, normalize(a))
		}
		for _, kw := range e.keywords {
			r.keywords = append(r.keywords, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		out[e.name] = r
	}
	return out
}

// normalize lowercases and turns dashes into spaces so "US-current-affairs"
// and "us current affairs" compare equal.
func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", " ")
}

// Names returns the known category tags in display order.
func Names() []string {
	names := make([]string, 0, len(table))
	for _, e := range table {
		names = append(names, e.name)
	}
	return names
}

// Known reports whether tag is a known category or "all".
func Known(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || tag == All {
		return true
	}
	_, ok := rules[tag]
	return ok
}

// Matches reports whether the market belongs to the requested category.
// Empty and "all" match everything; unknown tags match nothing.
func Matches(m model.MarketSnapshot, requested string) bool {
	tag := strings.ToLower(strings.TrimSpace(requested))
	if tag == "" || tag == All {
		return true
	}
	r, ok := rules[tag]
	if !ok {
		return false
	}

	if m.Category != "" {
		cat := normalize(m.Category)
		for _, a := range r.aliases {
			if cat == a {
				return true
			}
		}
	}

	question := strings.ToLower(m.Question)
	for _, kw := range r.keywords {
		if kw.MatchString(question) {
			return true
		}
	}
	return false
}

// Filter returns the markets matching the requested category, preserving
// order.
func Filter(markets []model.MarketSnapshot, requested string) []model.MarketSnapshot {
	out := make([]model.MarketSnapshot, 0, len(markets))
	for _, m := range markets {
		if Matches(m, requested) {
			out = append(out, m)
		}
	}
	return out
}
