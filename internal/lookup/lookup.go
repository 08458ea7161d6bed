// Package lookup classifies free-form market queries typed by users into a
// market ID, an event slug, or plain search text.
package lookup

import (
	"errors"
	"regexp"
	"strings"
)

// Query kinds.
const (
	KindID   = "id"
	KindSlug = "slug"
	KindText = "text"
)

// idRegex matches condition IDs and numeric-looking hex identifiers,
// optionally 0x-prefixed. Must be longer than 10 characters.
var idRegex = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{11,}$`)

// eventURLRegex extracts the slug from a polymarket.com/event/<slug> URL.
var eventURLRegex = regexp.MustCompile(`polymarket\.com/event/([^/?#\s]+)`)

// ErrEmptyQuery is returned for blank input.
var ErrEmptyQuery = errors.New("lookup: empty query")

// Query is a parsed market lookup.
type Query struct {
	Raw  string `json:"raw"`
	Kind string `json:"kind"`
	Slug string `json:"slug,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Parse classifies a query. URLs win over everything else; a long hex
// string is an ID; a dashed token without spaces is a slug; anything else
// is search text.
func Parse(raw string) (*Query, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	if m := eventURLRegex.FindStringSubmatch(q); m != nil {
		return &Query{Raw: q, Kind: KindSlug, Slug: m[1]}, nil
	}

	if idRegex.MatchString(q) {
		return &Query{Raw: q, Kind: KindID, ID: q}, nil
	}

	if strings.Contains(q, "-") && !strings.Contains(q, " ") {
		return &Query{Raw: q, Kind: KindSlug, Slug: q}, nil
	}

	return &Query{Raw: q, Kind: KindText}, nil
}
