package gamma

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
)

// gammaMarket is the raw /markets payload. Several fields arrive either as
// JSON values or as JSON-encoded strings depending on the endpoint.
type gammaMarket struct {
	ID            flexString   `json:"id"`
	ConditionID   string       `json:"conditionId"`
	Question      string       `json:"question"`
	Slug          string       `json:"slug"`
	Description   string       `json:"description"`
	Category      string       `json:"category"`
	Active        bool         `json:"active"`
	Closed        bool         `json:"closed"`
	Outcomes      stringList   `json:"outcomes"`
	OutcomePrices stringList   `json:"outcomePrices"`
	ClobTokenIDs  stringList   `json:"clobTokenIds"`
	Volume        flexNumber   `json:"volume"`
	Liquidity     flexNumber   `json:"liquidity"`
	Tokens        []gammaToken `json:"tokens"`
	EndDate       string       `json:"endDate"`
}

type gammaToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

type gammaEvent struct {
	ID      flexString    `json:"id"`
	Slug    string        `json:"slug"`
	Title   string        `json:"title"`
	Markets []gammaMarket `json:"markets"`
}

type priceHistoryResponse struct {
	History []struct {
		T int64      `json:"t"`
		P flexNumber `json:"p"`
	} `json:"history"`
}

var half = decimal.NewFromFloat(0.5)

// toSnapshot normalizes a raw market. Missing or malformed prices fall back
// to 0.5 per outcome.
func (g gammaMarket) toSnapshot() model.MarketSnapshot {
	id := string(g.ID)
	if id == "" {
		id = g.ConditionID
	}

	snap := model.MarketSnapshot{
		ID:           id,
		Question:     g.Question,
		Slug:         g.Slug,
		Description:  g.Description,
		Category:     g.Category,
		Active:       g.Active,
		Closed:       g.Closed,
		YesPrice:     priceAt(g.OutcomePrices, 0),
		NoPrice:      priceAt(g.OutcomePrices, 1),
		Volume:       decimalOf(g.Volume),
		Liquidity:    decimalOf(g.Liquidity),
		Outcomes:     []string(g.Outcomes),
		ClobTokenIDs: []string(g.ClobTokenIDs),
		EndDate:      g.EndDate,
	}

	for _, t := range g.Tokens {
		snap.Tokens = append(snap.Tokens, model.OutcomeToken{
			TokenID: t.TokenID,
			Outcome: t.Outcome,
			Winner:  t.Winner,
		})
	}
	if len(snap.Tokens) == 0 {
		for i, outcome := range g.Outcomes {
			tok := model.OutcomeToken{Outcome: outcome}
			if i < len(g.ClobTokenIDs) {
				tok.TokenID = g.ClobTokenIDs[i]
			}
			snap.Tokens = append(snap.Tokens, tok)
		}
	}
	return snap
}

func priceAt(prices stringList, i int) decimal.Decimal {
	if i >= len(prices) {
		return half
	}
	p, err := decimal.NewFromString(strings.TrimSpace(prices[i]))
	if err != nil {
		return half
	}
	return p
}

// stringList decodes either a JSON array or a string holding a JSON array.
// Anything else decodes to an empty list.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			*l = nil
			return nil
		}
		data = []byte(inner)
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case float64:
			out = append(out, decimal.NewFromFloat(x).String())
		default:
			out = append(out, "")
		}
	}
	*l = out
	return nil
}

// flexNumber decodes a number, a numeric string or null. Unparseable
// values decode to zero.
type flexNumber decimal.Decimal

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = flexNumber(decimal.Zero)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		*n = flexNumber(decimal.Zero)
		return nil
	}
	*n = flexNumber(d)
	return nil
}

// flexString decodes a string or a number into its string form.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

func decimalOf(n flexNumber) decimal.Decimal {
	return decimal.Decimal(n)
}
