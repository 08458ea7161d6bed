// Package gamma is the market-data gateway. It fetches and normalizes
// markets from the Polymarket Gamma API and price history from the CLOB API.
//
// The client never retries: callers decide whether to skip a market or
// surface the failure.
package gamma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/polylabs/league-engine/internal/lookup"
	"github.com/polylabs/league-engine/internal/metrics"
	"github.com/polylabs/league-engine/internal/model"
)

const (
	DefaultGammaBase = "https://gamma-api.polymarket.com"
	DefaultCLOBBase  = "https://clob.polymarket.com"

	// searchScanLimit bounds the text-search fallback.
	searchScanLimit = 1000
)

var (
	// ErrMarketNotFound is returned when the provider reports no such market.
	ErrMarketNotFound = errors.New("gamma: market not found")

	// ErrUnavailable covers network failures and unexpected statuses.
	ErrUnavailable = errors.New("gamma: market data unavailable")

	// ErrInvalidInterval is returned for unsupported history intervals.
	ErrInvalidInterval = errors.New("gamma: invalid history interval")
)

// Config configures the client. Zero values pick production defaults.
type Config struct {
	GammaBase     string
	CLOBBase      string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client is the HTTP client for the Gamma and CLOB read APIs.
type Client struct {
	http      *http.Client
	gammaBase string
	clobBase  string
	limiter   *rate.Limiter
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.GammaBase == "" {
		cfg.GammaBase = DefaultGammaBase
	}
	if cfg.CLOBBase == "" {
		cfg.CLOBBase = DefaultCLOBBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 15
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		gammaBase: strings.TrimRight(cfg.GammaBase, "/"),
		clobBase:  strings.TrimRight(cfg.CLOBBase, "/"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

// ListFilter selects markets for FetchMarkets.
type ListFilter struct {
	Limit  int
	Offset int
	Active bool
	Closed bool
}

// FetchMarket returns one market by its provider ID.
func (c *Client) FetchMarket(ctx context.Context, id string) (*model.MarketSnapshot, error) {
	var gm gammaMarket
	if err := c.get(ctx, "market", c.gammaBase+"/markets/"+url.PathEscape(id), &gm); err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", id, err)
	}
	snap := gm.toSnapshot()
	if snap.ID == "" {
		snap.ID = id
	}
	return &snap, nil
}

// FetchMarkets lists markets.
func (c *Client) FetchMarkets(ctx context.Context, f ListFilter) ([]model.MarketSnapshot, error) {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	q.Set("active", strconv.FormatBool(f.Active))
	q.Set("closed", strconv.FormatBool(f.Closed))

	var raw []gammaMarket
	if err := c.get(ctx, "markets", c.gammaBase+"/markets?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}
	return toSnapshots(raw), nil
}

// FetchEventsBySlug returns the markets of every event with the slug.
func (c *Client) FetchEventsBySlug(ctx context.Context, slug string) ([]model.MarketSnapshot, error) {
	var events []gammaEvent
	u := c.gammaBase + "/events?slug=" + url.QueryEscape(slug)
	if err := c.get(ctx, "events", u, &events); err != nil {
		return nil, fmt.Errorf("fetch events %s: %w", slug, err)
	}

	var out []model.MarketSnapshot
	for _, ev := range events {
		out = append(out, toSnapshots(ev.Markets)...)
	}
	return out, nil
}

// Search resolves a free-form query. Slugs are tried against events, IDs
// against markets, and anything left falls back to a case-insensitive
// substring scan of active markets' question and description.
func (c *Client) Search(ctx context.Context, query string) ([]model.MarketSnapshot, error) {
	q, err := lookup.Parse(query)
	if err != nil {
		return []model.MarketSnapshot{}, nil
	}

	if q.Kind == lookup.KindSlug {
		markets, err := c.FetchEventsBySlug(ctx, q.Slug)
		if err == nil && len(markets) > 0 {
			return markets, nil
		}
		if err != nil {
			slog.Debug("slug lookup failed, falling back", "slug", q.Slug, "err", err)
		}
	}

	if q.Kind == lookup.KindID {
		m, err := c.FetchMarket(ctx, q.ID)
		if err == nil {
			return []model.MarketSnapshot{*m}, nil
		}
		slog.Debug("id lookup failed, falling back", "id", q.ID, "err", err)
	}

	all, err := c.FetchMarkets(ctx, ListFilter{Limit: searchScanLimit, Active: true})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(q.Raw)
	matches := []model.MarketSnapshot{}
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Question), needle) ||
			strings.Contains(strings.ToLower(m.Description), needle) {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// Interval settings for price history: CLOB fidelity in minutes and the
// number of trailing points kept.
var intervals = map[string]struct {
	fidelity int
	points   int
}{
	"1d":  {fidelity: 60, points: 24},
	"1w":  {fidelity: 360, points: 168},
	"1m":  {fidelity: 1440, points: 30},
	"all": {fidelity: 1440, points: 90},
}

// DefaultInterval is used when no interval is requested.
const DefaultInterval = "1m"

// FetchPriceHistory returns the YES price history of a market. Markets
// without a CLOB token yield an empty history.
func (c *Client) FetchPriceHistory(ctx context.Context, marketID, interval string) ([]model.PricePoint, error) {
	if interval == "" {
		interval = DefaultInterval
	}
	cfg, ok := intervals[interval]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	m, err := c.FetchMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if len(m.ClobTokenIDs) == 0 {
		return []model.PricePoint{}, nil
	}

	q := url.Values{}
	q.Set("market", m.ClobTokenIDs[0])
	q.Set("interval", "max")
	q.Set("fidelity", strconv.Itoa(cfg.fidelity))

	var resp priceHistoryResponse
	if err := c.get(ctx, "prices-history", c.clobBase+"/prices-history?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch price history %s: %w", marketID, err)
	}

	hist := resp.History
	if len(hist) > cfg.points {
		hist = hist[len(hist)-cfg.points:]
	}
	points := make([]model.PricePoint, 0, len(hist))
	for _, h := range hist {
		points = append(points, model.PricePoint{
			Timestamp: time.Unix(h.T, 0).UTC(),
			Price:     decimalOf(h.P),
		})
	}
	return points, nil
}

// get performs a rate-limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.GatewayRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrMarketNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func toSnapshots(raw []gammaMarket) []model.MarketSnapshot {
	out := make([]model.MarketSnapshot, 0, len(raw))
	for _, gm := range raw {
		out = append(out, gm.toSnapshot())
	}
	return out
}
