// Package prediction discovers prediction markets, scores them and reads a
// wallet's outcome-token positions.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agent-swap/pkg/httpapi"
	"agent-swap/pkg/safety"
	"agent-swap/pkg/types"
)

const (
	DefaultListLimit  = 50
	DefaultTradeLimit = 100
	maxSeriesFilter   = 25
)

// MarketAccounts holds the outcome mints of a market for one settlement mint
type MarketAccounts struct {
	YesMint string `json:"yesMint"`
	NoMint  string `json:"noMint"`
}

// Market is a single binary prediction market as listed by the metadata API
type Market struct {
	Ticker         string                    `json:"ticker"`
	EventTicker    string                    `json:"eventTicker,omitempty"`
	SeriesTicker   string                    `json:"seriesTicker,omitempty"`
	Title          string                    `json:"title,omitempty"`
	Status         string                    `json:"status,omitempty"`
	Category       string                    `json:"category,omitempty"`
	Volume         decimal.Decimal           `json:"volume"`
	Liquidity      decimal.Decimal           `json:"liquidity"`
	OpenInterest   decimal.Decimal           `json:"openInterest"`
	CreatedAt      int64                     `json:"createdAt,omitempty"`
	OpenTime       int64                     `json:"openTime,omitempty"`
	CloseTime      int64                     `json:"closeTime,omitempty"`
	ExpirationTime int64                     `json:"expirationTime,omitempty"`
	RulesPrimary   string                    `json:"rulesPrimary,omitempty"`
	Accounts       map[string]MarketAccounts `json:"accounts,omitempty"`
}

// LiquidityUSD falls back to open interest, which is what the API reports for most markets
func (m Market) LiquidityUSD() decimal.Decimal {
	if m.Liquidity.IsPositive() {
		return m.Liquidity
	}
	return m.OpenInterest
}

// Age is measured from creation, or from the open time when creation is
// unknown. ok is false when the market reports neither.
func (m Market) Age(now time.Time) (age time.Duration, ok bool) {
	created := m.CreatedAt
	if created == 0 {
		created = m.OpenTime
	}
	if created == 0 {
		return 0, false
	}
	age = now.Sub(time.Unix(created, 0))
	if age < 0 {
		return 0, true
	}
	return age, true
}

// ResolutionDate formats the close or expiration time, or "" when neither is set
func (m Market) ResolutionDate() string {
	ts := m.CloseTime
	if ts == 0 {
		ts = m.ExpirationTime
	}
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04 UTC")
}

// Snapshot converts the market into scorer input. Trade activity is left unknown.
func (m Market) Snapshot(now time.Time) safety.MarketSnapshot {
	age, known := m.Age(now)
	return safety.MarketSnapshot{
		Ticker:        m.Ticker,
		VolumeUSD:     m.Volume.InexactFloat64(),
		LiquidityUSD:  m.LiquidityUSD().InexactFloat64(),
		Age:           age,
		AgeUnknown:    !known,
		TradesUnknown: true,
		Series:        m.series(),
		Rules:         m.RulesPrimary,
	}
}

func (m Market) series() string {
	if m.SeriesTicker != "" {
		return m.SeriesTicker
	}
	return m.Ticker
}

// Settlement returns the outcome mints that settle in settlementMint. A
// market with a single settlement account is assumed to settle there.
func (m Market) Settlement(settlementMint string) (MarketAccounts, bool) {
	if acc, ok := m.Accounts[settlementMint]; ok {
		return acc, true
	}
	if len(m.Accounts) == 1 {
		for _, acc := range m.Accounts {
			return acc, true
		}
	}
	return MarketAccounts{}, false
}

// OutcomeMint returns the YES or NO token mint of the market bought and sold with settlementMint
func (m Market) OutcomeMint(side, settlementMint string) (string, error) {
	acc, ok := m.Settlement(settlementMint)
	if !ok {
		if len(m.Accounts) == 0 {
			return "", fmt.Errorf("%w: market %s has no outcome accounts", types.ErrUpstream, m.Ticker)
		}
		return "", fmt.Errorf("%w: market %s does not settle in %s", types.ErrInvalidRequest, m.Ticker, settlementMint)
	}
	var mint string
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "YES":
		mint = acc.YesMint
	case "NO":
		mint = acc.NoMint
	default:
		return "", fmt.Errorf("%w: side must be YES or NO, got %q", types.ErrInvalidRequest, side)
	}
	if mint == "" {
		return "", fmt.Errorf("%w: market %s has no %s mint", types.ErrUpstream, m.Ticker, strings.ToUpper(side))
	}
	return mint, nil
}

// Event groups related markets
type Event struct {
	Ticker       string          `json:"ticker"`
	SeriesTicker string          `json:"seriesTicker,omitempty"`
	Title        string          `json:"title,omitempty"`
	Volume       decimal.Decimal `json:"volume"`
	Liquidity    decimal.Decimal `json:"liquidity"`
	OpenInterest decimal.Decimal `json:"openInterest"`
	Markets      []Market        `json:"markets,omitempty"`
}

// Snapshot scores the event as a whole using its aggregate stats
func (e Event) Snapshot() safety.MarketSnapshot {
	liquidity := e.Liquidity
	if !liquidity.IsPositive() {
		liquidity = e.OpenInterest
	}
	series := e.SeriesTicker
	if series == "" {
		series = e.Ticker
	}
	return safety.MarketSnapshot{
		Ticker:        e.Ticker,
		VolumeUSD:     e.Volume.InexactFloat64(),
		LiquidityUSD:  liquidity.InexactFloat64(),
		AgeUnknown:    true,
		TradesUnknown: true,
		Series:        series,
	}
}

// Trade is one fill on a market
type Trade struct {
	TradeID     string             `json:"tradeId,omitempty"`
	Ticker      string             `json:"ticker,omitempty"`
	TakerSide   string             `json:"takerSide,omitempty"`
	Count       httpapi.FlexString `json:"count,omitempty"`
	Price       httpapi.FlexString `json:"price,omitempty"`
	CreatedTime int64              `json:"createdTime"`
}

// Series is a template that events are created from
type Series struct {
	Ticker   string `json:"ticker"`
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
}

// OutcomeMint maps an outcome token back to its market
type OutcomeMint struct {
	Market string `json:"market,omitempty"`
	Ticker string `json:"ticker,omitempty"`
	Side   string `json:"side,omitempty"`
}

// MarketTicker prefers the market field and falls back to ticker
func (o OutcomeMint) MarketTicker() string {
	if o.Market != "" {
		return o.Market
	}
	if o.Ticker != "" {
		return o.Ticker
	}
	return "unknown"
}

// ListOptions pages through markets or events
type ListOptions struct {
	Limit  int
	Cursor string
	Status string // active, closed, determined
	Sort   string // volume, volume24h, liquidity, openInterest
	Series []string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	limit := o.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	status := o.Status
	if status == "" {
		status = "active"
	}
	q.Set("status", status)
	order := o.Sort
	if order == "" {
		order = "volume"
	}
	q.Set("sort", order)
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	if len(o.Series) > 0 {
		series := o.Series
		if len(series) > maxSeriesFilter {
			series = series[:maxSeriesFilter]
		}
		q.Set("seriesTickers", strings.Join(series, ","))
	}
	return q
}

// Client reads the prediction-market metadata API
type Client struct {
	api *httpapi.Client
}

// NewClient creates a metadata client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{api: httpapi.New("dflow-metadata", baseURL, timeout, logger)}
}

// ListMarkets returns one page of markets and the cursor for the next
func (c *Client) ListMarkets(ctx context.Context, opts ListOptions) ([]Market, string, error) {
	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := c.api.GetJSON(ctx, "/markets", opts.query(), &resp); err != nil {
		return nil, "", fmt.Errorf("list markets: %w", err)
	}
	return resp.Markets, resp.Cursor, nil
}

// ListEvents returns one page of events with their nested markets
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) ([]Event, string, error) {
	q := opts.query()
	q.Set("withNestedMarkets", "true")
	var resp struct {
		Events []Event `json:"events"`
		Cursor string  `json:"cursor"`
	}
	if err := c.api.GetJSON(ctx, "/events", q, &resp); err != nil {
		return nil, "", fmt.Errorf("list events: %w", err)
	}
	return resp.Events, resp.Cursor, nil
}

// Search finds events matching a free-text query
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Event, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", types.ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("withNestedMarkets", "true")

	var raw json.RawMessage
	if err := c.api.GetJSON(ctx, "/search", q, &raw); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	var events []Event
	if err := listOf(raw, "events", &events); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return events, nil
}

// GetEvent fetches one event by ticker
func (c *Client) GetEvent(ctx context.Context, ticker string) (*Event, error) {
	if ticker == "" {
		return nil, fmt.Errorf("%w: event ticker is required", types.ErrInvalidRequest)
	}
	var ev Event
	if err := c.api.GetJSON(ctx, "/event/"+url.PathEscape(ticker), nil, &ev); err != nil {
		return nil, fmt.Errorf("get event %s: %w", ticker, err)
	}
	return &ev, nil
}

// GetMarket fetches one market by ticker
func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	if ticker == "" {
		return nil, fmt.Errorf("%w: market ticker is required", types.ErrInvalidRequest)
	}
	var m Market
	if err := c.api.GetJSON(ctx, "/market/"+url.PathEscape(ticker), nil, &m); err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}
	return &m, nil
}

// GetMarketByMint fetches the market an outcome token belongs to
func (c *Client) GetMarketByMint(ctx context.Context, mint string) (*Market, error) {
	if mint == "" {
		return nil, fmt.Errorf("%w: mint address is required", types.ErrInvalidRequest)
	}
	var m Market
	if err := c.api.GetJSON(ctx, "/market/by-mint/"+url.PathEscape(mint), nil, &m); err != nil {
		return nil, fmt.Errorf("get market by mint %s: %w", mint, err)
	}
	return &m, nil
}

// GetTrades returns the most recent trades of a market
func (c *Client) GetTrades(ctx context.Context, ticker string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("ticker", ticker)

	var raw json.RawMessage
	if err := c.api.GetJSON(ctx, "/trades", q, &raw); err != nil {
		return nil, fmt.Errorf("get trades %s: %w", ticker, err)
	}
	var trades []Trade
	if err := listOf(raw, "trades", &trades); err != nil {
		return nil, fmt.Errorf("get trades %s: %w", ticker, err)
	}
	return trades, nil
}

// ListSeries returns the active series
func (c *Client) ListSeries(ctx context.Context, category string) ([]Series, error) {
	q := url.Values{}
	q.Set("status", "active")
	if category != "" {
		q.Set("category", category)
	}
	var raw json.RawMessage
	if err := c.api.GetJSON(ctx, "/series", q, &raw); err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	var series []Series
	if err := listOf(raw, "series", &series); err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return series, nil
}

// ObjectiveCategories resolve on a verifiable, date-bound fact
var ObjectiveCategories = []string{"politics", "elections", "sports", "fed", "economics", "crypto-price"}

// VerifiedSeries loads the tickers of active series in an objective category.
// It has the shape of a safety.Loader so it can back a SeriesCache.
func (c *Client) VerifiedSeries(ctx context.Context) ([]string, error) {
	series, err := c.ListSeries(ctx, "")
	if err != nil {
		return nil, err
	}
	objective := make(map[string]struct{}, len(ObjectiveCategories))
	for _, cat := range ObjectiveCategories {
		objective[cat] = struct{}{}
	}
	var tickers []string
	for _, s := range series {
		if s.Ticker == "" {
			continue
		}
		if _, ok := objective[strings.ToLower(s.Category)]; ok {
			tickers = append(tickers, s.Ticker)
		}
	}
	return tickers, nil
}

// OutcomeMints maps every outcome token mint to its market and side
func (c *Client) OutcomeMints(ctx context.Context) (map[string]OutcomeMint, error) {
	var mints map[string]OutcomeMint
	if err := c.api.GetJSON(ctx, "/outcome_mints", nil, &mints); err != nil {
		return nil, fmt.Errorf("outcome mints: %w", err)
	}
	return mints, nil
}

// listOf decodes either {"<key>": [...]} or a bare array into out
func listOf(raw json.RawMessage, key string, out interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(raw, out)
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return fmt.Errorf("%w: unexpected response shape: %v", types.ErrUpstream, err)
	}
	inner, ok := wrapped[key]
	if !ok || string(inner) == "null" {
		return nil
	}
	if err := json.Unmarshal(inner, out); err != nil {
		return fmt.Errorf("%w: invalid %s list: %v", types.ErrUpstream, key, err)
	}
	return nil
}
