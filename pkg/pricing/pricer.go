// Package pricing looks up USD token prices for sizing swaps and limit orders.
package pricing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/httpapi"
	"agent-swap/pkg/types"
)

// maxIDs is the most mints the price endpoint accepts per call
const maxIDs = 50

// Price is the USD price of one whole token
type Price struct {
	Mint           string          `json:"mint"`
	USDPrice       decimal.Decimal `json:"usdPrice"`
	Decimals       int32           `json:"decimals"`
	PriceChange24h decimal.Decimal `json:"priceChange24h"`
}

// Pricer handles price fetching from the Jupiter price API
type Pricer struct {
	api *httpapi.Client
}

// NewPricer creates a new pricer instance
func NewPricer(cfg config.JupiterConfig, timeout time.Duration, logger *zap.Logger) *Pricer {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.jup.ag"
	}
	api := httpapi.New("jupiter-price", base, timeout, logger)
	if cfg.APIKey != "" {
		api.Header.Set("x-api-key", cfg.APIKey)
	}
	return &Pricer{api: api}
}

// Prices fetches prices for every mint. A mint the API has no price for is an error.
func (p *Pricer) Prices(ctx context.Context, mints ...string) (map[string]Price, error) {
	if len(mints) == 0 {
		return map[string]Price{}, nil
	}
	if len(mints) > maxIDs {
		return nil, fmt.Errorf("%w: at most %d mints per price lookup", types.ErrInvalidRequest, maxIDs)
	}

	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))
	var resp map[string]*Price
	if err := p.api.GetJSON(ctx, "/price/v3", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}

	out := make(map[string]Price, len(mints))
	for _, mint := range mints {
		info, ok := resp[mint]
		if !ok || info == nil || !info.USDPrice.IsPositive() {
			return nil, fmt.Errorf("%w: no USD price for %s", types.ErrUpstream, mint)
		}
		info.Mint = mint
		out[mint] = *info
	}
	return out, nil
}

// Get fetches the price of one mint
func (p *Pricer) Get(ctx context.Context, mint string) (Price, error) {
	prices, err := p.Prices(ctx, mint)
	if err != nil {
		return Price{}, err
	}
	return prices[mint], nil
}

// PairPrice is how many output tokens one input token buys at current USD prices
func (p *Pricer) PairPrice(ctx context.Context, inputMint, outputMint string) (decimal.Decimal, error) {
	prices, err := p.Prices(ctx, inputMint, outputMint)
	if err != nil {
		return decimal.Zero, err
	}
	return prices[inputMint].USDPrice.DivRound(prices[outputMint].USDPrice, 18), nil
}
