package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agent-swap/config"
	"agent-swap/pkg/types"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newPricer(t *testing.T) *Pricer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price/v3" || r.Header.Get("x-api-key") != "key" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"So11111111111111111111111111111111111111112": {"usdPrice": 150.25, "decimals": 9, "priceChange24h": -1.5},
			"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {"usdPrice": 1.0, "decimals": 6},
			"Dead1111111111111111111111111111111111111111": {"usdPrice": 0, "decimals": 6}
		}`))
	}))
	t.Cleanup(srv.Close)
	return NewPricer(config.JupiterConfig{BaseURL: srv.URL, APIKey: "key"}, 5*time.Second, nil)
}

func TestPricerGet(t *testing.T) {
	p := newPricer(t)

	got, err := p.Get(context.Background(), solMint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.USDPrice.String() != "150.25" || got.Decimals != 9 || got.Mint != solMint {
		t.Errorf("price = %+v", got)
	}
}

func TestPricerPairPrice(t *testing.T) {
	p := newPricer(t)

	got, err := p.PairPrice(context.Background(), solMint, usdcMint)
	if err != nil {
		t.Fatalf("PairPrice: %v", err)
	}
	if got.String() != "150.25" {
		t.Errorf("pair price = %s, want 150.25", got)
	}
}

func TestPricerMissingPrice(t *testing.T) {
	p := newPricer(t)

	for _, mint := range []string{"Dead1111111111111111111111111111111111111111", "Unknown111111111111111111111111111111111111"} {
		if _, err := p.Get(context.Background(), mint); !errors.Is(err, types.ErrUpstream) {
			t.Errorf("%s: error = %v, want upstream error", mint, err)
		}
	}
}

func TestPricerTooManyMints(t *testing.T) {
	p := newPricer(t)
	mints := make([]string, maxIDs+1)
	for i := range mints {
		mints[i] = solMint
	}
	if _, err := p.Prices(context.Background(), mints...); !errors.Is(err, types.ErrInvalidRequest) {
		t.Errorf("error = %v", err)
	}
}
