package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"agent-swap/config"
	"agent-swap/pkg/parser"
	"agent-swap/pkg/pricing"
	"agent-swap/pkg/types"
)

func newTestPricer(t *testing.T) (*pricing.Pricer, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"So11111111111111111111111111111111111111112": {"usdPrice": 150.25, "decimals": 9},
			"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {"usdPrice": 1, "decimals": 6}
		}`))
	}))
	t.Cleanup(srv.Close)
	return pricing.NewPricer(config.JupiterConfig{BaseURL: srv.URL}, 5*time.Second, nil), &calls
}

func resetSwapFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		toChain, recipientAddr, limitPct = "", "", ""
		limitExpires, recurOrders, recurEvery = 0, 0, 0
	}
	reset()
	t.Cleanup(reset)
}

func planFor(t *testing.T, p *pricing.Pricer, command string) (*swapPlan, error) {
	t.Helper()
	c, err := parser.ParseSwapCommand(command)
	if err != nil {
		t.Fatalf("ParseSwapCommand(%q): %v", command, err)
	}
	return buildSwapPlan(context.Background(), p, c)
}

func TestBuildSwapPlan_KnownTokenNeedsNoPrice(t *testing.T) {
	resetSwapFlags(t)
	p, calls := newTestPricer(t)

	got, err := planFor(t, p, "1.5 SOL to USDC")
	if err != nil {
		t.Fatalf("buildSwapPlan: %v", err)
	}
	if got.Request.Amount != 1_500_000_000 || got.Request.Kind != types.OrderSwap {
		t.Errorf("request = %+v", got.Request)
	}
	if *calls != 0 {
		t.Errorf("price API called %d times, want 0", *calls)
	}
}

func TestBuildSwapPlan_USDSized(t *testing.T) {
	resetSwapFlags(t)
	p, _ := newTestPricer(t)

	got, err := planFor(t, p, "$30.05 of SOL to USDC")
	if err != nil {
		t.Fatalf("buildSwapPlan: %v", err)
	}
	if got.Request.Amount != 200_000_000 {
		t.Errorf("amount = %d, want 200000000", got.Request.Amount)
	}
	if got.InputHuman.String() != "0.2" || got.InputUSD.String() != "30.05" {
		t.Errorf("input = %s ($%s)", got.InputHuman, got.InputUSD)
	}
}

func TestBuildSwapPlan_Limit(t *testing.T) {
	resetSwapFlags(t)
	p, _ := newTestPricer(t)
	limitPct = "10"
	limitExpires = time.Hour

	got, err := planFor(t, p, "$150.25 of SOL to USDC")
	if err != nil {
		t.Fatalf("buildSwapPlan: %v", err)
	}
	req := got.Request
	if req.Kind != types.OrderLimit || req.Amount != 1_000_000_000 || req.TakingAmount != 165_275_000 {
		t.Errorf("request = %+v", req)
	}
	if req.ExpiresAt.IsZero() {
		t.Error("expiry not set")
	}
	if got.Limit == nil || got.Limit.ShouldFillNow {
		t.Errorf("limit info = %+v", got.Limit)
	}
}

func TestBuildSwapPlan_Recurring(t *testing.T) {
	resetSwapFlags(t)
	p, _ := newTestPricer(t)
	recurOrders, recurEvery = 3, 24*time.Hour

	got, err := planFor(t, p, "300 USDC to SOL")
	if err != nil {
		t.Fatalf("buildSwapPlan: %v", err)
	}
	req := got.Request
	if req.Kind != types.OrderRecurring || req.NumberOfOrders != 3 || req.Interval != 24*time.Hour || req.Amount != 300_000_000 {
		t.Errorf("request = %+v", req)
	}
}

func TestBuildSwapPlan_Rejects(t *testing.T) {
	p, _ := newTestPricer(t)

	t.Run("cross-chain without recipient", func(t *testing.T) {
		resetSwapFlags(t)
		toChain = "near"
		_, err := planFor(t, p, "1 SOL to USDC")
		if !errors.Is(err, types.ErrInvalidRequest) {
			t.Errorf("err = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("below one smallest unit", func(t *testing.T) {
		resetSwapFlags(t)
		_, err := planFor(t, p, "0.0000000001 SOL to USDC")
		if !errors.Is(err, types.ErrInvalidRequest) {
			t.Errorf("err = %v, want ErrInvalidRequest", err)
		}
	})
}

func TestBuildSwapPlan_CrossChainDestination(t *testing.T) {
	resetSwapFlags(t)
	p, _ := newTestPricer(t)
	toChain, recipientAddr = "NEAR", "you.near"

	got, err := planFor(t, p, "1 SOL to usdc")
	if err != nil {
		t.Fatalf("buildSwapPlan: %v", err)
	}
	if got.Request.OutputMint != "USDC@near" {
		t.Errorf("output = %q, want USDC@near", got.Request.OutputMint)
	}
}
