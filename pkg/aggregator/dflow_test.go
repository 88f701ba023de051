package aggregator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"agent-swap/config"
	"agent-swap/pkg/types"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	wallet   = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

var unsignedTx = []byte("unsigned-tx-bytes")

func swapRequest() types.QuoteRequest {
	return types.QuoteRequest{
		Kind:        types.OrderSwap,
		InputMint:   solMint,
		OutputMint:  usdcMint,
		Amount:      1_000_000_000,
		SlippageBps: 50,
		Wallet:      types.WalletRef{PublicKey: wallet},
	}
}

func newDFlowServer(t *testing.T, handler http.HandlerFunc) (*DFlow, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewDFlow(config.DFlowConfig{BaseURL: srv.URL, APIKey: "key"}, 5*time.Second, nil), &hits
}

func TestDFlowGetOrderSync(t *testing.T) {
	d, _ := newDFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/order" || q.Get("inputMint") != solMint || q.Get("amount") != "1000000000" ||
			q.Get("userPublicKey") != wallet || q.Get("slippageBps") != "50" || r.Header.Get("x-api-key") != "key" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"executionMode":  "sync",
			"transaction":    base64.StdEncoding.EncodeToString(unsignedTx),
			"inAmount":       "1000000000",
			"outAmount":      "150000000",
			"minOutAmount":   "149250000",
			"priceImpactPct": 0.01,
		})
	})

	resp, err := d.GetOrder(context.Background(), swapRequest())
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if resp.Mode != types.ModeSync || string(resp.Transaction) != string(unsignedTx) {
		t.Errorf("resp = %+v", resp)
	}
	if resp.OutAmount != "150000000" || resp.PriceImpactPct != "0.01" {
		t.Errorf("amounts = %s / %s", resp.OutAmount, resp.PriceImpactPct)
	}
}

func TestDFlowGetOrderAsyncRequiresRequestID(t *testing.T) {
	d, _ := newDFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"executionMode": "async",
			"transaction":   base64.StdEncoding.EncodeToString(unsignedTx),
		})
	})

	_, err := d.GetOrder(context.Background(), swapRequest())
	if !errors.Is(err, types.ErrUpstream) {
		t.Fatalf("expected ErrUpstream for async quote without request id, got %v", err)
	}
}

func TestDFlowGetOrderAsync(t *testing.T) {
	d, _ := newDFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sponsor") != "Sponsor111" {
			t.Errorf("sponsor not forwarded: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"executionMode": "async",
			"transaction":   base64.StdEncoding.EncodeToString(unsignedTx),
			"requestId":     "req-42",
		})
	})

	req := swapRequest()
	req.Kind = types.OrderPrediction
	req.Sponsor = "Sponsor111"
	resp, err := d.GetOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if resp.Mode != types.ModeAsync || resp.RequestID != "req-42" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDFlowValidationBeforeNetwork(t *testing.T) {
	d, hits := newDFlowServer(t, func(w http.ResponseWriter, r *http.Request) {})

	bad := []func(*types.QuoteRequest){
		func(r *types.QuoteRequest) { r.Amount = 0 },
		func(r *types.QuoteRequest) { r.InputMint = "" },
		func(r *types.QuoteRequest) { r.Kind = types.OrderLimit; r.TakingAmount = 1 },
	}
	for i, mutate := range bad {
		req := swapRequest()
		mutate(&req)
		if _, err := d.GetOrder(context.Background(), req); !errors.Is(err, types.ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
	if _, err := d.GetOrderStatus(context.Background(), ""); !errors.Is(err, types.ErrInvalidRequest) {
		t.Errorf("empty request id: expected ErrInvalidRequest, got %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("server was called %d times", n)
	}
}

func TestDFlowUpstreamError(t *testing.T) {
	d, _ := newDFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"route not found"}`))
	})

	_, err := d.GetOrder(context.Background(), swapRequest())
	var upstream *types.UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusBadRequest || upstream.Message != "route not found" {
		t.Fatalf("expected UpstreamError 400, got %v", err)
	}
}

func TestDFlowGetOrderStatus(t *testing.T) {
	next := []byte("next-tx")
	d, _ := newDFlowServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/order-status" || r.URL.Query().Get("requestId") != "req-42" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":          "pendingClose",
			"inAmount":        "1000000000",
			"outAmount":       "0",
			"nextTransaction": base64.StdEncoding.EncodeToString(next),
			"fills": []map[string]interface{}{
				{"signature": "fill1", "inAmount": "500000000", "outAmount": 75000000},
			},
		})
	})

	status, err := d.GetOrderStatus(context.Background(), "req-42")
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if status.State != types.StatePending || status.Raw != "pendingClose" {
		t.Errorf("state = %s (%s)", status.State, status.Raw)
	}
	if string(status.NextTransaction) != string(next) {
		t.Errorf("next transaction = %q", status.NextTransaction)
	}
	if len(status.Fills) != 1 || status.Fills[0].OutAmount != "75000000" {
		t.Errorf("fills = %+v", status.Fills)
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.AggregatorConfig{HTTPTimeout: time.Second}
	for provider, want := range map[string]string{"": "dflow", "dflow": "dflow", "jupiter": "jupiter"} {
		cfg.Provider = provider
		p, err := New(cfg, nil, nil)
		if err != nil {
			t.Fatalf("New(%q): %v", provider, err)
		}
		if p.Name() != want {
			t.Errorf("New(%q).Name() = %q", provider, p.Name())
		}
	}

	cfg.Provider = "oneclick"
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("oneclick without a chain client should fail")
	}
	cfg.Provider = "raydium"
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("unknown provider should fail")
	}
}
