package aggregator

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/httpapi"
	"agent-swap/pkg/types"
)

const jupiterProvider = "jupiter"

// Jupiter covers Ultra swaps, Trigger (limit) orders and Recurring orders.
// All three return a transaction that settles in one broadcast.
type Jupiter struct {
	api             *httpapi.Client
	referralAccount string
	referralFeeBps  int
	now             func() time.Time
	logger          *zap.Logger
}

// NewJupiter creates a Jupiter adapter
func NewJupiter(cfg config.JupiterConfig, timeout time.Duration, logger *zap.Logger) *Jupiter {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.jup.ag"
	}
	api := httpapi.New(jupiterProvider, base, timeout, logger)
	if cfg.APIKey != "" {
		api.Header.Set("x-api-key", cfg.APIKey)
	}
	return &Jupiter{
		api:             api,
		referralAccount: cfg.ReferralAccount,
		referralFeeBps:  cfg.ReferralFeeBps,
		now:             time.Now,
		logger:          api.Logger,
	}
}

func (j *Jupiter) Name() string { return jupiterProvider }

// GetOrder dispatches on the order kind
func (j *Jupiter) GetOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		resp *types.QuoteResponse
		err  error
	)
	switch req.Kind {
	case types.OrderSwap, "":
		resp, err = j.ultraOrder(ctx, req)
	case types.OrderLimit:
		resp, err = j.triggerOrder(ctx, req)
	case types.OrderRecurring:
		resp, err = j.recurringOrder(ctx, req)
	default:
		return nil, fmt.Errorf("%w: jupiter does not support %s orders", types.ErrInvalidRequest, req.Kind)
	}
	if err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	j.logger.Debug("jupiter order", zap.String("kind", string(req.Kind)), zap.String("request_id", resp.RequestID))
	return resp, nil
}

// GetOrderStatus is not used: Jupiter orders are sync
func (j *Jupiter) GetOrderStatus(ctx context.Context, requestID string) (*types.OrderStatus, error) {
	return nil, fmt.Errorf("%w: jupiter orders settle synchronously and have no status endpoint", types.ErrInvalidRequest)
}

type ultraOrderResponse struct {
	RequestID            string             `json:"requestId"`
	Transaction          string             `json:"transaction"`
	InAmount             httpapi.FlexString `json:"inAmount"`
	OutAmount            httpapi.FlexString `json:"outAmount"`
	OtherAmountThreshold httpapi.FlexString `json:"otherAmountThreshold"`
	PriceImpactPct       httpapi.FlexString `json:"priceImpactPct"`
	ErrorMessage         string             `json:"errorMessage"`
}

func (j *Jupiter) ultraOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("taker", req.Wallet.PublicKey)
	if j.referralAccount != "" && j.referralFeeBps > 0 {
		params.Set("referralAccount", j.referralAccount)
		params.Set("referralFee", strconv.Itoa(j.referralFeeBps))
	}
	if req.Sponsor != "" {
		params.Set("payer", req.Sponsor)
	}

	var out ultraOrderResponse
	if err := j.api.GetJSON(ctx, "/ultra/v1/order", params, &out); err != nil {
		return nil, err
	}
	if out.Transaction == "" && out.ErrorMessage != "" {
		return nil, &types.UpstreamError{Provider: jupiterProvider, Message: out.ErrorMessage}
	}
	tx, err := decodeTransaction(jupiterProvider, out.Transaction)
	if err != nil {
		return nil, err
	}
	return &types.QuoteResponse{
		Provider:       jupiterProvider,
		Mode:           types.ModeSync,
		Transaction:    tx,
		RequestID:      out.RequestID,
		InAmount:       out.InAmount.String(),
		OutAmount:      out.OutAmount.String(),
		MinOutAmount:   out.OtherAmountThreshold.String(),
		PriceImpactPct: out.PriceImpactPct.String(),
	}, nil
}

type triggerParams struct {
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	ExpiredAt    string `json:"expiredAt,omitempty"`
	FeeBps       string `json:"feeBps,omitempty"`
}

type triggerRequest struct {
	InputMint        string        `json:"inputMint"`
	OutputMint       string        `json:"outputMint"`
	Maker            string        `json:"maker"`
	Payer            string        `json:"payer"`
	Params           triggerParams `json:"params"`
	FeeAccount       string        `json:"feeAccount,omitempty"`
	ComputeUnitPrice string        `json:"computeUnitPrice"`
}

type createOrderResponse struct {
	RequestID   string `json:"requestId"`
	Transaction string `json:"transaction"`
	Order       string `json:"order"`
}

func (j *Jupiter) triggerOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(j.now()) {
		return nil, fmt.Errorf("%w: limit order expiry %s is not in the future", types.ErrInvalidRequest, req.ExpiresAt.Format(time.RFC3339))
	}

	body := triggerRequest{
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		Maker:      req.Wallet.PublicKey,
		Payer:      req.Wallet.PublicKey,
		Params: triggerParams{
			MakingAmount: strconv.FormatUint(req.Amount, 10),
			TakingAmount: strconv.FormatUint(req.TakingAmount, 10),
		},
		ComputeUnitPrice: "auto",
	}
	if req.Sponsor != "" {
		body.Payer = req.Sponsor
	}
	if !req.ExpiresAt.IsZero() {
		body.Params.ExpiredAt = strconv.FormatInt(req.ExpiresAt.Unix(), 10)
	}
	if req.PlatformFeeBps > 0 && req.FeeAccount != "" {
		body.Params.FeeBps = strconv.Itoa(req.PlatformFeeBps)
		body.FeeAccount = req.FeeAccount
	}

	var out createOrderResponse
	if err := j.api.PostJSON(ctx, "/trigger/v1/createOrder", body, &out); err != nil {
		return nil, err
	}
	tx, err := decodeTransaction(jupiterProvider, out.Transaction)
	if err != nil {
		return nil, err
	}
	return &types.QuoteResponse{
		Provider:     jupiterProvider,
		Mode:         types.ModeSync,
		Transaction:  tx,
		RequestID:    out.RequestID,
		ExpiresAt:    req.ExpiresAt,
		InAmount:     body.Params.MakingAmount,
		MinOutAmount: body.Params.TakingAmount,
	}, nil
}

type recurringTimeParams struct {
	InAmount       uint64   `json:"inAmount"`
	NumberOfOrders int      `json:"numberOfOrders"`
	Interval       int64    `json:"interval"`
	MinPrice       *float64 `json:"minPrice"`
	MaxPrice       *float64 `json:"maxPrice"`
	StartAt        *int64   `json:"startAt"`
}

type recurringRequest struct {
	User       string `json:"user"`
	Payer      string `json:"payer"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	Params     struct {
		Time recurringTimeParams `json:"time"`
	} `json:"params"`
}

func (j *Jupiter) recurringOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	interval := int64(req.Interval / time.Second)
	if interval <= 0 {
		return nil, fmt.Errorf("%w: recurring interval must be at least one second", types.ErrInvalidRequest)
	}

	body := recurringRequest{
		User:       req.Wallet.PublicKey,
		Payer:      req.Wallet.PublicKey,
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
	}
	if req.Sponsor != "" {
		body.Payer = req.Sponsor
	}
	body.Params.Time = recurringTimeParams{
		InAmount:       req.Amount,
		NumberOfOrders: req.NumberOfOrders,
		Interval:       interval,
	}

	var out createOrderResponse
	if err := j.api.PostJSON(ctx, "/recurring/v1/createOrder", body, &out); err != nil {
		return nil, err
	}
	tx, err := decodeTransaction(jupiterProvider, out.Transaction)
	if err != nil {
		return nil, err
	}
	return &types.QuoteResponse{
		Provider:    jupiterProvider,
		Mode:        types.ModeSync,
		Transaction: tx,
		RequestID:   out.RequestID,
		InAmount:    strconv.FormatUint(req.Amount, 10),
	}, nil
}
