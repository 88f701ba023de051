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

const dflowProvider = "dflow"

// DFlow serves spot swaps and prediction-market orders, in sync or async mode
type DFlow struct {
	api    *httpapi.Client
	logger *zap.Logger
}

// NewDFlow creates a DFlow trade API adapter
func NewDFlow(cfg config.DFlowConfig, timeout time.Duration, logger *zap.Logger) *DFlow {
	base := cfg.BaseURL
	if base == "" {
		base = "https://quote-api.dflow.net"
	}
	api := httpapi.New(dflowProvider, base, timeout, logger)
	if cfg.APIKey != "" {
		api.Header.Set("x-api-key", cfg.APIKey)
	}
	return &DFlow{api: api, logger: api.Logger}
}

func (d *DFlow) Name() string { return dflowProvider }

type dflowOrderResponse struct {
	ExecutionMode        string             `json:"executionMode"`
	Transaction          string             `json:"transaction"`
	RequestID            string             `json:"requestId"`
	InAmount             httpapi.FlexString `json:"inAmount"`
	OutAmount            httpapi.FlexString `json:"outAmount"`
	MinOutAmount         httpapi.FlexString `json:"minOutAmount"`
	OtherAmountThreshold httpapi.FlexString `json:"otherAmountThreshold"`
	PriceImpactPct       httpapi.FlexString `json:"priceImpactPct"`
	LastValidBlockHeight uint64             `json:"lastValidBlockHeight"`
}

// GetOrder requests an order transaction from GET /order
func (d *DFlow) GetOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	switch req.Kind {
	case types.OrderSwap, types.OrderPrediction, "":
	default:
		return nil, fmt.Errorf("%w: dflow does not support %s orders", types.ErrInvalidRequest, req.Kind)
	}

	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("userPublicKey", req.Wallet.PublicKey)
	if req.SlippageBps > 0 {
		params.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	} else {
		params.Set("slippageBps", "auto")
	}
	if req.PlatformFeeBps > 0 {
		params.Set("platformFeeBps", strconv.Itoa(req.PlatformFeeBps))
		if req.FeeAccount != "" {
			params.Set("feeAccount", req.FeeAccount)
		}
	}
	if req.Sponsor != "" {
		params.Set("sponsor", req.Sponsor)
	}
	if req.Recipient != "" && req.Recipient != req.Wallet.PublicKey {
		params.Set("destinationWallet", req.Recipient)
	}

	var out dflowOrderResponse
	if err := d.api.GetJSON(ctx, "/order", params, &out); err != nil {
		return nil, err
	}

	tx, err := decodeTransaction(dflowProvider, out.Transaction)
	if err != nil {
		return nil, err
	}
	mode := types.ModeSync
	if out.ExecutionMode == string(types.ModeAsync) {
		mode = types.ModeAsync
	}
	minOut := out.MinOutAmount
	if minOut == "" {
		minOut = out.OtherAmountThreshold
	}

	resp := &types.QuoteResponse{
		Provider:       dflowProvider,
		Mode:           mode,
		Transaction:    tx,
		RequestID:      out.RequestID,
		InAmount:       out.InAmount.String(),
		OutAmount:      out.OutAmount.String(),
		MinOutAmount:   minOut.String(),
		PriceImpactPct: out.PriceImpactPct.String(),
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}

	d.logger.Debug("dflow order",
		zap.String("mode", string(mode)),
		zap.String("request_id", out.RequestID),
		zap.Uint64("last_valid_block_height", out.LastValidBlockHeight),
	)
	return resp, nil
}

type dflowFill struct {
	Signature string             `json:"signature"`
	InAmount  httpapi.FlexString `json:"inAmount"`
	OutAmount httpapi.FlexString `json:"outAmount"`
}

type dflowStatusResponse struct {
	Status          string             `json:"status"`
	InAmount        httpapi.FlexString `json:"inAmount"`
	OutAmount       httpapi.FlexString `json:"outAmount"`
	Fills           []dflowFill        `json:"fills"`
	NextTransaction string             `json:"nextTransaction"`
}

// GetOrderStatus reads GET /order-status for an async order
func (d *DFlow) GetOrderStatus(ctx context.Context, requestID string) (*types.OrderStatus, error) {
	if err := requireRequestID(requestID); err != nil {
		return nil, err
	}

	var out dflowStatusResponse
	if err := d.api.GetJSON(ctx, "/order-status", url.Values{"requestId": {requestID}}, &out); err != nil {
		return nil, err
	}

	status := &types.OrderStatus{
		State:     types.ParseOrderState(out.Status),
		InAmount:  out.InAmount.String(),
		OutAmount: out.OutAmount.String(),
		Raw:       out.Status,
	}
	for _, f := range out.Fills {
		status.Fills = append(status.Fills, types.Fill{
			Signature: f.Signature,
			InAmount:  f.InAmount.String(),
			OutAmount: f.OutAmount.String(),
		})
	}
	if out.NextTransaction != "" {
		next, err := decodeTransaction(dflowProvider, out.NextTransaction)
		if err != nil {
			return nil, err
		}
		status.NextTransaction = next
	}
	return status, nil
}
