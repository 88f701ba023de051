// Package aggregator adapts liquidity aggregators to one quote interface.
// Adapters validate requests before any network call and never retry.
package aggregator

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/types"
)

// Provider fetches unsigned order transactions and async order status
type Provider interface {
	Name() string
	GetOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error)
	GetOrderStatus(ctx context.Context, requestID string) (*types.OrderStatus, error)
}

// DepositNotifier is implemented by providers that want to be told the
// signature of a broadcast deposit transaction.
type DepositNotifier interface {
	NotifyDeposit(ctx context.Context, requestID, signature string) error
}

// New builds the provider selected by cfg.Provider
func New(cfg config.AggregatorConfig, chain ChainReader, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "dflow", "":
		return NewDFlow(cfg.DFlow, cfg.HTTPTimeout, logger), nil
	case "jupiter":
		return NewJupiter(cfg.Jupiter, cfg.HTTPTimeout, logger), nil
	case "oneclick":
		if chain == nil {
			return nil, fmt.Errorf("oneclick provider requires a chain RPC client")
		}
		return NewOneClick(cfg.OneClick, chain, logger), nil
	default:
		return nil, fmt.Errorf("unknown aggregator provider %q", cfg.Provider)
	}
}

func decodeTransaction(provider, b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, &types.UpstreamError{Provider: provider, Message: "response has no transaction"}
	}
	tx, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, &types.UpstreamError{Provider: provider, Message: fmt.Sprintf("transaction is not valid base64: %v", err)}
	}
	return tx, nil
}

func requireRequestID(requestID string) error {
	if requestID == "" {
		return fmt.Errorf("%w: request id is required", types.ErrInvalidRequest)
	}
	return nil
}
