package types

import (
	"fmt"
	"strings"
	"time"
)

// OrderKind selects which aggregator order flow a request goes through
type OrderKind string

const (
	OrderSwap       OrderKind = "swap"       // Market swap at the quoted price
	OrderLimit      OrderKind = "limit"      // Trigger order filled when the counter-amount is met
	OrderRecurring  OrderKind = "recurring"  // Time-sliced order split into NumberOfOrders fills
	OrderPrediction OrderKind = "prediction" // Outcome-token trade on a prediction market
)

// ExecutionMode reports whether an aggregator finalizes an order in one round trip
type ExecutionMode string

const (
	ModeSync  ExecutionMode = "sync"
	ModeAsync ExecutionMode = "async"
)

// WalletRef identifies the wallet an order trades from
type WalletRef struct {
	ID        string `json:"id,omitempty"` // Custodial wallet id, empty for local keys
	PublicKey string `json:"public_key"`   // Base58 address
}

// QuoteRequest is everything an aggregator needs to build an unsigned transaction.
// It is treated as immutable once handed to the orchestrator.
type QuoteRequest struct {
	Kind           OrderKind `json:"kind"`
	InputMint      string    `json:"input_mint"`
	OutputMint     string    `json:"output_mint"`
	Amount         uint64    `json:"amount"` // Smallest units of InputMint
	SlippageBps    int       `json:"slippage_bps,omitempty"`
	PlatformFeeBps int       `json:"platform_fee_bps,omitempty"`
	FeeAccount     string    `json:"fee_account,omitempty"`
	Wallet         WalletRef `json:"wallet"`
	Sponsor        string    `json:"sponsor,omitempty"`   // Fee payer address when gas is sponsored
	Recipient      string    `json:"recipient,omitempty"` // Destination wallet, defaults to Wallet

	// Limit orders
	TakingAmount uint64    `json:"taking_amount,omitempty"` // Smallest units of OutputMint
	ExpiresAt    time.Time `json:"expires_at,omitempty"`

	// Recurring orders
	NumberOfOrders int           `json:"number_of_orders,omitempty"`
	Interval       time.Duration `json:"interval,omitempty"`
}

// Validate checks the request shape. It never touches the network.
func (r QuoteRequest) Validate() error {
	if r.Amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if err := validateAssetID("input asset", r.InputMint); err != nil {
		return err
	}
	if err := validateAssetID("output asset", r.OutputMint); err != nil {
		return err
	}
	if r.InputMint == r.OutputMint {
		return fmt.Errorf("%w: input and output asset are the same (%s)", ErrInvalidRequest, r.InputMint)
	}
	if r.Wallet.PublicKey == "" {
		return fmt.Errorf("%w: wallet public key is required", ErrInvalidRequest)
	}
	if r.SlippageBps < 0 || r.SlippageBps > 10000 {
		return fmt.Errorf("%w: slippage %d bps out of range", ErrInvalidRequest, r.SlippageBps)
	}
	if r.PlatformFeeBps < 0 || r.PlatformFeeBps > 10000 {
		return fmt.Errorf("%w: platform fee %d bps out of range", ErrInvalidRequest, r.PlatformFeeBps)
	}

	switch r.Kind {
	case OrderSwap, OrderPrediction, "":
	case OrderLimit:
		if r.TakingAmount == 0 {
			return fmt.Errorf("%w: limit order requires a positive taking amount", ErrInvalidRequest)
		}
	case OrderRecurring:
		if r.NumberOfOrders <= 0 {
			return fmt.Errorf("%w: recurring order requires a positive number of orders", ErrInvalidRequest)
		}
		if r.Interval <= 0 {
			return fmt.Errorf("%w: recurring order requires a positive interval", ErrInvalidRequest)
		}
		if r.Amount/uint64(r.NumberOfOrders) == 0 {
			return fmt.Errorf("%w: amount %d cannot be split into %d orders", ErrInvalidRequest, r.Amount, r.NumberOfOrders)
		}
	default:
		return fmt.Errorf("%w: unknown order kind %q", ErrInvalidRequest, r.Kind)
	}
	return nil
}

func validateAssetID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
	}
	if strings.ContainsAny(id, " \t\r\n/?#&") {
		return fmt.Errorf("%w: %s %q contains invalid characters", ErrInvalidRequest, field, id)
	}
	return nil
}

// QuoteResponse carries the unsigned transaction returned by an aggregator
type QuoteResponse struct {
	Provider       string        `json:"provider"`
	Mode           ExecutionMode `json:"mode"`
	Transaction    []byte        `json:"-"` // Unsigned wire transaction
	RequestID      string        `json:"request_id,omitempty"`
	ExpiresAt      time.Time     `json:"expires_at,omitempty"`
	InAmount       string        `json:"in_amount,omitempty"`
	OutAmount      string        `json:"out_amount,omitempty"`
	MinOutAmount   string        `json:"min_out_amount,omitempty"`
	PriceImpactPct string        `json:"price_impact_pct,omitempty"`
}

// Validate enforces that async quotes always carry a request id
func (q *QuoteResponse) Validate() error {
	if q == nil {
		return fmt.Errorf("%w: empty quote response", ErrUpstream)
	}
	if len(q.Transaction) == 0 {
		return fmt.Errorf("%w: quote has no transaction", ErrUpstream)
	}
	switch q.Mode {
	case ModeSync:
	case ModeAsync:
		if q.RequestID == "" {
			return fmt.Errorf("%w: async quote has no request id", ErrUpstream)
		}
	default:
		return fmt.Errorf("%w: unknown execution mode %q", ErrUpstream, q.Mode)
	}
	return nil
}

// OrderState is the normalized status of an async order
type OrderState string

const (
	StatePending OrderState = "pending"
	StateClosed  OrderState = "closed"
	StateFailed  OrderState = "failed"
	StateExpired OrderState = "expired"
)

// ParseOrderState maps provider status strings onto OrderState.
// Anything not recognized as terminal is treated as pending.
func ParseOrderState(s string) OrderState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed", "success", "completed", "filled":
		return StateClosed
	case "failed", "refunded", "reverted", "cancelled", "canceled":
		return StateFailed
	case "expired":
		return StateExpired
	default:
		return StatePending
	}
}

// Terminal reports whether no further status change is expected
func (s OrderState) Terminal() bool {
	return s == StateClosed || s == StateFailed || s == StateExpired
}

// Fill is one execution leg reported by the aggregator
type Fill struct {
	Signature string `json:"signature,omitempty"`
	InAmount  string `json:"in_amount,omitempty"`
	OutAmount string `json:"out_amount,omitempty"`
}

// OrderStatus is the answer to a status check for one request id
type OrderStatus struct {
	State           OrderState `json:"state"`
	NextTransaction []byte     `json:"-"`
	Fills           []Fill     `json:"fills,omitempty"`
	InAmount        string     `json:"in_amount,omitempty"`
	OutAmount       string     `json:"out_amount,omitempty"`
	Raw             string     `json:"raw_status,omitempty"`
}
