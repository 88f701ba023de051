package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"agent-swap/pkg/types"
)

// LimitParams sizes a limit order from a USD budget and current market prices
type LimitParams struct {
	InputUSD       decimal.Decimal
	InputPriceUSD  decimal.Decimal
	InputDecimals  int32
	OutputPriceUSD decimal.Decimal
	OutputDecimals int32
	// PriceChangePct is how much more output than market the order asks for.
	// It must not be negative.
	PriceChangePct decimal.Decimal
}

// LimitOrder holds both legs of a limit order in smallest units
type LimitOrder struct {
	MakingAmount         *big.Int
	TakingAmount         *big.Int
	InputHuman           decimal.Decimal
	OutputHuman          decimal.Decimal
	TargetOutputPriceUSD decimal.Decimal
}

// LimitOrderAmounts computes making and taking amounts so that the requested
// price is currentPrice × (1 + pct/100) output per input. The making leg is
// truncated and the taking leg is rounded up, so rounding only ever asks
// for more output per unit of input, never less.
func LimitOrderAmounts(p LimitParams) (LimitOrder, error) {
	if p.PriceChangePct.IsNegative() {
		return LimitOrder{}, fmt.Errorf("%w: price change percentage must not be negative, got %s", types.ErrInvalidParameter, p.PriceChangePct)
	}
	if !p.OutputPriceUSD.IsPositive() {
		return LimitOrder{}, fmt.Errorf("%w: output price must be positive, got %s", types.ErrInvalidParameter, p.OutputPriceUSD)
	}
	if err := checkDecimals(p.OutputDecimals); err != nil {
		return LimitOrder{}, err
	}

	swap, err := SwapForUSD(p.InputUSD, p.InputPriceUSD, p.InputDecimals)
	if err != nil {
		return LimitOrder{}, err
	}
	if swap.SmallestUnits.Sign() == 0 {
		return LimitOrder{}, fmt.Errorf("%w: $%s buys less than one smallest unit of input", types.ErrInvalidParameter, p.InputUSD)
	}

	// Value what is actually sold after truncation, not the raw USD budget.
	making, err := ToHuman(swap.SmallestUnits, p.InputDecimals)
	if err != nil {
		return LimitOrder{}, err
	}
	num := making.Mul(p.InputPriceUSD).Mul(hundred.Add(p.PriceChangePct)).Shift(p.OutputDecimals)
	den := p.OutputPriceUSD.Mul(hundred)
	taking := ceilDiv(num, den)
	if taking.Sign() == 0 {
		return LimitOrder{}, fmt.Errorf("%w: order asks for zero output", types.ErrInvalidParameter)
	}

	outputHuman, err := ToHuman(taking, p.OutputDecimals)
	if err != nil {
		return LimitOrder{}, err
	}
	return LimitOrder{
		MakingAmount:         swap.SmallestUnits,
		TakingAmount:         taking,
		InputHuman:           making,
		OutputHuman:          outputHuman,
		TargetOutputPriceUSD: making.Mul(p.InputPriceUSD).DivRound(outputHuman, 18),
	}, nil
}

// LimitOrderInfo describes an existing limit order against current prices
type LimitOrderInfo struct {
	Making                decimal.Decimal
	Taking                decimal.Decimal
	MakingUSD             decimal.Decimal
	TakingUSDAtCurrent    decimal.Decimal
	TriggerPriceUSD       decimal.Decimal
	CurrentOutputPriceUSD decimal.Decimal
	PriceDifferencePct    decimal.Decimal
	ShouldFillNow         bool
}

// DescribeLimitOrder derives display values for a limit order from its raw amounts
func DescribeLimitOrder(makingUnits, takingUnits *big.Int, inputDecimals, outputDecimals int32, inputPriceUSD, outputPriceUSD decimal.Decimal) (LimitOrderInfo, error) {
	making, err := ToHuman(makingUnits, inputDecimals)
	if err != nil {
		return LimitOrderInfo{}, err
	}
	taking, err := ToHuman(takingUnits, outputDecimals)
	if err != nil {
		return LimitOrderInfo{}, err
	}

	info := LimitOrderInfo{
		Making:                making,
		Taking:                taking,
		MakingUSD:             TokenToUSD(making, inputPriceUSD),
		TakingUSDAtCurrent:    TokenToUSD(taking, outputPriceUSD),
		CurrentOutputPriceUSD: outputPriceUSD,
	}
	if taking.IsPositive() {
		info.TriggerPriceUSD = info.MakingUSD.DivRound(taking, divisionPrecision)
	}
	if outputPriceUSD.IsPositive() {
		info.PriceDifferencePct = info.TriggerPriceUSD.Sub(outputPriceUSD).Mul(hundred).DivRound(outputPriceUSD, 8)
	}
	info.ShouldFillNow = outputPriceUSD.LessThanOrEqual(info.TriggerPriceUSD)
	return info, nil
}
