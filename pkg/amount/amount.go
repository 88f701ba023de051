// Package amount converts token amounts between human-readable decimals,
// smallest on-chain units and USD values. Every function is pure and uses
// arbitrary-precision decimals; nothing here touches float64.
//
// Rounding policy: converting a human amount to smallest units truncates
// toward zero, so a conversion can never spend more than the caller asked
// for. The dropped remainder is always smaller than one smallest unit.
// Callers that must not lose any digit use ToSmallestUnitsExact, which fails
// with types.ErrPrecision instead of truncating.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"agent-swap/pkg/types"
)

// MaxDecimals bounds the decimal exponent accepted for an asset
const MaxDecimals = 36

// divisionPrecision is the number of fractional digits kept by non-terminating divisions
const divisionPrecision int32 = 36

var (
	hundred  = decimal.NewFromInt(100)
	bpsDenom = big.NewInt(10000)
)

// Parse reads a decimal string such as "0.07" or "1e-3"
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q: %v", types.ErrInvalidParameter, s, err)
	}
	return d, nil
}

// ParseUnits reads a base-10 integer amount in smallest units
func ParseUnits(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid smallest-unit amount %q", types.ErrInvalidParameter, s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: smallest-unit amount must not be negative", types.ErrInvalidParameter)
	}
	return n, nil
}

func checkDecimals(decimals int32) error {
	if decimals < 0 || decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d out of range [0, %d]", types.ErrInvalidParameter, decimals, MaxDecimals)
	}
	return nil
}

// ToSmallestUnits returns floor(human × 10^decimals) for a non-negative amount
func ToSmallestUnits(human decimal.Decimal, decimals int32) (*big.Int, error) {
	if err := checkDecimals(decimals); err != nil {
		return nil, err
	}
	if human.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative, got %s", types.ErrInvalidParameter, human)
	}
	return human.Shift(decimals).Truncate(0).BigInt(), nil
}

// ToSmallestUnitsExact is ToSmallestUnits that refuses to drop digits
func ToSmallestUnitsExact(human decimal.Decimal, decimals int32) (*big.Int, error) {
	if err := checkDecimals(decimals); err != nil {
		return nil, err
	}
	shifted := human.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", types.ErrPrecision, human, decimals)
	}
	return ToSmallestUnits(human, decimals)
}

// ToUint64 narrows a smallest-unit amount to the on-chain u64 range
func ToUint64(units *big.Int) (uint64, error) {
	if units == nil || units.Sign() < 0 {
		return 0, fmt.Errorf("%w: amount must not be negative", types.ErrInvalidParameter)
	}
	if !units.IsUint64() {
		return 0, fmt.Errorf("%w: %s exceeds the u64 range", types.ErrPrecision, units)
	}
	return units.Uint64(), nil
}

// ToHuman returns units / 10^decimals exactly
func ToHuman(units *big.Int, decimals int32) (decimal.Decimal, error) {
	if err := checkDecimals(decimals); err != nil {
		return decimal.Zero, err
	}
	if units == nil {
		return decimal.Zero, fmt.Errorf("%w: nil amount", types.ErrInvalidParameter)
	}
	return decimal.NewFromBigInt(units, -decimals), nil
}

// USDToToken converts a USD value into a human token amount at the given price
func USDToToken(usd, priceUSD decimal.Decimal) (decimal.Decimal, error) {
	if !priceUSD.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: token price must be positive, got %s", types.ErrInvalidParameter, priceUSD)
	}
	if usd.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: USD amount must not be negative, got %s", types.ErrInvalidParameter, usd)
	}
	return usd.DivRound(priceUSD, divisionPrecision), nil
}

// TokenToUSD values a human token amount at the given price
func TokenToUSD(human, priceUSD decimal.Decimal) decimal.Decimal {
	return human.Mul(priceUSD)
}

// ApplyPercentage returns amount × (1 + pct/100); pct may be negative
func ApplyPercentage(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred.Add(pct)).Shift(-2)
}

// FeeAmount returns floor(units × bps / 10000)
func FeeAmount(units *big.Int, bps int) (*big.Int, error) {
	if bps < 0 || bps > 10000 {
		return nil, fmt.Errorf("%w: fee %d bps out of range", types.ErrInvalidParameter, bps)
	}
	if units == nil || units.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", types.ErrInvalidParameter)
	}
	fee := new(big.Int).Mul(units, big.NewInt(int64(bps)))
	return fee.Quo(fee, bpsDenom), nil
}

// Swap is a USD-sized swap expressed in both unit systems
type Swap struct {
	Human         decimal.Decimal
	SmallestUnits *big.Int
}

// SwapForUSD sizes a swap worth usd of a token priced at priceUSD
func SwapForUSD(usd, priceUSD decimal.Decimal, decimals int32) (Swap, error) {
	human, err := USDToToken(usd, priceUSD)
	if err != nil {
		return Swap{}, err
	}
	units, err := ToSmallestUnits(human, decimals)
	if err != nil {
		return Swap{}, err
	}
	return Swap{Human: human, SmallestUnits: units}, nil
}

// ceilDiv returns ceil(a / b) for positive a and b without rounding error
func ceilDiv(a, b decimal.Decimal) *big.Int {
	exp := a.Exponent()
	if b.Exponent() < exp {
		exp = b.Exponent()
	}
	ai := a.Shift(-exp).BigInt()
	bi := b.Shift(-exp).BigInt()
	q, r := new(big.Int).QuoRem(ai, bi, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
