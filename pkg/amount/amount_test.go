package amount

import (
	"errors"
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"agent-swap/pkg/types"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return d
}

func TestToSmallestUnits(t *testing.T) {
	tests := []struct {
		human    string
		decimals int32
		want     string
	}{
		{"0.07", 9, "70000000"},
		{"1000000", 5, "100000000000"},
		{"100", 6, "100000000"},
		{"1.23456789", 6, "1234567"},
		{"0.0000000009", 9, "0"},
		{"42", 0, "42"},
		{"18446744073.709551615", 9, "18446744073709551615"},
	}
	for _, tt := range tests {
		got, err := ToSmallestUnits(mustDec(t, tt.human), tt.decimals)
		if err != nil {
			t.Fatalf("ToSmallestUnits(%s, %d) returned error: %v", tt.human, tt.decimals, err)
		}
		if got.String() != tt.want {
			t.Errorf("ToSmallestUnits(%s, %d) = %s, want %s", tt.human, tt.decimals, got, tt.want)
		}
	}
}

func TestToSmallestUnits_Errors(t *testing.T) {
	if _, err := ToSmallestUnits(mustDec(t, "-1"), 6); !errors.Is(err, types.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for negative amount, got %v", err)
	}
	if _, err := ToSmallestUnits(mustDec(t, "1"), -1); !errors.Is(err, types.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for negative decimals, got %v", err)
	}
	if _, err := ToSmallestUnitsExact(mustDec(t, "1.23456789"), 6); !errors.Is(err, types.ErrPrecision) {
		t.Errorf("expected ErrPrecision, got %v", err)
	}
	got, err := ToSmallestUnitsExact(mustDec(t, "1.234567"), 6)
	if err != nil || got.String() != "1234567" {
		t.Errorf("ToSmallestUnitsExact = %v, %v", got, err)
	}
	if _, err := Parse("abc"); !errors.Is(err, types.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter from Parse, got %v", err)
	}
}

func TestToHuman(t *testing.T) {
	got, err := ToHuman(big.NewInt(70000000), 9)
	if err != nil {
		t.Fatalf("ToHuman returned error: %v", err)
	}
	if got.String() != "0.07" {
		t.Errorf("ToHuman = %s, want 0.07", got)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		x := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), 96))
		d := int32(rng.Intn(19))

		human, err := ToHuman(x, d)
		if err != nil {
			t.Fatalf("ToHuman(%s, %d): %v", x, d, err)
		}
		back, err := ToSmallestUnits(human, d)
		if err != nil {
			t.Fatalf("ToSmallestUnits(%s, %d): %v", human, d, err)
		}
		if back.Cmp(x) != 0 {
			t.Fatalf("round trip mismatch for %s at %d decimals: got %s", x, d, back)
		}
		exact, err := ToSmallestUnitsExact(human, d)
		if err != nil || exact.Cmp(x) != 0 {
			t.Fatalf("exact round trip mismatch for %s at %d decimals: %v %v", x, d, exact, err)
		}
	}
}

func TestToUint64(t *testing.T) {
	if v, err := ToUint64(big.NewInt(5)); err != nil || v != 5 {
		t.Errorf("ToUint64(5) = %d, %v", v, err)
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 64)
	if _, err := ToUint64(tooBig); !errors.Is(err, types.ErrPrecision) {
		t.Errorf("expected ErrPrecision for 2^64, got %v", err)
	}
}

func TestUSDConversions(t *testing.T) {
	tokens, err := USDToToken(mustDec(t, "10"), mustDec(t, "140"))
	if err != nil {
		t.Fatalf("USDToToken returned error: %v", err)
	}
	if !strings.HasPrefix(tokens.String(), "0.0714285714285714") {
		t.Errorf("USDToToken = %s", tokens)
	}
	if _, err := USDToToken(mustDec(t, "10"), decimal.Zero); !errors.Is(err, types.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for zero price, got %v", err)
	}

	swap, err := SwapForUSD(mustDec(t, "10"), mustDec(t, "140"), 9)
	if err != nil {
		t.Fatalf("SwapForUSD returned error: %v", err)
	}
	if swap.SmallestUnits.String() != "71428571" {
		t.Errorf("SwapForUSD units = %s, want 71428571", swap.SmallestUnits)
	}

	usd := TokenToUSD(mustDec(t, "0.5"), mustDec(t, "140"))
	if !usd.Equal(mustDec(t, "70")) {
		t.Errorf("TokenToUSD = %s, want 70", usd)
	}
}

func TestApplyPercentageAndFees(t *testing.T) {
	if got := ApplyPercentage(mustDec(t, "200"), mustDec(t, "10")); !got.Equal(mustDec(t, "220")) {
		t.Errorf("ApplyPercentage(200, 10) = %s", got)
	}
	if got := ApplyPercentage(mustDec(t, "200"), mustDec(t, "-0.5")); !got.Equal(mustDec(t, "199")) {
		t.Errorf("ApplyPercentage(200, -0.5) = %s", got)
	}

	fee, err := FeeAmount(big.NewInt(1000000), 50)
	if err != nil || fee.Int64() != 5000 {
		t.Errorf("FeeAmount = %v, %v", fee, err)
	}
	fee, err = FeeAmount(big.NewInt(199), 50)
	if err != nil || fee.Int64() != 0 {
		t.Errorf("FeeAmount should floor, got %v, %v", fee, err)
	}
	if _, err := FeeAmount(big.NewInt(1), 10001); !errors.Is(err, types.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for bps > 10000, got %v", err)
	}
}

func TestLimitOrderAmounts(t *testing.T) {
	base := LimitParams{
		InputUSD:       mustDec(t, "100"),
		InputPriceUSD:  mustDec(t, "100"),
		InputDecimals:  9,
		OutputPriceUSD: mustDec(t, "1"),
		OutputDecimals: 6,
	}

	order, err := LimitOrderAmounts(base)
	if err != nil {
		t.Fatalf("LimitOrderAmounts returned error: %v", err)
	}
	if order.MakingAmount.String() != "1000000000" {
		t.Errorf("making = %s, want 1000000000", order.MakingAmount)
	}
	if order.TakingAmount.String() != "100000000" {
		t.Errorf("taking = %s, want 100000000", order.TakingAmount)
	}

	base.PriceChangePct = mustDec(t, "5")
	order, err = LimitOrderAmounts(base)
	if err != nil {
		t.Fatalf("LimitOrderAmounts returned error: %v", err)
	}
	if order.TakingAmount.String() != "105000000" {
		t.Errorf("taking with +5%% = %s, want 105000000", order.TakingAmount)
	}

	base.PriceChangePct = mustDec(t, "-1")
	if _, err := LimitOrderAmounts(base); !errors.Is(err, types.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for negative percentage, got %v", err)
	}
}

func TestLimitOrderAmounts_NeverAsksLessThanTarget(t *testing.T) {
	p := LimitParams{
		InputUSD:       mustDec(t, "10"),
		InputPriceUSD:  mustDec(t, "140.37"),
		InputDecimals:  9,
		OutputPriceUSD: mustDec(t, "0.0000543"),
		OutputDecimals: 5,
		PriceChangePct: mustDec(t, "0.5"),
	}
	order, err := LimitOrderAmounts(p)
	if err != nil {
		t.Fatalf("LimitOrderAmounts returned error: %v", err)
	}

	target := order.InputHuman.Mul(p.InputPriceUSD).Mul(hundred.Add(p.PriceChangePct))
	got := order.OutputHuman.Mul(p.OutputPriceUSD).Mul(hundred)
	if got.LessThan(target) {
		t.Fatalf("taking amount %s asks for less than the target price", order.TakingAmount)
	}

	smaller := new(big.Int).Sub(order.TakingAmount, big.NewInt(1))
	smallerHuman, _ := ToHuman(smaller, p.OutputDecimals)
	if !smallerHuman.Mul(p.OutputPriceUSD).Mul(hundred).LessThan(target) {
		t.Fatalf("taking amount %s is not the smallest amount meeting the target", order.TakingAmount)
	}
}

func TestDescribeLimitOrder(t *testing.T) {
	info, err := DescribeLimitOrder(big.NewInt(1000000000), big.NewInt(105000000), 9, 6, mustDec(t, "100"), mustDec(t, "1"))
	if err != nil {
		t.Fatalf("DescribeLimitOrder returned error: %v", err)
	}
	if !info.MakingUSD.Equal(mustDec(t, "100")) {
		t.Errorf("MakingUSD = %s", info.MakingUSD)
	}
	if info.ShouldFillNow {
		t.Errorf("order asking 5%% more should not fill at market")
	}
	if !info.PriceDifferencePct.IsNegative() {
		t.Errorf("expected negative price difference, got %s", info.PriceDifferencePct)
	}

	info, err = DescribeLimitOrder(big.NewInt(1000000000), big.NewInt(95000000), 9, 6, mustDec(t, "100"), mustDec(t, "1"))
	if err != nil {
		t.Fatalf("DescribeLimitOrder returned error: %v", err)
	}
	if !info.ShouldFillNow {
		t.Errorf("order asking less than market should fill now")
	}
}
