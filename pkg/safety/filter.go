package safety

import "time"

// Filter is the discovery-time quality gate. It is independent of scoring:
// a market can pass the filter and still score LOW.
type Filter struct {
	MinVolumeUSD    float64
	MinLiquidityUSD float64
	MinAge          time.Duration
	VerifiedOnly    bool
	IncludeRisky    bool
}

// DefaultFilter hides thin, brand-new markets
func DefaultFilter() Filter {
	return Filter{
		MinVolumeUSD:    1000,
		MinLiquidityUSD: 500,
		MinAge:          24 * time.Hour,
	}
}

// Allow reports whether a market should be shown
func (f Filter) Allow(snap MarketSnapshot, series SeriesSet) bool {
	if f.IncludeRisky {
		return true
	}
	if snap.VolumeUSD < f.MinVolumeUSD || snap.LiquidityUSD < f.MinLiquidityUSD {
		return false
	}
	if !snap.AgeUnknown && snap.Age < f.MinAge {
		return false
	}
	if f.VerifiedOnly && !series.Contains(snap.Series) {
		return false
	}
	return true
}
