// Package safety scores prediction markets before they are shown to an agent.
//
// Scoring is a deterministic deduction from 100 points over a MarketSnapshot.
// It never performs I/O: the verified-series set is passed in by the caller,
// usually taken from a SeriesCache.
package safety

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Score is the coarse safety band of a market
type Score string

const (
	ScoreHigh    Score = "HIGH"
	ScoreMedium  Score = "MEDIUM"
	ScoreLow     Score = "LOW"
	ScoreUnknown Score = "UNKNOWN"
)

// Recommendation tells the agent how to treat a market
type Recommendation string

const (
	Proceed Recommendation = "PROCEED"
	Caution Recommendation = "CAUTION"
	Avoid   Recommendation = "AVOID"
)

const (
	DefaultMinRulesLength = 50

	newMarketAge   = 24 * time.Hour
	youngMarketAge = 168 * time.Hour

	lowVolumeUSD         = 1000
	moderateVolumeUSD    = 10000
	lowLiquidityUSD      = 500
	moderateLiquidityUSD = 2000

	highThreshold   = 70
	mediumThreshold = 40
)

// MarketSnapshot is the read-only market data the scorer looks at. AgeUnknown
// and TradesUnknown mark inputs that were never observed; the matching
// deduction is skipped rather than guessed.
type MarketSnapshot struct {
	Ticker           string        `json:"ticker"`
	VolumeUSD        float64       `json:"volume_usd"`
	LiquidityUSD     float64       `json:"liquidity_usd"`
	Age              time.Duration `json:"age"`
	AgeUnknown       bool          `json:"age_unknown,omitempty"`
	RecentTradeCount int           `json:"recent_trade_count"`
	TradesUnknown    bool          `json:"trades_unknown,omitempty"`
	Series           string        `json:"series"`
	Rules            string        `json:"rules,omitempty"`
}

// Assessment is derived on demand and never persisted
type Assessment struct {
	Score          Score          `json:"score"`
	Points         int            `json:"points"`
	Warnings       []string       `json:"warnings"`
	Recommendation Recommendation `json:"recommendation"`
}

// Unknown is the assessment for a market whose data could not be loaded
func Unknown(reason string) Assessment {
	return Assessment{
		Score:          ScoreUnknown,
		Warnings:       []string{reason},
		Recommendation: Caution,
	}
}

// Scorer applies the deduction table against a fixed verified-series set
type Scorer struct {
	Series         SeriesSet
	MinRulesLength int
}

// NewScorer returns a Scorer with the default resolution-rules threshold
func NewScorer(series SeriesSet) Scorer {
	return Scorer{Series: series, MinRulesLength: DefaultMinRulesLength}
}

var usd = message.NewPrinter(language.English)

// Score deducts points for each risk signal, in a fixed order, and maps the
// remainder onto a band. recentTrades is the number of trades in the last 24h;
// a negative count or a negative age counts as zero.
func (s Scorer) Score(snap MarketSnapshot, recentTrades int) Assessment {
	points := 100
	warnings := make([]string, 0, 6)
	warn := func(deduction int, msg string) {
		points -= deduction
		warnings = append(warnings, msg)
	}

	switch {
	case snap.AgeUnknown:
	case snap.Age < newMarketAge:
		warn(30, "new market")
	case snap.Age < youngMarketAge:
		warn(15, "young market")
	}

	switch {
	case snap.VolumeUSD < lowVolumeUSD:
		warn(25, usd.Sprintf("low volume ($%.0f)", snap.VolumeUSD))
	case snap.VolumeUSD < moderateVolumeUSD:
		warn(10, usd.Sprintf("moderate volume ($%.0f)", snap.VolumeUSD))
	}

	switch {
	case snap.LiquidityUSD < lowLiquidityUSD:
		warn(30, "low liquidity — exit risk")
	case snap.LiquidityUSD < moderateLiquidityUSD:
		warn(10, "moderate liquidity")
	}

	if !snap.TradesUnknown && recentTrades <= 0 {
		warn(20, "no trades in 24h")
	}

	if !s.Series.Contains(snap.Series) {
		warn(15, "unverified series")
	}

	minRules := s.MinRulesLength
	if minRules <= 0 {
		minRules = DefaultMinRulesLength
	}
	if utf8.RuneCountInString(strings.TrimSpace(snap.Rules)) < minRules {
		warn(20, "unclear resolution criteria")
	}

	return band(points, warnings)
}

// ScoreSnapshot scores using the trade count carried on the snapshot
func (s Scorer) ScoreSnapshot(snap MarketSnapshot) Assessment {
	return s.Score(snap, snap.RecentTradeCount)
}

func band(points int, warnings []string) Assessment {
	a := Assessment{Points: points, Warnings: warnings}
	switch {
	case points >= highThreshold:
		a.Score, a.Recommendation = ScoreHigh, Proceed
	case points >= mediumThreshold:
		a.Score, a.Recommendation = ScoreMedium, Caution
	default:
		a.Score, a.Recommendation = ScoreLow, Avoid
	}
	return a
}
