package prediction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agent-swap/pkg/safety"
)

const (
	tradeWindow      = 24 * time.Hour
	tradeConcurrency = 8
)

// ScoredMarket is a market together with its safety assessment
type ScoredMarket struct {
	Market         Market                `json:"market"`
	Snapshot       safety.MarketSnapshot `json:"snapshot"`
	Safety         safety.Assessment     `json:"safety"`
	ResolutionDate string                `json:"resolution_date,omitempty"`
}

// ScoredEvent is an event with its own assessment and scored nested markets
type ScoredEvent struct {
	Event   Event             `json:"event"`
	Safety  safety.Assessment `json:"safety"`
	Markets []ScoredMarket    `json:"markets,omitempty"`
}

// Service filters and scores markets for display
type Service struct {
	client *Client
	series *safety.SeriesCache
	filter safety.Filter
	rules  int
	now    func() time.Time
	logger *zap.Logger
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithNow replaces the wall clock used for market age and trade windows
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithMinRulesLength overrides the resolution-rules threshold
func WithMinRulesLength(n int) ServiceOption {
	return func(s *Service) { s.rules = n }
}

// NewService creates a discovery service
func NewService(client *Client, series *safety.SeriesCache, filter safety.Filter, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if series == nil {
		series = safety.NewSeriesCache(nil, 0, safety.DefaultVerifiedSeries)
	}
	s := &Service{
		client: client,
		series: series,
		filter: filter,
		rules:  safety.DefaultMinRulesLength,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover lists one page of markets, drops those failing the quality filter,
// fetches 24h trade activity for the rest concurrently and scores them.
func (s *Service) Discover(ctx context.Context, opts ListOptions) ([]ScoredMarket, string, error) {
	markets, cursor, err := s.client.ListMarkets(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	scorer := s.scorer(ctx)
	now := s.now()

	kept := make([]ScoredMarket, 0, len(markets))
	for _, m := range markets {
		snap := m.Snapshot(now)
		if !s.filter.Allow(snap, scorer.Series) {
			continue
		}
		kept = append(kept, ScoredMarket{Market: m, Snapshot: snap, ResolutionDate: m.ResolutionDate()})
	}
	s.logger.Debug("markets filtered", zap.Int("listed", len(markets)), zap.Int("kept", len(kept)))

	if err := s.fillTradeCounts(ctx, kept, now); err != nil {
		return nil, "", err
	}
	for i := range kept {
		kept[i].Safety = scorer.ScoreSnapshot(kept[i].Snapshot)
	}
	return kept, cursor, nil
}

// Search finds events by text, filters them by aggregate stats and scores
// each event and its nested markets. Trade activity is not fetched.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]ScoredEvent, error) {
	events, err := s.client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	scorer := s.scorer(ctx)
	now := s.now()

	out := make([]ScoredEvent, 0, len(events))
	for _, ev := range events {
		snap := ev.Snapshot()
		if !s.filter.Allow(snap, scorer.Series) {
			continue
		}
		scored := ScoredEvent{Event: ev, Safety: scorer.ScoreSnapshot(snap)}
		for _, m := range ev.Markets {
			msnap := m.Snapshot(now)
			scored.Markets = append(scored.Markets, ScoredMarket{
				Market:         m,
				Snapshot:       msnap,
				Safety:         scorer.ScoreSnapshot(msnap),
				ResolutionDate: m.ResolutionDate(),
			})
		}
		out = append(out, scored)
	}
	return out, nil
}

// Score loads one market and its recent trades and scores it. When the market
// cannot be loaded the returned assessment is UNKNOWN alongside the error.
func (s *Service) Score(ctx context.Context, ticker string) (ScoredMarket, error) {
	m, err := s.client.GetMarket(ctx, ticker)
	if err != nil {
		return ScoredMarket{
			Market: Market{Ticker: ticker},
			Safety: safety.Unknown(fmt.Sprintf("market data unavailable: %v", err)),
		}, err
	}
	return s.scoreMarket(ctx, *m)
}

// ScoreByMint scores the market an outcome token belongs to
func (s *Service) ScoreByMint(ctx context.Context, mint string) (ScoredMarket, error) {
	m, err := s.client.GetMarketByMint(ctx, mint)
	if err != nil {
		return ScoredMarket{Safety: safety.Unknown(fmt.Sprintf("market data unavailable: %v", err))}, err
	}
	return s.scoreMarket(ctx, *m)
}

func (s *Service) scoreMarket(ctx context.Context, m Market) (ScoredMarket, error) {
	now := s.now()
	sm := []ScoredMarket{{Market: m, Snapshot: m.Snapshot(now), ResolutionDate: m.ResolutionDate()}}
	if err := s.fillTradeCounts(ctx, sm, now); err != nil {
		return ScoredMarket{}, err
	}
	sm[0].Safety = s.scorer(ctx).ScoreSnapshot(sm[0].Snapshot)
	return sm[0], nil
}

// fillTradeCounts sets RecentTradeCount on each snapshot. A market whose
// trades cannot be fetched keeps an unknown count and is not penalized.
func (s *Service) fillTradeCounts(ctx context.Context, markets []ScoredMarket, now time.Time) error {
	cutoff := now.Add(-tradeWindow).Unix()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(tradeConcurrency)
	for i := range markets {
		i := i
		group.Go(func() error {
			ticker := markets[i].Market.Ticker
			trades, err := s.client.GetTrades(groupCtx, ticker, DefaultTradeLimit)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				s.logger.Warn("trade history unavailable", zap.String("ticker", ticker), zap.Error(err))
				return nil
			}
			markets[i].Snapshot.RecentTradeCount = countSince(trades, cutoff)
			markets[i].Snapshot.TradesUnknown = false
			return nil
		})
	}
	return group.Wait()
}

func (s *Service) scorer(ctx context.Context) safety.Scorer {
	set, err := s.series.Get(ctx)
	if err != nil {
		s.logger.Warn("using cached verified series", zap.Int("series", set.Len()), zap.Error(err))
	}
	return safety.Scorer{Series: set, MinRulesLength: s.rules}
}

// Series returns the verified set currently used for scoring
func (s *Service) Series(ctx context.Context) safety.SeriesSet {
	return s.scorer(ctx).Series
}

func countSince(trades []Trade, cutoff int64) int {
	n := 0
	for _, t := range trades {
		if t.CreatedTime > cutoff {
			n++
		}
	}
	return n
}
