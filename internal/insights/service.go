// Package insights serves an equity's intraday quote and its analyst
// recommendation trends, each cached for a few minutes.
package insights

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zenrsr/capx-stockfolio/internal/cache"
	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/pricing"
)

const DefaultTTL = 5 * time.Minute

// Source is the upstream the service reads, *market.Finnhub in production.
type Source interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	RecommendationTrends(ctx context.Context, symbol string) ([]models.RecommendationTrend, error)
}

// Insight carries whatever could be loaded. A failed half leaves its value
// empty and sets its error message.
type Insight struct {
	Symbol      string                       `json:"symbol"`
	Quote       *models.Quote                `json:"quote,omitempty"`
	QuoteError  string                       `json:"quoteError,omitempty"`
	Trends      []models.RecommendationTrend `json:"trends"`
	TrendsError string                       `json:"trendsError,omitempty"`
}

type Service struct {
	source Source
	quotes cache.Store[models.Quote]
	trends cache.Store[[]models.RecommendationTrend]
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewService(source Source, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source: source,
		quotes: cache.NewMemory[models.Quote](),
		trends: cache.NewMemory[[]models.RecommendationTrend](),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Lookup loads the quote and the trends for symbol concurrently. Failures are
// reported per half and never cached.
func (s *Service) Lookup(ctx context.Context, symbol string) Insight {
	symbol = models.NormalizeTicker(symbol)
	out := Insight{Symbol: symbol, Trends: []models.RecommendationTrend{}}

	var g errgroup.Group
	g.Go(func() error {
		q, err := cached(ctx, s, s.quotes, "quote-"+symbol, func(ctx context.Context) (models.Quote, error) {
			return s.source.Quote(ctx, symbol)
		})
		if err != nil {
			out.QuoteError = s.describe(symbol, "quote", err)
			return nil
		}
		out.Quote = &q
		return nil
	})
	g.Go(func() error {
		trends, err := cached(ctx, s, s.trends, "recommendation-"+symbol, func(ctx context.Context) ([]models.RecommendationTrend, error) {
			return s.source.RecommendationTrends(ctx, symbol)
		})
		if err != nil {
			out.TrendsError = s.describe(symbol, "recommendations", err)
			return nil
		}
		out.Trends = trends
		return nil
	})
	_ = g.Wait()
	return out
}

func (s *Service) describe(symbol, what string, err error) string {
	s.logger.Warn("insight unavailable",
		zap.String("symbol", symbol),
		zap.String("part", what),
		zap.String("kind", string(pricing.Kind(err))),
		zap.Error(err))
	return pricing.Describe(err)
}

func cached[T any](ctx context.Context, s *Service, store cache.Store[T], key string, load func(context.Context) (T, error)) (T, error) {
	if e, ok := store.Get(ctx, key); ok && e.Valid(s.now(), s.ttl) {
		return e.Value, nil
	}
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	store.Set(ctx, key, cache.Entry[T]{Value: v, FetchedAt: s.now()})
	return v, nil
}
