package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zenrsr/capx-stockfolio/internal/cache"
	"github.com/zenrsr/capx-stockfolio/internal/market"
	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/portfolio"
)

func SeriesKey(symbol string) string { return "stock-" + symbol }

type SeriesResult struct {
	Curve     []models.ValuationPoint `json:"curve"`
	Fetching  bool                    `json:"isFetching"`
	Synthetic bool                    `json:"synthetic"`
	Error     string                  `json:"error,omitempty"`
	Err       error                   `json:"-"`
}

// HistoricalResolver builds the portfolio valuation curve from one year of
// daily prices per holding. Series are cached by symbol without expiry.
type HistoricalResolver struct {
	providers *market.Providers
	cache     cache.Store[[]models.PricePoint]
	logger    *zap.Logger
	now       func() time.Time
	group     singleflight.Group
}

func NewHistoricalResolver(providers *market.Providers, store cache.Store[[]models.PricePoint], logger *zap.Logger) *HistoricalResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoricalResolver{
		providers: providers,
		cache:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve fetches every uncached series concurrently and merges them. One
// holding failing does not stop the others. When no holding yields data the
// curve is the synthetic fallback.
func (r *HistoricalResolver) Resolve(ctx context.Context, holdings []models.Holding) SeriesResult {
	if len(holdings) == 0 {
		return SeriesResult{Curve: []models.ValuationPoint{}}
	}

	series := make([]portfolio.HoldingSeries, len(holdings))
	errs := make([]error, len(holdings))

	var wg sync.WaitGroup
	for i, h := range holdings {
		i, h := i, h
		wg.Add(1)
		go func() {
			defer wg.Done()
			symbol := models.NormalizeTicker(h.Ticker)
			points, err := r.Series(ctx, symbol, h.AssetClass)
			if err != nil {
				errs[i] = fmt.Errorf("fetch history for %s: %w", symbol, err)
				return
			}
			series[i] = portfolio.HoldingSeries{Symbol: symbol, Quantity: h.Quantity, Points: points}
		}()
	}
	wg.Wait()

	failure := NewAggregateFetchFailure(errs...)
	curve, err := portfolio.Merge(series)
	if err != nil {
		if failure == nil {
			failure = err
		}
		r.logger.Warn("historical data unavailable, using synthetic curve", zap.Error(failure))
		return SeriesResult{
			Curve:     portfolio.FallbackCurve(holdings),
			Synthetic: true,
			Error:     failure.Error(),
			Err:       failure,
		}
	}

	out := SeriesResult{Curve: curve}
	if failure != nil {
		r.logger.Warn("historical data partially unavailable", zap.Error(failure))
		out.Error = failure.Error()
		out.Err = failure
	}
	return out
}

// Series returns the cached daily series for symbol, fetching and storing it
// when absent or empty. A caller whose ctx ends stops waiting, but the
// shared fetch carries on for the others.
func (r *HistoricalResolver) Series(ctx context.Context, symbol string, class models.AssetClass) ([]models.PricePoint, error) {
	key := SeriesKey(symbol)
	if e, ok := r.cache.Get(ctx, key); ok && len(e.Value) > 0 {
		return e.Value, nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		provider, err := r.providers.For(class)
		if err != nil {
			return nil, err
		}
		points, err := provider.HistoricalSeries(fetchCtx, symbol)
		if err != nil {
			return nil, err
		}
		r.cache.Set(fetchCtx, key, cache.Entry[[]models.PricePoint]{Value: points, FetchedAt: r.now()})
		return points, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.PricePoint), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
