package pricing

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenrsr/capx-stockfolio/internal/cache"
	"github.com/zenrsr/capx-stockfolio/internal/fetch"
	"github.com/zenrsr/capx-stockfolio/internal/market"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

type fakeProvider struct {
	name    string
	prices  map[string]float64
	series  map[string][]models.PricePoint
	errs    map[string]error
	block   chan struct{}
	arrived *sync.WaitGroup

	currentCalls    int32
	historicalCalls int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	atomic.AddInt32(&f.currentCalls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err := f.errs[symbol]; err != nil {
		return 0, err
	}
	return f.prices[symbol], nil
}

func (f *fakeProvider) HistoricalSeries(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	atomic.AddInt32(&f.historicalCalls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.arrived != nil {
		f.arrived.Done()
		f.arrived.Wait()
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.series[symbol], nil
}

func day(y int, m time.Month, d int) models.Date { return models.NewDate(y, m, d) }

func holding(ticker string, qty float64) models.Holding {
	return models.Holding{Ticker: ticker, Quantity: qty, BuyPrice: 1}.Normalize()
}

func TestResolveCachesWithinTTL(t *testing.T) {
	equity := &fakeProvider{prices: map[string]float64{"AAPL": 160}}
	store := cache.NewMemory[float64]()
	r := NewCurrentResolver(market.NewProviders(equity, &fakeProvider{}), store)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	first := r.Resolve(context.Background(), "aapl", models.AssetEquity, 150)
	assert.Equal(t, PriceResult{Symbol: "AAPL", Price: 160}, first)

	now = now.Add(4 * time.Minute)
	second := r.Resolve(context.Background(), "AAPL", models.AssetEquity, 150)
	assert.Equal(t, 160.0, second.Price)
	assert.True(t, second.Cached)
	assert.EqualValues(t, 1, atomic.LoadInt32(&equity.currentCalls))

	now = now.Add(time.Minute)
	r.Resolve(context.Background(), "AAPL", models.AssetEquity, 150)
	assert.EqualValues(t, 2, atomic.LoadInt32(&equity.currentCalls))
}

func TestResolveRateLimited(t *testing.T) {
	crypto := &fakeProvider{errs: map[string]error{
		"BTC": &fetch.StatusError{URL: "dia", StatusCode: http.StatusTooManyRequests},
	}}
	store := cache.NewMemory[float64]()
	r := NewCurrentResolver(market.NewProviders(&fakeProvider{}, crypto), store)

	got := r.Resolve(context.Background(), "BTC", models.AssetCrypto, 42000)
	assert.Equal(t, 42000.0, got.Price)
	assert.Equal(t, "API rate limit exceeded", got.Error)
	assert.Equal(t, KindRateLimited, got.Kind)
	assert.Equal(t, 0, store.Len(), "a failed fetch must not write the cache")
}

func TestResolveInvalidResponse(t *testing.T) {
	equity := &fakeProvider{errs: map[string]error{
		"AAPL": fetch.InvalidResponse("yahoo AAPL: missing regularMarketPrice"),
	}}
	r := NewCurrentResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[float64]())

	got := r.Resolve(context.Background(), "AAPL", models.AssetEquity, 99)
	assert.Equal(t, 99.0, got.Price)
	assert.Contains(t, got.Error, "API error: ")
	assert.Equal(t, KindInvalidResponse, got.Kind)
	assert.ErrorIs(t, got.Err, fetch.ErrInvalidProviderResponse)
}

func TestResolveEmptySymbolReturnsFallback(t *testing.T) {
	equity := &fakeProvider{}
	r := NewCurrentResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[float64]())
	got := r.Resolve(context.Background(), "  ", models.AssetEquity, 7)
	assert.Equal(t, 7.0, got.Price)
	assert.Empty(t, got.Error)
	assert.EqualValues(t, 0, equity.currentCalls)
}

func TestResolveMirrorsCryptoPrices(t *testing.T) {
	crypto := &fakeProvider{prices: map[string]float64{"ETH": 2300}}
	mirror := cache.NewMemory[float64]()
	r := NewCurrentResolver(market.NewProviders(&fakeProvider{prices: map[string]float64{"AAPL": 1}}, crypto),
		cache.NewMemory[float64](), WithCryptoMirror(mirror))

	r.Resolve(context.Background(), "ETH", models.AssetCrypto, 0)
	r.Resolve(context.Background(), "AAPL", models.AssetEquity, 0)

	e, ok := mirror.Get(context.Background(), "ETH")
	require.True(t, ok)
	assert.Equal(t, 2300.0, e.Value)
	assert.Equal(t, 1, mirror.Len())
}

func TestResolveSharesInFlightFetch(t *testing.T) {
	equity := &fakeProvider{prices: map[string]float64{"TSLA": 250}, block: make(chan struct{})}
	r := NewCurrentResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[float64]())

	const callers = 5
	results := make([]PriceResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "TSLA", models.AssetEquity, 1)
		}()
	}

	require.Eventually(t, func() bool {
		return r.Peek(context.Background(), "TSLA", models.AssetEquity, 1).Fetching
	}, time.Second, time.Millisecond)
	close(equity.block)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&equity.currentCalls))
	for _, res := range results {
		assert.Equal(t, 250.0, res.Price)
	}
	peek := r.Peek(context.Background(), "TSLA", models.AssetEquity, 1)
	assert.False(t, peek.Fetching)
	assert.True(t, peek.Cached)
}

func TestResolveCancelledCallerDoesNotFailOthers(t *testing.T) {
	equity := &fakeProvider{prices: map[string]float64{"AAPL": 190}, block: make(chan struct{})}
	r := NewCurrentResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[float64]())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan PriceResult, 1)
	go func() { first <- r.Resolve(ctx, "AAPL", models.AssetEquity, 1) }()
	require.Eventually(t, func() bool {
		return r.Peek(context.Background(), "AAPL", models.AssetEquity, 1).Fetching
	}, time.Second, time.Millisecond)

	second := make(chan PriceResult, 1)
	go func() { second <- r.Resolve(context.Background(), "AAPL", models.AssetEquity, 1) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	gone := <-first
	assert.Equal(t, 1.0, gone.Price)
	assert.ErrorIs(t, gone.Err, context.Canceled)

	close(equity.block)
	got := <-second
	assert.Equal(t, 190.0, got.Price)
	assert.Empty(t, got.Error)
	assert.EqualValues(t, 1, atomic.LoadInt32(&equity.currentCalls))
	assert.True(t, r.Peek(context.Background(), "AAPL", models.AssetEquity, 1).Cached)
}

func TestSeriesCancelledCallerDoesNotFailOthers(t *testing.T) {
	equity := &fakeProvider{
		series: map[string][]models.PricePoint{"MSFT": {{Date: day(2024, 1, 1), Price: 400}}},
		block:  make(chan struct{}),
	}
	store := cache.NewMemory[[]models.PricePoint]()
	r := NewHistoricalResolver(market.NewProviders(equity, &fakeProvider{}), store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Series(ctx, "MSFT", models.AssetEquity)
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&equity.historicalCalls) == 1
	}, time.Second, time.Millisecond)

	second := make(chan SeriesResult, 1)
	go func() {
		second <- r.Resolve(context.Background(), []models.Holding{holding("MSFT", 2)})
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(equity.block)
	got := <-second
	assert.Empty(t, got.Error)
	assert.Equal(t, []models.ValuationPoint{{Date: day(2024, 1, 1), Value: 800}}, got.Curve)
	assert.EqualValues(t, 1, atomic.LoadInt32(&equity.historicalCalls))
	_, ok := store.Get(context.Background(), "stock-MSFT")
	assert.True(t, ok)
}

func TestHistoricalEmptyHoldings(t *testing.T) {
	equity := &fakeProvider{}
	r := NewHistoricalResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[[]models.PricePoint](), nil)

	got := r.Resolve(context.Background(), nil)
	assert.NotNil(t, got.Curve)
	assert.Empty(t, got.Curve)
	assert.False(t, got.Fetching)
	assert.Empty(t, got.Error)
	assert.EqualValues(t, 0, equity.historicalCalls)
}

func TestHistoricalMergesEquityAndCrypto(t *testing.T) {
	equity := &fakeProvider{series: map[string][]models.PricePoint{
		"AAPL": {{Date: day(2024, 1, 1), Price: 100}},
	}}
	crypto := &fakeProvider{series: map[string][]models.PricePoint{
		"BTC": {{Date: day(2024, 1, 1), Price: 50000}},
	}}
	store := cache.NewMemory[[]models.PricePoint]()
	r := NewHistoricalResolver(market.NewProviders(equity, crypto), store, nil)

	got := r.Resolve(context.Background(), []models.Holding{holding("AAPL", 2), holding("BTC", 0.01)})
	require.Empty(t, got.Error)
	assert.Equal(t, []models.ValuationPoint{{Date: day(2024, 1, 1), Value: 700}}, got.Curve)

	_, ok := store.Get(context.Background(), "stock-AAPL")
	assert.True(t, ok)
	_, ok = store.Get(context.Background(), "stock-BTC")
	assert.True(t, ok)
}

func TestHistoricalIsolatesFailures(t *testing.T) {
	equity := &fakeProvider{
		series: map[string][]models.PricePoint{
			"AAPL": {{Date: day(2024, 1, 1), Price: 10}, {Date: day(2024, 1, 2), Price: 11}},
			"MSFT": {{Date: day(2024, 1, 2), Price: 20}},
		},
		errs: map[string]error{"NOPE": errors.New("boom")},
	}
	r := NewHistoricalResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[[]models.PricePoint](), nil)

	got := r.Resolve(context.Background(), []models.Holding{holding("AAPL", 1), holding("NOPE", 1), holding("MSFT", 1)})
	assert.False(t, got.Synthetic)
	assert.Equal(t, []models.ValuationPoint{
		{Date: day(2024, 1, 1), Value: 10},
		{Date: day(2024, 1, 2), Value: 31},
	}, got.Curve)
	assert.Contains(t, got.Error, "1 holding:")
	assert.Contains(t, got.Error, "NOPE")

	var agg *AggregateFetchFailure
	require.ErrorAs(t, got.Err, &agg)
	assert.Equal(t, 1, agg.Count())
}

func TestHistoricalFallsBackWhenNothingLoads(t *testing.T) {
	equity := &fakeProvider{errs: map[string]error{
		"AAPL": errors.New("down"),
		"MSFT": errors.New("down too"),
	}}
	r := NewHistoricalResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[[]models.PricePoint](), nil)

	got := r.Resolve(context.Background(), []models.Holding{holding("AAPL", 2), holding("MSFT", 1)})
	assert.True(t, got.Synthetic)
	require.Len(t, got.Curve, 6)
	assert.Equal(t, 200.0, got.Curve[0].Value)
	assert.Contains(t, got.Error, "2 holdings")
	assert.Contains(t, got.Error, "(and 1 more)")
}

func TestHistoricalUsesDurableCache(t *testing.T) {
	equity := &fakeProvider{series: map[string][]models.PricePoint{
		"MSFT": {{Date: day(2024, 5, 1), Price: 400}},
	}}
	store := cache.NewMemory[[]models.PricePoint]()
	ctx := context.Background()
	store.Set(ctx, "stock-AAPL", cache.Entry[[]models.PricePoint]{Value: []models.PricePoint{{Date: day(2024, 5, 1), Price: 100}}})
	store.Set(ctx, "stock-MSFT", cache.Entry[[]models.PricePoint]{Value: []models.PricePoint{}})

	r := NewHistoricalResolver(market.NewProviders(equity, &fakeProvider{}), store, nil)
	got := r.Resolve(ctx, []models.Holding{holding("AAPL", 1), holding("MSFT", 1)})

	assert.Equal(t, []models.ValuationPoint{{Date: day(2024, 5, 1), Value: 500}}, got.Curve)
	assert.EqualValues(t, 1, atomic.LoadInt32(&equity.historicalCalls), "only the empty entry is refetched")
}

func TestHistoricalFetchesConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(3)
	equity := &fakeProvider{
		arrived: &arrived,
		series: map[string][]models.PricePoint{
			"A": {{Date: day(2024, 1, 1), Price: 1}},
			"B": {{Date: day(2024, 1, 1), Price: 2}},
			"C": {{Date: day(2024, 1, 1), Price: 3}},
		},
	}
	r := NewHistoricalResolver(market.NewProviders(equity, &fakeProvider{}), cache.NewMemory[[]models.PricePoint](), nil)

	done := make(chan SeriesResult, 1)
	go func() {
		done <- r.Resolve(context.Background(), []models.Holding{holding("A", 1), holding("B", 1), holding("C", 1)})
	}()

	select {
	case got := <-done:
		assert.Equal(t, 6.0, got.Curve[0].Value)
	case <-time.After(2 * time.Second):
		t.Fatal("per-holding fetches did not run concurrently")
	}
}

func TestAggregateFetchFailureNil(t *testing.T) {
	assert.Nil(t, NewAggregateFetchFailure(nil, nil))
}
