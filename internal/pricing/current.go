// Package pricing resolves prices for holdings on top of the market
// providers: a short-lived cache for current prices, a durable one for
// one-year daily series, and results that always carry a usable value.
package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zenrsr/capx-stockfolio/internal/cache"
	"github.com/zenrsr/capx-stockfolio/internal/market"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

const DefaultCurrentPriceTTL = 5 * time.Minute

func CurrentPriceKey(symbol string) string { return "currentPrice-" + symbol }

type PriceResult struct {
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Fetching bool      `json:"isFetching"`
	Cached   bool      `json:"cached"`
	Error    string    `json:"error,omitempty"`
	Kind     ErrorKind `json:"errorKind,omitempty"`
	Err      error     `json:"-"`
}

type CurrentResolver struct {
	providers *market.Providers
	cache     cache.Store[float64]
	mirror    cache.Store[float64]
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]int
}

type CurrentOption func(*CurrentResolver)

func WithCurrentTTL(ttl time.Duration) CurrentOption {
	return func(r *CurrentResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithCryptoMirror also records every resolved crypto price in store, keyed
// by bare symbol, for the daily reference price.
func WithCryptoMirror(store cache.Store[float64]) CurrentOption {
	return func(r *CurrentResolver) { r.mirror = store }
}

func WithCurrentLogger(l *zap.Logger) CurrentOption {
	return func(r *CurrentResolver) { r.logger = l }
}

func NewCurrentResolver(providers *market.Providers, store cache.Store[float64], opts ...CurrentOption) *CurrentResolver {
	r := &CurrentResolver{
		providers: providers,
		cache:     store,
		ttl:       DefaultCurrentPriceTTL,
		logger:    zap.NewNop(),
		now:       time.Now,
		inflight:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func flightKey(symbol string, class models.AssetClass) string {
	return string(class) + ":" + symbol
}

func (r *CurrentResolver) cached(ctx context.Context, symbol string) (float64, bool) {
	e, ok := r.cache.Get(ctx, CurrentPriceKey(symbol))
	if !ok || !e.Valid(r.now(), r.ttl) {
		return 0, false
	}
	return e.Value, true
}

// Peek answers from the cache without touching the network. On a miss it
// returns fallback and reports whether a fetch for the symbol is running.
func (r *CurrentResolver) Peek(ctx context.Context, symbol string, class models.AssetClass, fallback float64) PriceResult {
	symbol = models.NormalizeTicker(symbol)
	if price, ok := r.cached(ctx, symbol); ok {
		return PriceResult{Symbol: symbol, Price: price, Cached: true}
	}
	r.mu.Lock()
	fetching := r.inflight[flightKey(symbol, class)] > 0
	r.mu.Unlock()
	return PriceResult{Symbol: symbol, Price: fallback, Fetching: fetching}
}

// Resolve returns the current price of symbol. A valid cache entry is served
// without a network call. Concurrent misses for the same symbol and class
// share one provider call, which outlives any single caller's context. On
// failure the cache is left untouched and the result carries fallback and a
// display message.
func (r *CurrentResolver) Resolve(ctx context.Context, symbol string, class models.AssetClass, fallback float64) PriceResult {
	symbol = models.NormalizeTicker(symbol)
	if symbol == "" {
		return PriceResult{Price: fallback}
	}
	if price, ok := r.cached(ctx, symbol); ok {
		return PriceResult{Symbol: symbol, Price: price, Cached: true}
	}

	key := flightKey(symbol, class)
	ch := r.group.DoChan(key, func() (any, error) {
		r.track(key, 1)
		defer r.track(key, -1)
		// Shared by every waiter, so one caller leaving must not cancel it.
		return r.fetch(context.WithoutCancel(ctx), symbol, class)
	})
	var v any
	var err error
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		r.logger.Warn("current price unavailable",
			zap.String("symbol", symbol),
			zap.String("assetClass", string(class)),
			zap.String("kind", string(Kind(err))),
			zap.Error(err))
		return PriceResult{Symbol: symbol, Price: fallback, Error: Describe(err), Kind: Kind(err), Err: err}
	}
	return PriceResult{Symbol: symbol, Price: v.(float64)}
}

func (r *CurrentResolver) fetch(ctx context.Context, symbol string, class models.AssetClass) (float64, error) {
	provider, err := r.providers.For(class)
	if err != nil {
		return 0, err
	}
	price, err := provider.CurrentPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	entry := cache.Entry[float64]{Value: price, FetchedAt: r.now()}
	r.cache.Set(ctx, CurrentPriceKey(symbol), entry)
	if class == models.AssetCrypto && r.mirror != nil {
		r.mirror.Set(ctx, symbol, entry)
	}
	return price, nil
}

func (r *CurrentResolver) track(key string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[key] += delta
	if r.inflight[key] <= 0 {
		delete(r.inflight, key)
	}
}
