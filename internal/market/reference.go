package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zenrsr/capx-stockfolio/internal/cache"
	"github.com/zenrsr/capx-stockfolio/internal/fetch"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

const DefaultReferenceTTL = 23 * time.Hour

// ReferencePrices serves the once-a-day crypto price shown next to the static
// monthly market series. Entries are keyed by bare crypto symbol.
type ReferencePrices struct {
	getter     Getter
	binanceURL string
	quote      string
	ttl        time.Duration
	prices     cache.Store[float64]
	now        func() time.Time
}

func NewReferencePrices(getter Getter, binanceBaseURL, quote string, ttl time.Duration, prices cache.Store[float64]) *ReferencePrices {
	if binanceBaseURL == "" {
		binanceBaseURL = DefaultBinanceBaseURL
	}
	if quote == "" {
		quote = DefaultQuoteCurrency
	}
	if ttl <= 0 {
		ttl = DefaultReferenceTTL
	}
	return &ReferencePrices{
		getter:     getter,
		binanceURL: strings.TrimRight(binanceBaseURL, "/"),
		quote:      strings.ToUpper(quote),
		ttl:        ttl,
		prices:     prices,
		now:        time.Now,
	}
}

// Store exposes the symbol keyed price map so current crypto prices can be mirrored into it.
func (r *ReferencePrices) Store() cache.Store[float64] { return r.prices }

func (r *ReferencePrices) Get(ctx context.Context, symbol string) (float64, error) {
	symbol = models.NormalizeTicker(symbol)
	if e, ok := r.prices.Get(ctx, symbol); ok && e.Valid(r.now(), r.ttl) {
		return e.Value, nil
	}

	addr := r.binanceURL + "/api/v3/ticker/price?" + url.Values{"symbol": {symbol + r.quote}}.Encode()
	var payload struct {
		Symbol string `json:"symbol"`
		Price  any    `json:"price"`
	}
	if err := r.getter.GetJSON(ctx, addr, &payload); err != nil {
		return 0, fmt.Errorf("reference price for %s: %w", symbol, err)
	}
	price, err := decimalOf(payload.Price)
	if err != nil {
		return 0, fetch.InvalidResponse("binance ticker %s: %v", symbol, err)
	}

	value := price.InexactFloat64()
	r.prices.Set(ctx, symbol, cache.Entry[float64]{Value: value, FetchedAt: r.now()})
	return value, nil
}

var staticMonthly = map[string][]float64{
	"BTC":  {42582.61, 61198.38, 71333.65, 60636.86, 67491.42, 64096.2},
	"ETH":  {1800, 1900, 2000, 2100, 2200, 2300},
	"DOGE": {0.08, 0.09, 0.1, 0.11, 0.12, 0.13},
	"SOL":  {150, 160, 170, 180, 190, 200},
	"PEPE": {0.00002, 0.000025, 0.00003, 0.000035, 0.00004, 0.000045},
}

// StaticMonthly returns the built-in six month series (January to June 2024)
// for a handful of well-known coins.
func StaticMonthly(symbol string) ([]models.PricePoint, bool) {
	prices, ok := staticMonthly[models.NormalizeTicker(symbol)]
	if !ok {
		return nil, false
	}
	points := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = models.PricePoint{Date: models.NewDate(2024, time.Month(i+1), 1), Price: p}
	}
	return points, true
}
