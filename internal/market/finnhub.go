package market

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/zenrsr/capx-stockfolio/internal/fetch"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

const (
	DefaultFinnhubBaseURL = "https://finnhub.io/api/v1"
	// FinnhubTokenHeader carries the API key so it never appears in a URL.
	FinnhubTokenHeader = "X-Finnhub-Token"
	// MaxRecommendationPeriods is how many of the latest periods are kept.
	MaxRecommendationPeriods = 6
)

// Finnhub reads quotes and analyst recommendation trends. The getter is
// expected to send FinnhubTokenHeader.
type Finnhub struct {
	getter  Getter
	baseURL string
}

func NewFinnhub(getter Getter, baseURL string) *Finnhub {
	if baseURL == "" {
		baseURL = DefaultFinnhubBaseURL
	}
	return &Finnhub{getter: getter, baseURL: strings.TrimRight(baseURL, "/")}
}

func (f *Finnhub) endpoint(path, symbol string) string {
	return fmt.Sprintf("%s%s?%s", f.baseURL, path, url.Values{"symbol": {symbol}}.Encode())
}

type finnhubQuote struct {
	C  *float64 `json:"c"`
	H  float64  `json:"h"`
	L  float64  `json:"l"`
	O  float64  `json:"o"`
	PC float64  `json:"pc"`
}

func (f *Finnhub) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var q finnhubQuote
	if err := f.getter.GetJSON(ctx, f.endpoint("/quote", symbol), &q); err != nil {
		return models.Quote{}, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	if q.C == nil {
		return models.Quote{}, fetch.InvalidResponse("finnhub quote %s: empty response", symbol)
	}
	return models.Quote{Current: *q.C, High: q.H, Low: q.L, Open: q.O, PreviousClose: q.PC}, nil
}

// RecommendationTrends returns the latest periods, oldest first.
func (f *Finnhub) RecommendationTrends(ctx context.Context, symbol string) ([]models.RecommendationTrend, error) {
	var trends []models.RecommendationTrend
	if err := f.getter.GetJSON(ctx, f.endpoint("/stock/recommendation", symbol), &trends); err != nil {
		return nil, fmt.Errorf("finnhub recommendations %s: %w", symbol, err)
	}
	if len(trends) == 0 {
		return nil, fetch.InvalidResponse("finnhub recommendations %s: no periods", symbol)
	}
	// newest first on the wire
	latest := slices.Clone(trends[:min(len(trends), MaxRecommendationPeriods)])
	slices.Reverse(latest)
	return latest, nil
}
