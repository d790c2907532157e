package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/zenrsr/capx-stockfolio/internal/fetch"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

const regularMarketPricePath = "$.chart.result[0].meta.regularMarketPrice"

// EquityProvider reads the Yahoo Finance chart endpoint.
type EquityProvider struct {
	getter   Getter
	baseURL  string
	proxyURL string
}

// NewEquityProvider returns a Yahoo provider. proxyURL, when set, is
// prepended to every request URL (e.g. "https://api.allorigins.win/raw?url=").
func NewEquityProvider(getter Getter, baseURL, proxyURL string) *EquityProvider {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &EquityProvider{
		getter:   getter,
		baseURL:  strings.TrimRight(baseURL, "/"),
		proxyURL: proxyURL,
	}
}

func (p *EquityProvider) Name() string { return "Yahoo Finance" }

func (p *EquityProvider) chartURL(symbol string, query url.Values) string {
	return p.proxyURL + fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(symbol), query.Encode())
}

func (p *EquityProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	addr := p.chartURL(symbol, url.Values{"interval": {"1d"}})

	var jobj any
	if err := p.getter.GetJSON(ctx, addr, &jobj); err != nil {
		return 0, err
	}
	jval, err := jsonpath.Get(regularMarketPricePath, jobj)
	if err != nil {
		return 0, fetch.InvalidResponse("yahoo %s: %v", symbol, err)
	}
	// jsonpath may answer with a one element list
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	price, ok := jval.(float64)
	if !ok {
		return 0, fetch.InvalidResponse("yahoo %s: regularMarketPrice is %T, not a number", symbol, jval)
	}
	return price, nil
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

func (p *EquityProvider) HistoricalSeries(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	addr := p.chartURL(symbol, url.Values{"interval": {"1d"}, "range": {"1y"}})

	var payload yahooChart
	if err := p.getter.GetJSON(ctx, addr, &payload); err != nil {
		return nil, fmt.Errorf("historical data for stock %s: %w", symbol, err)
	}
	if len(payload.Chart.Result) == 0 ||
		len(payload.Chart.Result[0].Timestamp) == 0 ||
		len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fetch.InvalidResponse("no historical data available for stock %s", symbol)
	}

	result := payload.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// yahoo reports null closes on non-trading days
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, models.PricePoint{
			Date:  models.DateOf(time.Unix(ts, 0)),
			Price: *closes[i],
		})
	}
	if len(points) == 0 {
		return nil, fetch.InvalidResponse("no historical data available for stock %s", symbol)
	}
	return points, nil
}
